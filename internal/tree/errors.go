package tree

import "errors"

var (
	// ErrSyntax indicates malformed interpolation, key pattern or reference syntax.
	ErrSyntax = errors.New("tree: syntax error")

	// ErrUnboundVariable indicates a placeholder no enclosing wildcard key has bound.
	ErrUnboundVariable = errors.New("tree: unbound variable")
)
