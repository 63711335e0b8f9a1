// Package tree compiles tree templates and renders them against documents.
//
// A template is a nested literal of maps, lists and scalars. Three embedded
// syntaxes give it meaning:
//
//   - String interpolation in object keys: "cpu_{host}" substitutes the
//     placeholder host from the current bindings.
//   - References as scalar values: "^(path/to/{host}/value)" resolves to the
//     value stored at that path of the current document position.
//   - Wildcard keys: "^(hosts/{host}) cpu_{host}" enumerates every child of
//     hosts, binds its name to host and renders one output key per match.
//
// Paths are '/'-separated; a segment that is exactly {name} is a placeholder
// and a '.' segment stays at the current position. Compilation fails with
// ErrSyntax on malformed syntax; rendering fails only with ErrUnboundVariable.
// Missing data never fails: references resolve to nil and wildcards match
// nothing.
package tree
