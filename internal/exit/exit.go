// Package exit carries a process exit status and the message to print with it
// from option parsing back to main.
package exit

import (
	"fmt"
	"io"
	"os"
)

const (
	CodeOK      = 0
	CodeFailure = 1
	CodeUsage   = 2
)

// Result is a terminal outcome: what to print, where, and the exit code.
type Result struct {
	Output   io.Writer
	ExitCode int
	Message  string
}

func (r *Result) Print() {
	if r.Message == "" {
		return
	}
	fmt.Fprint(r.Output, r.Message)
}

// Success prints message to stdout and exits 0. Used for -help and -version.
func Success(message string) *Result {
	return &Result{Output: os.Stdout, ExitCode: CodeOK, Message: message}
}

func Error(message string) *Result {
	return &Result{Output: os.Stderr, ExitCode: CodeFailure, Message: message}
}

func Errorf(format string, a ...any) *Result {
	return Error(fmt.Sprintf(format, a...))
}

// Usage reports invalid command line input with exit code 2.
func Usage(message string) *Result {
	return &Result{Output: os.Stderr, ExitCode: CodeUsage, Message: message}
}

func Usagef(format string, a ...any) *Result {
	return Usage(fmt.Sprintf(format, a...))
}
