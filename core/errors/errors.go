package errors

import (
	stderrors "errors"
	"fmt"
)

// Exit codes shared by every actor. Domain specific codes live next to the
// engine that raises them.
const (
	CodeOK         = 0
	CodeBounced    = 1
	CodeInvalidMsg = 708
	CodeUnknownOp  = 0xffff
)

var (
	ErrInvalidMessage = New(CodeInvalidMsg, "message: malformed body")
	ErrUnknownOp      = New(CodeUnknownOp, "message: unknown opcode")
)

// Coded is an error that carries the numeric exit code reported for a failed
// message. Identity comparison via errors.Is works on the sentinel itself.
type Coded struct {
	code int
	msg  string
}

// New constructs a coded sentinel error.
func New(code int, msg string) *Coded {
	return &Coded{code: code, msg: msg}
}

func (e *Coded) Error() string { return e.msg }

// ExitCode returns the numeric code associated with the error.
func (e *Coded) ExitCode() int { return e.code }

// Wrap attaches context while keeping the sentinel reachable through errors.Is.
func Wrap(err *Coded, format string, args ...any) error {
	return fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
}

// ExitCode resolves the exit code for any error chain. Errors without a code
// map to CodeBounced, nil maps to CodeOK.
func ExitCode(err error) int {
	if err == nil {
		return CodeOK
	}
	var coded *Coded
	if stderrors.As(err, &coded) {
		return coded.code
	}
	return CodeBounced
}
