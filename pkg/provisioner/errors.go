package provisioner

import (
	"errors"
	"fmt"
	"strings"
)

// Op identifies the provisioner operation that failed
type Op string

const (
	OpInit   Op = "init"
	OpPlan   Op = "plan"
	OpShow   Op = "show"
	OpApply  Op = "apply"
	OpOutput Op = "output"
)

// Error is a provisioner failure carrying the tool's captured output
type Error struct {
	// Op is the operation that failed
	Op Op

	// WorkingDir is the module directory the command ran in
	WorkingDir string

	// Stdout and Stderr are the raw output of the failed command
	Stdout string
	Stderr string

	// Err is the underlying execution error
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("terraform %s failed", e.Op)
	if e.WorkingDir != "" {
		msg = fmt.Sprintf("%s in %s", msg, e.WorkingDir)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Output returns the captured stdout followed by stderr
func (e *Error) Output() string {
	var b strings.Builder
	if out := strings.TrimSpace(e.Stdout); out != "" {
		b.WriteString(out)
		b.WriteString("\n")
	}
	if out := strings.TrimSpace(e.Stderr); out != "" {
		b.WriteString(out)
		b.WriteString("\n")
	}
	return b.String()
}

// IsOp reports whether err is a provisioner failure of the given operation
func IsOp(err error, op Op) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Op == op
	}
	return false
}
