package health

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// maxOutputBytes bounds how much command output ends up in a result message
const maxOutputBytes = 100

// ExecChecker reports an agent ready when a command exits 0
type ExecChecker struct {
	// Command is the argv to run (e.g., ["ssh", "bamboo-agent-x1", "systemctl", "is-active", "bamboo-agent"])
	Command []string

	// Timeout bounds a single run (default: 10 seconds)
	Timeout time.Duration
}

// NewExecChecker creates a new exec health checker
func NewExecChecker(command []string) *ExecChecker {
	return &ExecChecker{
		Command: command,
		Timeout: 10 * time.Second,
	}
}

// Check runs the command once
func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()
	result := func(healthy bool, message string) Result {
		return Result{
			Healthy:   healthy,
			Message:   message,
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if len(e.Command) == 0 {
		return result(false, "no command specified")
	}

	execCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(execCtx, e.Command[0], e.Command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	name := strings.Join(e.Command, " ")
	if err := cmd.Run(); err != nil {
		message := fmt.Sprintf("%s: %v", name, err)
		if out := truncate(stderr.String()); out != "" {
			message = fmt.Sprintf("%s (%s)", message, out)
		}
		return result(false, message)
	}

	message := fmt.Sprintf("%s: exit 0", name)
	if out := truncate(stdout.String()); out != "" {
		message = fmt.Sprintf("%s (%s)", message, out)
	}
	return result(true, message)
}

// Type returns the health check type
func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}

// WithTimeout sets the execution timeout
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxOutputBytes {
		return s[:maxOutputBytes] + "..."
	}
	return s
}
