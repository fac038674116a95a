package drain

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"
)

// Stopper gracefully stops a single agent
type Stopper interface {
	// Stop stops the named agent and returns once it no longer accepts work
	Stop(ctx context.Context, agent string) error
}

// LogStopper only records the stop. It suits fleets whose agents finish
// in-flight work on their own when the backing resource is destroyed.
type LogStopper struct {
	Logger zerolog.Logger
}

// Stop logs the stop request
func (s *LogStopper) Stop(ctx context.Context, agent string) error {
	s.Logger.Info().Str("agent", agent).Msg("Stopping agent")
	return nil
}

// agentData is what stop templates are rendered against
type agentData struct {
	Name string
}

func render(tmpl *template.Template, agent string) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, agentData{Name: agent}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ExecStopper stops an agent by running a command
type ExecStopper struct {
	// args are the command and its arguments, each a template over the agent name
	args []*template.Template
}

// NewExecStopper creates a stopper for a command such as
// ["ssh", "{{.Name}}", "sudo", "systemctl", "stop", "bamboo-agent"]
func NewExecStopper(command []string) (*ExecStopper, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("no stop command specified")
	}

	args := make([]*template.Template, len(command))
	for i, arg := range command {
		tmpl, err := template.New(fmt.Sprintf("arg%d", i)).Option("missingkey=error").Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stop command argument %q: %w", arg, err)
		}
		args[i] = tmpl
	}
	return &ExecStopper{args: args}, nil
}

// Stop runs the stop command for the agent
func (s *ExecStopper) Stop(ctx context.Context, agent string) error {
	argv := make([]string, len(s.args))
	for i, tmpl := range s.args {
		arg, err := render(tmpl, agent)
		if err != nil {
			return fmt.Errorf("failed to render stop command: %w", err)
		}
		argv[i] = arg
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("stop command %v failed: %w: %s", argv, err, msg)
		}
		return fmt.Errorf("stop command %v failed: %w", argv, err)
	}
	return nil
}

// HTTPStopper stops an agent by calling an HTTP endpoint
type HTTPStopper struct {
	url    *template.Template
	method string
	client *http.Client
}

// NewHTTPStopper creates a stopper that sends method to the templated URL.
// Any 2xx response counts as stopped.
func NewHTTPStopper(url, method string) (*HTTPStopper, error) {
	tmpl, err := template.New("url").Option("missingkey=error").Parse(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stop URL: %w", err)
	}
	if method == "" {
		method = http.MethodPost
	}
	return &HTTPStopper{
		url:    tmpl,
		method: method,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Stop calls the stop endpoint for the agent
func (s *HTTPStopper) Stop(ctx context.Context, agent string) error {
	url, err := render(s.url, agent)
	if err != nil {
		return fmt.Errorf("failed to render stop URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("stop request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("stop request returned HTTP %d", resp.StatusCode)
	}
	return nil
}
