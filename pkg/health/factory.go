package health

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/cuemby/fleetroll/pkg/types"
)

// CheckerFactory builds the readiness checker for one agent
type CheckerFactory interface {
	Checker(agent types.Agent) (Checker, error)
}

// TemplateFactory builds checkers from templates rendered against each agent.
// Templates see the agent's Name, ID and Attributes, e.g.
// "http://{{index .Attributes \"private_ip\"}}:8085/status".
type TemplateFactory struct {
	// Type selects the checker (http, tcp or exec)
	Type CheckType

	// Target is the URL for http checks or host:port for tcp checks
	Target string

	// Command is the argv for exec checks; each argument is a template
	Command []string

	// ExpectBody is passed to http checkers
	ExpectBody string

	// Timeout bounds a single check
	Timeout time.Duration
}

// Checker renders the templates for agent and returns the checker
func (f *TemplateFactory) Checker(agent types.Agent) (Checker, error) {
	switch f.Type {
	case CheckTypeHTTP:
		url, err := renderAgent("url", f.Target, agent)
		if err != nil {
			return nil, err
		}
		checker := NewHTTPChecker(url).WithExpectBody(f.ExpectBody)
		if f.Timeout > 0 {
			checker.WithTimeout(f.Timeout)
		}
		return checker, nil

	case CheckTypeTCP:
		address, err := renderAgent("address", f.Target, agent)
		if err != nil {
			return nil, err
		}
		checker := NewTCPChecker(address)
		if f.Timeout > 0 {
			checker.WithTimeout(f.Timeout)
		}
		return checker, nil

	case CheckTypeExec:
		if len(f.Command) == 0 {
			return nil, fmt.Errorf("exec check requires a command")
		}
		argv := make([]string, len(f.Command))
		for i, arg := range f.Command {
			rendered, err := renderAgent(fmt.Sprintf("arg%d", i), arg, agent)
			if err != nil {
				return nil, err
			}
			argv[i] = rendered
		}
		checker := NewExecChecker(argv)
		if f.Timeout > 0 {
			checker.WithTimeout(f.Timeout)
		}
		return checker, nil

	default:
		return nil, fmt.Errorf("unsupported health check type: %s", f.Type)
	}
}

func renderAgent(name, text string, agent types.Agent) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, agent); err != nil {
		return "", fmt.Errorf("failed to render %s for agent %s: %w", name, agent.Name, err)
	}
	return buf.String(), nil
}
