package drain

import (
	"fmt"
	"strings"

	"github.com/cuemby/fleetroll/pkg/log"
	"github.com/cuemby/fleetroll/pkg/provisioner"
	"github.com/cuemby/fleetroll/pkg/types"
)

// Selector identifies agent identity resources in a change set
type Selector struct {
	// ResourceType is the Terraform type of the resource whose id names an agent
	ResourceType string `yaml:"resource_type" validate:"required"`

	// NamePrefix restricts matches to resources whose name starts with it
	NamePrefix string `yaml:"name_prefix"`

	// AgentPrefix is prepended to the resource id to form the agent name
	AgentPrefix string `yaml:"agent_prefix" validate:"required"`
}

// DefaultSelector matches the bamboo agent fleet module
func DefaultSelector() Selector {
	return Selector{
		ResourceType: "random_string",
		NamePrefix:   "bamboo_agent",
		AgentPrefix:  "bamboo-agent",
	}
}

// AgentName returns the agent name for an identity resource id
func (s Selector) AgentName(id string) string {
	return fmt.Sprintf("%s-%s", s.AgentPrefix, id)
}

// PendingDestruction returns the names of the agents the change set will
// destroy, in change set order and without duplicates
func (s Selector) PendingDestruction(cs *types.ChangeSet) []string {
	if cs == nil {
		return nil
	}

	logger := log.WithComponent("drain")
	seen := make(map[string]bool)
	var agents []string

	for _, change := range cs.Changes {
		if change.Type != s.ResourceType {
			continue
		}
		if s.NamePrefix != "" && !strings.HasPrefix(change.Name, s.NamePrefix) {
			continue
		}
		if !change.Actions.Contains(types.ActionDelete) {
			continue
		}

		id := provisioner.Scalar(change.Before["id"])
		if id == "" {
			logger.Warn().Str("address", change.Address).Msg("Destroyed agent resource has no id, skipping")
			continue
		}

		name := s.AgentName(id)
		if seen[name] {
			continue
		}
		seen[name] = true
		agents = append(agents, name)
	}
	return agents
}
