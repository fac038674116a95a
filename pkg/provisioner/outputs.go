package provisioner

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cuemby/fleetroll/pkg/types"
)

// DecodeAgents decodes a fleet output value: a list of objects, each with at
// least a name and an id
func DecodeAgents(raw json.RawMessage) (types.Agents, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var objects []map[string]interface{}
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, fmt.Errorf("failed to decode fleet output: %w", err)
	}

	agents := make(types.Agents, 0, len(objects))
	for i, obj := range objects {
		name, ok := obj["name"].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("fleet output entry %d has no name", i)
		}
		agents = append(agents, types.Agent{
			ID:         Scalar(obj["id"]),
			Name:       name,
			Attributes: obj,
		})
	}
	return agents, nil
}

// FleetAgents looks up the named fleet output and decodes its agents
func FleetAgents(outputs map[string]json.RawMessage, fleet string) (types.Agents, error) {
	raw, ok := outputs[fleet]
	if !ok {
		return nil, fmt.Errorf("output %q not found", fleet)
	}
	return DecodeAgents(raw)
}

// Scalar renders a JSON scalar as a string; other values render empty
func Scalar(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case json.Number:
		return value.String()
	case bool:
		return fmt.Sprintf("%t", value)
	default:
		return ""
	}
}
