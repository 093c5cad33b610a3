// internal/plan/plan.go
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/simclient/api/schemas"
)

// Plan is an action sequence stored in a YAML file:
//
//	simulation_id: 12
//	agent_id: 2
//	mode: {speed: 2}
//	actions: [moveForward, turnLeft, pickUp]
//
// SimulationID and AgentID are optional so they can come from the command line.
// Mode is nil when the file does not set one.
type Plan struct {
	SimulationID *int64
	AgentID      *int
	Mode         schemas.Mode
	Actions      schemas.ActionSequence
}

// document is the on-disk shape.
type document struct {
	SimulationID *int64    `yaml:"simulation_id"`
	AgentID      *int      `yaml:"agent_id"`
	Mode         yaml.Node `yaml:"mode"`
	Actions      []string  `yaml:"actions"`
}

// Load reads and validates the plan at path. A leading ~ is expanded.
func Load(path string) (*Plan, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand plan path %q: %w", path, err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan file: %w", err)
	}
	defer f.Close()

	p, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", expanded, err)
	}
	return p, nil
}

// Parse decodes a plan from r. Unknown keys are rejected.
func Parse(r io.Reader) (*Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("plan is empty")
		}
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}

	if doc.SimulationID != nil && *doc.SimulationID < 0 {
		return nil, fmt.Errorf("simulation_id %d must not be negative", *doc.SimulationID)
	}
	if doc.AgentID != nil && *doc.AgentID < 0 {
		return nil, fmt.Errorf("agent_id %d must not be negative", *doc.AgentID)
	}

	actions, err := schemas.ParseAgentActions(doc.Actions)
	if err != nil {
		return nil, err
	}

	mode, err := modeFromNode(&doc.Mode)
	if err != nil {
		return nil, err
	}

	return &Plan{
		SimulationID: doc.SimulationID,
		AgentID:      doc.AgentID,
		Mode:         mode,
		Actions:      actions,
	}, nil
}

// modeFromNode converts the YAML mode value into JSON. An absent key yields nil;
// an explicit null is an error since the service requires a mode.
func modeFromNode(node *yaml.Node) (schemas.Mode, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	var value any
	if err := node.Decode(&value); err != nil {
		return nil, fmt.Errorf("failed to decode mode: %w", err)
	}
	if value == nil {
		return nil, fmt.Errorf("mode must not be null")
	}
	jsonValue, err := toJSONCompatible(value)
	if err != nil {
		return nil, fmt.Errorf("mode: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(jsonValue); err != nil {
		return nil, fmt.Errorf("mode cannot be expressed as JSON: %w", err)
	}
	return schemas.Mode(bytes.TrimSpace(buf.Bytes())), nil
}

// toJSONCompatible rewrites maps with non-string keys, which YAML allows and
// JSON does not.
func toJSONCompatible(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			conv, err := toJSONCompatible(val)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			conv, err := toJSONCompatible(val)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = conv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			conv, err := toJSONCompatible(val)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	default:
		return v, nil
	}
}

// ModeOr returns the plan's mode, or fallback when the plan does not set one.
func (p *Plan) ModeOr(fallback schemas.Mode) schemas.Mode {
	if len(p.Mode) == 0 {
		return fallback
	}
	return p.Mode
}
