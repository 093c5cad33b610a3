package schemas

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// -- Agent Actions --

// AgentAction enumerates the discrete actions an agent can be asked to perform.
// The string values are sent to the simulation service verbatim.
type AgentAction string

const (
	ActionMoveForward AgentAction = "moveForward"
	ActionTurnLeft    AgentAction = "turnLeft"
	ActionTurnRight   AgentAction = "turnRight"
	ActionPickUp      AgentAction = "pickUp"
	ActionDrop        AgentAction = "drop"
	ActionIdle        AgentAction = "idle"
)

// AllAgentActions lists every supported action in a stable order.
var AllAgentActions = []AgentAction{
	ActionMoveForward,
	ActionTurnLeft,
	ActionTurnRight,
	ActionPickUp,
	ActionDrop,
	ActionIdle,
}

// Valid reports whether a is one of the enumerated actions.
func (a AgentAction) Valid() bool {
	for _, known := range AllAgentActions {
		if a == known {
			return true
		}
	}
	return false
}

func (a AgentAction) String() string { return string(a) }

// ParseAgentAction converts user input into an AgentAction. Matching is exact
// first, then case-insensitive, so "moveforward" resolves to moveForward.
func ParseAgentAction(s string) (AgentAction, error) {
	s = strings.TrimSpace(s)
	if a := AgentAction(s); a.Valid() {
		return a, nil
	}
	for _, known := range AllAgentActions {
		if strings.EqualFold(s, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown agent action %q (expected one of %s)", s, joinActions(AllAgentActions))
}

// ParseAgentActions converts an ordered list of names into an ActionSequence.
func ParseAgentActions(names []string) (ActionSequence, error) {
	seq := make(ActionSequence, 0, len(names))
	for i, name := range names {
		a, err := ParseAgentAction(name)
		if err != nil {
			return nil, fmt.Errorf("action #%d: %w", i, err)
		}
		seq = append(seq, a)
	}
	return seq, nil
}

// ActionSequence is an ordered list of actions applied one at a time to a single agent.
type ActionSequence []AgentAction

func joinActions(actions []AgentAction) string {
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}

// -- Identifiers --

// ParseSimulationID parses a simulation identifier supplied as text.
func ParseSimulationID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("simulation id %q is not an integer", s)
	}
	if id < 0 {
		return 0, fmt.Errorf("simulation id %d must not be negative", id)
	}
	return id, nil
}

// ParseAgentID parses an agent index supplied as text.
func ParseAgentID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("agent id %q is not an integer", s)
	}
	if id < 0 {
		return 0, fmt.Errorf("agent id %d must not be negative", id)
	}
	return id, nil
}

// -- Mode --

// Mode is the opaque value accompanying every action. It is any JSON value except null.
type Mode = json.RawMessage

// IsNullMode reports whether m is absent or the JSON literal null.
func IsNullMode(m json.RawMessage) bool {
	trimmed := bytes.TrimSpace(m)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ModeFromText interprets s as JSON when it parses, and as a JSON string otherwise.
// This lets callers pass `{"speed":2}`, `3` or a bare word like `explore`.
func ModeFromText(s string) json.RawMessage {
	trimmed := strings.TrimSpace(s)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(s)
	return json.RawMessage(quoted)
}

// -- Flexible Integers --

// FlexInt decodes from either a JSON number or a numeric JSON string.
// The simulation service reports agent counts both ways. Integer text is
// parsed exactly; exponent or decimal forms must be whole and below 2^53, where
// a float64 still tells neighbouring integers apart.
type FlexInt int64

// maxExactFloat is 2^53. Past it, float64 text may already have been rounded.
const maxExactFloat = 1 << 53

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		trimmed = []byte(strings.TrimSpace(s))
	}

	text := string(trimmed)
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	} else if errors.Is(err, strconv.ErrRange) {
		return fmt.Errorf("value %s is out of range", string(data))
	}

	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("value %s is not numeric", string(data))
	}
	if math.Abs(n) >= maxExactFloat {
		return fmt.Errorf("value %s is too large to convert exactly", string(data))
	}
	if n != math.Trunc(n) {
		return fmt.Errorf("value %s is not an integer", string(data))
	}
	*f = FlexInt(int64(n))
	return nil
}

// -- Operation Results --

// SimulationCreateResult is the decoded response of the create endpoint.
type SimulationCreateResult struct {
	SimulationID int64           `json:"simulation_id"`
	AgentCount   int             `json:"agent_count"`
	Payload      json.RawMessage `json:"payload"`
}

// SimulationStartResult is the decoded response of the start endpoint.
type SimulationStartResult struct {
	Payload json.RawMessage `json:"payload"`
}

// AgentStatus is the service-defined status document of a single agent.
type AgentStatus struct {
	SimulationID int64           `json:"simulation_id"`
	AgentID      int             `json:"agent_id"`
	Payload      json.RawMessage `json:"payload"`
}

// ActionResult is the decoded response of the action endpoint.
type ActionResult struct {
	Payload json.RawMessage `json:"payload"`
}

// StepResult is the decoded response of the step endpoint.
type StepResult struct {
	Payload json.RawMessage `json:"payload"`
}

// EstablishedSimulation combines the results of create, start and the first status read.
type EstablishedSimulation struct {
	SimulationID int64           `json:"simulation_id"`
	EnvName      string          `json:"env_name"`
	AgentCount   int             `json:"agent_count"`
	AgentID      int             `json:"agent_id"`
	Create       json.RawMessage `json:"create"`
	Start        json.RawMessage `json:"start"`
	Status       json.RawMessage `json:"status"`
}

// SequenceResult reports the outcome of an action sequence. Statuses holds the
// status read at the end of every completed cycle, in order.
type SequenceResult struct {
	SimulationID int64         `json:"simulation_id"`
	AgentID      int           `json:"agent_id"`
	Completed    int           `json:"completed"`
	Statuses     []AgentStatus `json:"statuses"`
}
