// internal/simclient/operations.go
package simclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/simclient/api/schemas"
)

// Operation names used in errors and logs.
const (
	OpCreateSimulation   = "create simulation"
	OpStartSimulation    = "start simulation"
	OpGetAgentStatus     = "get agent status"
	OpPerformAgentAction = "perform agent action"
	OpSimulateStep       = "simulate step"
)

type createRequest struct {
	EnvName string `json:"env_name"`
}

type actionRequest struct {
	Action schemas.AgentAction `json:"action"`
	Mode   schemas.Mode        `json:"mode"`
}

// createFields are the parts of the create response the client relies on. The
// service has reported them under several names and sometimes nested under a
// "simulation" object.
type createFields struct {
	SimulationID *schemas.FlexInt `json:"simulation_id"`
	ID           *schemas.FlexInt `json:"id"`
	AgentCount   *schemas.FlexInt `json:"agent_count"`
	NumAgents    *schemas.FlexInt `json:"num_agents"`
	Simulation   *createFields    `json:"simulation"`
}

func (f *createFields) id() *schemas.FlexInt {
	if f == nil {
		return nil
	}
	if f.SimulationID != nil {
		return f.SimulationID
	}
	if f.ID != nil {
		return f.ID
	}
	return f.Simulation.id()
}

func (f *createFields) agentCount() *schemas.FlexInt {
	if f == nil {
		return nil
	}
	if f.AgentCount != nil {
		return f.AgentCount
	}
	if f.NumAgents != nil {
		return f.NumAgents
	}
	return f.Simulation.agentCount()
}

// CreateSimulation creates a simulation from the named environment template.
// Both 200 and 201 count as success.
func (c *Client) CreateSimulation(ctx context.Context, envName string) (*schemas.SimulationCreateResult, error) {
	envName = strings.TrimSpace(envName)
	if envName == "" {
		return nil, &ValidationError{Field: "env_name", Reason: "must not be empty"}
	}

	resp, err := c.do(ctx, OpCreateSimulation, http.MethodPost,
		[]string{"simulations", "create"},
		createRequest{EnvName: envName},
		http.StatusOK, http.StatusCreated)
	if err != nil {
		return nil, err
	}

	var fields createFields
	if err := json.Unmarshal(resp.body, &fields); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", OpCreateSimulation, ErrMalformedResponse, err)
	}
	id := fields.id()
	if id == nil {
		return nil, fmt.Errorf("%s: %w: no simulation id in response", OpCreateSimulation, ErrMalformedResponse)
	}

	result := &schemas.SimulationCreateResult{
		SimulationID: int64(*id),
		Payload:      payloadOf(resp.body),
	}
	if count := fields.agentCount(); count != nil {
		result.AgentCount = int(*count)
	}

	c.logger.Info("Simulation created",
		zap.String("env_name", envName),
		zap.Int64("simulation_id", result.SimulationID),
		zap.Int("agent_count", result.AgentCount),
	)
	return result, nil
}

// StartSimulation moves a created simulation into the running state. Only an
// exact 200 is success; a 201 from this endpoint is treated as a failure.
func (c *Client) StartSimulation(ctx context.Context, simulationID int64) (*schemas.SimulationStartResult, error) {
	if err := validateSimulationID(simulationID); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, OpStartSimulation, http.MethodPut,
		[]string{"simulations", formatID(simulationID), "start"},
		nil,
		http.StatusOK)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Simulation started", zap.Int64("simulation_id", simulationID))
	return &schemas.SimulationStartResult{Payload: payloadOf(resp.body)}, nil
}

// GetAgentStatus reads the current status of one agent.
func (c *Client) GetAgentStatus(ctx context.Context, simulationID int64, agentID int) (*schemas.AgentStatus, error) {
	if err := validateSimulationID(simulationID); err != nil {
		return nil, err
	}
	if err := validateAgentID(agentID); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, OpGetAgentStatus, http.MethodGet,
		[]string{"simulations", formatID(simulationID), "agents", strconv.Itoa(agentID), "status"},
		nil,
		http.StatusOK)
	if err != nil {
		return nil, err
	}

	return &schemas.AgentStatus{
		SimulationID: simulationID,
		AgentID:      agentID,
		Payload:      payloadOf(resp.body),
	}, nil
}

// PerformAgentAction submits one action for an agent. Input is validated before
// any request is made and the first violation is returned. A 400 or 415 from the
// service is reported as a *ProtocolError.
func (c *Client) PerformAgentAction(ctx context.Context, simulationID int64, agentID int, action schemas.AgentAction, mode schemas.Mode) (*schemas.ActionResult, error) {
	if err := validateSimulationID(simulationID); err != nil {
		return nil, err
	}
	if err := validateAgentID(agentID); err != nil {
		return nil, err
	}
	if !action.Valid() {
		return nil, &ValidationError{Field: "action", Reason: fmt.Sprintf("%q is not a supported agent action", string(action))}
	}
	if schemas.IsNullMode(mode) {
		return nil, &ValidationError{Field: "mode", Reason: "must be present and not null"}
	}
	if !isJSON(mode) {
		return nil, &ValidationError{Field: "mode", Reason: "must be a valid JSON value"}
	}

	resp, err := c.do(ctx, OpPerformAgentAction, http.MethodPost,
		[]string{"simulations", formatID(simulationID), "agents", strconv.Itoa(agentID), "action"},
		actionRequest{Action: action, Mode: mode},
		http.StatusOK, http.StatusCreated)
	if err != nil {
		var statusErr *UnexpectedStatusError
		if errors.As(err, &statusErr) {
			switch statusErr.StatusCode {
			case http.StatusBadRequest:
				return nil, &ProtocolError{Kind: InvalidAction, StatusCode: statusErr.StatusCode, Body: statusErr.Body}
			case http.StatusUnsupportedMediaType:
				return nil, &ProtocolError{Kind: UnsupportedMediaType, StatusCode: statusErr.StatusCode, Body: statusErr.Body}
			}
		}
		return nil, err
	}

	c.logger.Debug("Agent action accepted",
		zap.Int64("simulation_id", simulationID),
		zap.Int("agent_id", agentID),
		zap.String("action", action.String()),
	)
	return &schemas.ActionResult{Payload: payloadOf(resp.body)}, nil
}

// SimulateStep advances the simulation by one step. Only an exact 200 is success.
func (c *Client) SimulateStep(ctx context.Context, simulationID int64) (*schemas.StepResult, error) {
	if err := validateSimulationID(simulationID); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, OpSimulateStep, http.MethodPut,
		[]string{"simulations", formatID(simulationID), "step"},
		struct{}{},
		http.StatusOK)
	if err != nil {
		return nil, err
	}

	return &schemas.StepResult{Payload: payloadOf(resp.body)}, nil
}

func validateSimulationID(id int64) error {
	if id < 0 {
		return &ValidationError{Field: "simulation_id", Reason: fmt.Sprintf("%d must not be negative", id)}
	}
	return nil
}

func validateAgentID(id int) error {
	if id < 0 {
		return &ValidationError{Field: "agent_id", Reason: fmt.Sprintf("%d must not be negative", id)}
	}
	return nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
