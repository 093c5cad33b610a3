package schemas

import (
	"context"
	"encoding/json"
)

// -- Simulation Service Interfaces --

// SimulationAPI is the set of leaf calls offered by the remote simulation service.
// Every method performs exactly one HTTP request (or none, when input validation fails).
//
//go:generate mockery --name SimulationAPI --output ../../internal/mocks --outpkg mocks
type SimulationAPI interface {
	// CreateSimulation creates a simulation from the named environment template.
	CreateSimulation(ctx context.Context, envName string) (*SimulationCreateResult, error)
	// StartSimulation transitions a created simulation into the running state.
	StartSimulation(ctx context.Context, simulationID int64) (*SimulationStartResult, error)
	// GetAgentStatus reads the current status of one agent.
	GetAgentStatus(ctx context.Context, simulationID int64, agentID int) (*AgentStatus, error)
	// PerformAgentAction submits a single action for one agent.
	PerformAgentAction(ctx context.Context, simulationID int64, agentID int, action AgentAction, mode json.RawMessage) (*ActionResult, error)
	// SimulateStep advances the simulation by one step.
	SimulateStep(ctx context.Context, simulationID int64) (*StepResult, error)
}

// ActionRunner composes the leaf calls into the sequencing operations.
type ActionRunner interface {
	// Establish creates and starts a simulation and reads the status of its last agent.
	Establish(ctx context.Context, envName string) (*EstablishedSimulation, error)
	// SimulateAgentAction runs one action cycle: act, step, read status.
	SimulateAgentAction(ctx context.Context, simulationID int64, agentID int, action AgentAction, mode json.RawMessage) (*AgentStatus, error)
	// ExecuteActionArray runs one action cycle per element of actions, in order.
	ExecuteActionArray(ctx context.Context, simulationID int64, agentID int, actions ActionSequence, mode json.RawMessage) (*SequenceResult, error)
}
