// File: internal/orchestrator/orchestrator.go
// Description: Composes the simulation service's leaf calls into the two
// request chains clients care about: establishing a running simulation and
// replaying agent actions one full cycle at a time.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/simclient/api/schemas"
	"github.com/xkilldash9x/simclient/internal/simclient"
)

// Stage names one step of an orchestrated chain.
type Stage string

const (
	StageCreate Stage = "create"
	StageStart  Stage = "start"
	StageStatus Stage = "status"
	StageAction Stage = "action"
	StageStep   Stage = "step"
)

// StageError annotates a failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// SequenceError reports the action cycle that stopped a sequence.
type SequenceError struct {
	Index  int
	Action schemas.AgentAction
	Err    error
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("action #%d (%s) failed: %v", e.Index, e.Action, e.Err)
}

func (e *SequenceError) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded anywhere in err's chain, or "".
func FailedStage(err error) Stage {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}

// Orchestrator sequences calls against a SimulationAPI. It keeps no state
// between calls.
type Orchestrator struct {
	api    schemas.SimulationAPI
	logger *zap.Logger
}

var _ schemas.ActionRunner = (*Orchestrator)(nil)

// New creates an Orchestrator over api.
func New(api schemas.SimulationAPI, logger *zap.Logger) (*Orchestrator, error) {
	if api == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		api:    api,
		logger: logger.Named("orchestrator"),
	}, nil
}

// Establish creates a simulation from envName, starts it, and reads the status
// of its last agent. The first failing stage ends the chain.
func (o *Orchestrator) Establish(ctx context.Context, envName string) (*schemas.EstablishedSimulation, error) {
	envName = strings.TrimSpace(envName)
	if envName == "" {
		return nil, &StageError{Stage: StageCreate, Err: &simclient.ValidationError{Field: "env_name", Reason: "must not be empty"}}
	}
	o.logger.Info("Establishing simulation", zap.String("env_name", envName))

	created, err := o.api.CreateSimulation(ctx, envName)
	if err != nil {
		return nil, o.stageFailed(StageCreate, err)
	}
	log := o.logger.With(zap.Int64("simulation_id", created.SimulationID))
	log.Info("Simulation created", zap.Int("agent_count", created.AgentCount))

	started, err := o.api.StartSimulation(ctx, created.SimulationID)
	if err != nil {
		return nil, o.stageFailed(StageStart, err)
	}
	log.Info("Simulation started")

	if created.AgentCount < 1 {
		err := fmt.Errorf("%w: agent count %d leaves no agent to read", simclient.ErrMalformedResponse, created.AgentCount)
		return nil, o.stageFailed(StageStatus, err)
	}
	agentID := created.AgentCount - 1

	status, err := o.api.GetAgentStatus(ctx, created.SimulationID, agentID)
	if err != nil {
		return nil, o.stageFailed(StageStatus, err)
	}
	log.Info("Simulation established", zap.Int("agent_id", agentID))

	return &schemas.EstablishedSimulation{
		SimulationID: created.SimulationID,
		EnvName:      envName,
		AgentCount:   created.AgentCount,
		AgentID:      agentID,
		Create:       created.Payload,
		Start:        started.Payload,
		Status:       status.Payload,
	}, nil
}

// SimulateAgentAction runs one action cycle: submit the action, advance one
// step, read the agent's status. A stage only runs once the previous one has
// succeeded.
func (o *Orchestrator) SimulateAgentAction(ctx context.Context, simulationID int64, agentID int, action schemas.AgentAction, mode schemas.Mode) (*schemas.AgentStatus, error) {
	if _, err := o.api.PerformAgentAction(ctx, simulationID, agentID, action, mode); err != nil {
		return nil, o.stageFailed(StageAction, err)
	}
	if _, err := o.api.SimulateStep(ctx, simulationID); err != nil {
		return nil, o.stageFailed(StageStep, err)
	}
	status, err := o.api.GetAgentStatus(ctx, simulationID, agentID)
	if err != nil {
		return nil, o.stageFailed(StageStatus, err)
	}
	return status, nil
}

// ExecuteActionArray runs one action cycle per element of actions, in order,
// with a shared mode. It stops at the first failing cycle; later actions are
// never submitted. The result lists the status after every completed cycle and
// is returned alongside the error.
func (o *Orchestrator) ExecuteActionArray(ctx context.Context, simulationID int64, agentID int, actions schemas.ActionSequence, mode schemas.Mode) (*schemas.SequenceResult, error) {
	result := &schemas.SequenceResult{
		SimulationID: simulationID,
		AgentID:      agentID,
		Statuses:     make([]schemas.AgentStatus, 0, len(actions)),
	}
	if len(actions) == 0 {
		return result, nil
	}

	log := o.logger.With(zap.Int64("simulation_id", simulationID), zap.Int("agent_id", agentID))
	log.Info("Executing action sequence", zap.Int("actions", len(actions)))

	for i, action := range actions {
		if err := ctx.Err(); err != nil {
			log.Warn("Action sequence cancelled", zap.Int("completed", result.Completed))
			return result, &SequenceError{Index: i, Action: action, Err: err}
		}

		status, err := o.SimulateAgentAction(ctx, simulationID, agentID, action, mode)
		if err != nil {
			log.Error("Action sequence stopped",
				zap.Int("index", i),
				zap.String("action", action.String()),
				zap.Int("completed", result.Completed),
				zap.Error(err),
			)
			return result, &SequenceError{Index: i, Action: action, Err: err}
		}

		result.Statuses = append(result.Statuses, *status)
		result.Completed++
		log.Debug("Action cycle complete", zap.Int("index", i), zap.String("action", action.String()))
	}

	log.Info("Action sequence complete", zap.Int("completed", result.Completed))
	return result, nil
}

func (o *Orchestrator) stageFailed(stage Stage, err error) error {
	o.logger.Warn("Stage failed", zap.String("stage", string(stage)), zap.Error(err))
	return &StageError{Stage: stage, Err: err}
}
