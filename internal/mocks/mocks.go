// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/simclient/api/schemas"
	"github.com/xkilldash9x/simclient/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Simulation() config.SimulationConfig {
	args := m.Called()
	return args.Get(0).(config.SimulationConfig)
}

func (m *MockConfig) Network() config.NetworkConfig {
	args := m.Called()
	return args.Get(0).(config.NetworkConfig)
}

// --- Setters ---

func (m *MockConfig) SetSimulationHost(h string) {
	m.Called(h)
}

func (m *MockConfig) SetSimulationEnvName(n string) {
	m.Called(n)
}

func (m *MockConfig) SetNetworkTimeout(d time.Duration) {
	m.Called(d)
}

func (m *MockConfig) SetNetworkIgnoreTLSErrors(b bool) {
	m.Called(b)
}

var _ config.Interface = (*MockConfig)(nil)

// -- Simulation API Mock --

// MockSimulationAPI mocks schemas.SimulationAPI so the orchestration can be
// tested without a simulation service.
type MockSimulationAPI struct {
	mock.Mock
}

func (m *MockSimulationAPI) CreateSimulation(ctx context.Context, envName string) (*schemas.SimulationCreateResult, error) {
	args := m.Called(ctx, envName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.SimulationCreateResult), args.Error(1)
}

func (m *MockSimulationAPI) StartSimulation(ctx context.Context, simulationID int64) (*schemas.SimulationStartResult, error) {
	args := m.Called(ctx, simulationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.SimulationStartResult), args.Error(1)
}

func (m *MockSimulationAPI) GetAgentStatus(ctx context.Context, simulationID int64, agentID int) (*schemas.AgentStatus, error) {
	args := m.Called(ctx, simulationID, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.AgentStatus), args.Error(1)
}

func (m *MockSimulationAPI) PerformAgentAction(ctx context.Context, simulationID int64, agentID int, action schemas.AgentAction, mode schemas.Mode) (*schemas.ActionResult, error) {
	args := m.Called(ctx, simulationID, agentID, action, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.ActionResult), args.Error(1)
}

func (m *MockSimulationAPI) SimulateStep(ctx context.Context, simulationID int64) (*schemas.StepResult, error) {
	args := m.Called(ctx, simulationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.StepResult), args.Error(1)
}

var _ schemas.SimulationAPI = (*MockSimulationAPI)(nil)
