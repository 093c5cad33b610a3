// File: cmd/simulation.go
package cmd

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/simclient/api/schemas"
	"github.com/xkilldash9x/simclient/internal/config"
	"github.com/xkilldash9x/simclient/internal/observability"
	"github.com/xkilldash9x/simclient/internal/orchestrator"
	"github.com/xkilldash9x/simclient/internal/plan"
	"github.com/xkilldash9x/simclient/internal/simclient"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// -- Shared helpers --

// newClient builds a simulation client from the loaded configuration.
func newClient(cmd *cobra.Command) (*simclient.Client, config.Interface, error) {
	cfg, err := configFrom(cmd)
	if err != nil {
		return nil, nil, err
	}
	client, err := simclient.NewFromConfig(cfg, observability.GetLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create simulation client: %w", err)
	}
	return client, cfg, nil
}

// newRunner builds an orchestrator over a fresh client.
func newRunner(cmd *cobra.Command) (*orchestrator.Orchestrator, config.Interface, error) {
	client, cfg, err := newClient(cmd)
	if err != nil {
		return nil, nil, err
	}
	runner, err := orchestrator.New(client, observability.GetLogger())
	if err != nil {
		return nil, nil, err
	}
	return runner, cfg, nil
}

// printJSON writes v to the command's output as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func parseSimulationArg(arg string) (int64, error) {
	id, err := schemas.ParseSimulationID(arg)
	if err != nil {
		return 0, &simclient.ValidationError{Field: "simulation_id", Reason: err.Error()}
	}
	return id, nil
}

func parseAgentArg(arg string) (int, error) {
	id, err := schemas.ParseAgentID(arg)
	if err != nil {
		return 0, &simclient.ValidationError{Field: "agent_id", Reason: err.Error()}
	}
	return id, nil
}

// addModeFlag registers --mode on cmd.
func addModeFlag(cmd *cobra.Command) {
	cmd.Flags().String("mode", "", "action mode as JSON (a bare word is sent as a JSON string); defaults to simulation.default_mode")
}

// resolveMode returns --mode when set, otherwise the configured default.
func resolveMode(cmd *cobra.Command, cfg config.Interface) schemas.Mode {
	if f := cmd.Flags().Lookup("mode"); f != nil && f.Changed {
		return schemas.ModeFromText(f.Value.String())
	}
	return schemas.ModeFromText(cfg.Simulation().DefaultMode)
}

// resolveEnvName prefers the positional argument and falls back to simulation.env_name.
func resolveEnvName(args []string, cfg config.Interface) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0])
	}
	return cfg.Simulation().EnvName
}

// -- Leaf commands --

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create [env-name]",
		Short: "Create a simulation from an environment template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := newClient(cmd)
			if err != nil {
				return err
			}
			result, err := client.CreateSimulation(cmd.Context(), resolveEnvName(args, cfg))
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <simulation-id>",
		Short: "Start a created simulation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			simulationID, err := parseSimulationArg(args[0])
			if err != nil {
				return err
			}
			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			result, err := client.StartSimulation(cmd.Context(), simulationID)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <simulation-id> <agent-id>",
		Short: "Read the status of one agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			simulationID, err := parseSimulationArg(args[0])
			if err != nil {
				return err
			}
			agentID, err := parseAgentArg(args[1])
			if err != nil {
				return err
			}
			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			status, err := client.GetAgentStatus(cmd.Context(), simulationID, agentID)
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
}

func newActCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "act <simulation-id> <agent-id> <action>",
		Short: "Submit a single agent action without stepping",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			simulationID, err := parseSimulationArg(args[0])
			if err != nil {
				return err
			}
			agentID, err := parseAgentArg(args[1])
			if err != nil {
				return err
			}
			action, err := schemas.ParseAgentAction(args[2])
			if err != nil {
				return &simclient.ValidationError{Field: "action", Reason: err.Error()}
			}
			client, cfg, err := newClient(cmd)
			if err != nil {
				return err
			}
			result, err := client.PerformAgentAction(cmd.Context(), simulationID, agentID, action, resolveMode(cmd, cfg))
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	addModeFlag(cmd)
	return cmd
}

func newStepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "step <simulation-id>",
		Short: "Advance a simulation by one step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			simulationID, err := parseSimulationArg(args[0])
			if err != nil {
				return err
			}
			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			result, err := client.SimulateStep(cmd.Context(), simulationID)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

// -- Orchestrated commands --

func newCycleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle <simulation-id> <agent-id> <action>",
		Short: "Run one action cycle: act, step, then read the agent status",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			simulationID, err := parseSimulationArg(args[0])
			if err != nil {
				return err
			}
			agentID, err := parseAgentArg(args[1])
			if err != nil {
				return err
			}
			action, err := schemas.ParseAgentAction(args[2])
			if err != nil {
				return &simclient.ValidationError{Field: "action", Reason: err.Error()}
			}
			runner, cfg, err := newRunner(cmd)
			if err != nil {
				return err
			}
			status, err := runner.SimulateAgentAction(cmd.Context(), simulationID, agentID, action, resolveMode(cmd, cfg))
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
	addModeFlag(cmd)
	return cmd
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [env-name]",
		Short: "Create and start a simulation, then read the status of its last agent",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, cfg, err := newRunner(cmd)
			if err != nil {
				return err
			}
			established, err := runner.Establish(cmd.Context(), resolveEnvName(args, cfg))
			if err != nil {
				return err
			}
			return printJSON(cmd, established)
		},
	}
}

func newRunCmd() *cobra.Command {
	var planFile string

	cmd := &cobra.Command{
		Use:   "run [simulation-id agent-id] [actions...]",
		Short: "Run an ordered list of actions, one full cycle each, stopping at the first failure",
		Long: `Run replays actions against one agent. Each action is submitted, the
simulation is stepped, and the agent status is read before the next action.

Actions come either from the command line:
  simclient run 12 2 moveForward turnLeft pickUp
or from a plan file, whose ids may be overridden by positional arguments:
  simclient run --plan patrol.yaml
  simclient run 12 2 --plan patrol.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				simulationID int64
				agentID      int
				actions      schemas.ActionSequence
				p            *plan.Plan
				err          error
			)

			if planFile != "" {
				if p, err = plan.Load(planFile); err != nil {
					return err
				}
				switch len(args) {
				case 0:
					if p.SimulationID == nil || p.AgentID == nil {
						return fmt.Errorf("plan %s must set simulation_id and agent_id, or pass them as arguments", planFile)
					}
					simulationID, agentID = *p.SimulationID, *p.AgentID
				case 2:
					if simulationID, err = parseSimulationArg(args[0]); err != nil {
						return err
					}
					if agentID, err = parseAgentArg(args[1]); err != nil {
						return err
					}
				default:
					return fmt.Errorf("with --plan, pass either no arguments or <simulation-id> <agent-id>")
				}
				actions = p.Actions
			} else {
				if len(args) < 2 {
					return fmt.Errorf("requires <simulation-id> <agent-id> followed by actions, or --plan")
				}
				if simulationID, err = parseSimulationArg(args[0]); err != nil {
					return err
				}
				if agentID, err = parseAgentArg(args[1]); err != nil {
					return err
				}
				if actions, err = schemas.ParseAgentActions(args[2:]); err != nil {
					return &simclient.ValidationError{Field: "actions", Reason: err.Error()}
				}
			}

			runner, cfg, err := newRunner(cmd)
			if err != nil {
				return err
			}

			// --mode wins over the plan, which wins over simulation.default_mode.
			mode := resolveMode(cmd, cfg)
			if p != nil && !cmd.Flags().Changed("mode") {
				mode = p.ModeOr(mode)
			}

			result, runErr := runner.ExecuteActionArray(cmd.Context(), simulationID, agentID, actions, mode)
			if result != nil {
				if err := printJSON(cmd, result); err != nil {
					return err
				}
			}
			if runErr != nil {
				observability.GetLogger().Warn("Action sequence incomplete",
					zap.Int("completed", completedOf(result)),
					zap.Int("total", len(actions)),
				)
				return runErr
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&planFile, "plan", "p", "", "YAML plan file with simulation_id, agent_id, mode and actions")
	addModeFlag(cmd)
	return cmd
}

func completedOf(result *schemas.SequenceResult) int {
	if result == nil {
		return 0
	}
	return result.Completed
}

// -- Offline commands --

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "actions",
		Short:       "List the supported agent actions",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{offlineAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range schemas.AllAgentActions {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), a); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
