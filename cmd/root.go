// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/simclient/internal/config"
	"github.com/xkilldash9x/simclient/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// offlineAnnotation marks commands that never contact the simulation service
// and so do not require simulation.host.
const offlineAnnotation = "offline"

var osExit = os.Exit

// newRootCmd builds the command tree. Each invocation gets its own viper
// instance so nothing leaks between runs.
func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "simclient",
		Short:         "simclient drives a remote simulation service from the command line.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "simclient"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := loadConfig(cmd, v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "simclient"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting simclient", zap.String("version", Version), zap.String("command", cmd.Name()))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./simclient.yaml or ~/.simclient/simclient.yaml)")
	root.PersistentFlags().String("host", "", "simulation service host, optionally with port (env SIMCLIENT_SIMULATION_HOST)")
	root.PersistentFlags().String("env-name", "", "environment template for create and init (env SIMCLIENT_SIMULATION_ENV_NAME)")
	root.PersistentFlags().Bool("insecure", false, "skip TLS certificate verification for this run")
	root.PersistentFlags().Duration("timeout", 0, "per-request timeout, e.g. 10s (0 disables the bound)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.SetVersionTemplate(`{{printf "simclient version %s\n" .Version}}`)

	root.AddCommand(
		newCreateCmd(),
		newStartCmd(),
		newStatusCmd(),
		newActCmd(),
		newStepCmd(),
		newCycleCmd(),
		newInitCmd(),
		newRunCmd(),
		newActionsCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command with a signal-aware context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		observability.Sync()
		osExit(1)
	}
	observability.Sync()
}

// initializeConfig wires the config file, the environment and the flags into v.
// Precedence: flags, environment, file, defaults.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".simclient"))
		}
		v.SetConfigName("simclient")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SIMCLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Only the log level is bound here; the remaining flags are applied to the
	// decoded config by applyFlagOverrides.
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		if err := v.BindPFlag("logger.level", f); err != nil {
			return err
		}
	}
	return nil
}

// loadConfig decodes v, applies the command line overrides and validates the
// result, except for offline commands which only need logging settings.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	cfg, err := config.DecodeViper(v)
	if err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return nil, err
	}
	if cmd.Annotations[offlineAnnotation] == "true" {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFlagOverrides copies explicitly set flags onto cfg. Unset flags, and an
// empty --host or --env-name, leave the file and environment values alone.
func applyFlagOverrides(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()

	if flags.Changed("host") {
		host, err := flags.GetString("host")
		if err != nil {
			return err
		}
		if host != "" {
			cfg.SetSimulationHost(host)
		}
	}
	if flags.Changed("env-name") {
		name, err := flags.GetString("env-name")
		if err != nil {
			return err
		}
		if name != "" {
			cfg.SetSimulationEnvName(name)
		}
	}
	if flags.Changed("insecure") {
		insecure, err := flags.GetBool("insecure")
		if err != nil {
			return err
		}
		cfg.SetNetworkIgnoreTLSErrors(insecure)
	}
	if flags.Changed("timeout") {
		timeout, err := flags.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.SetNetworkTimeout(timeout)
	}
	return nil
}

// configFrom returns the configuration stored by PersistentPreRunE.
func configFrom(cmd *cobra.Command) (config.Interface, error) {
	cfg, ok := cmd.Context().Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}
