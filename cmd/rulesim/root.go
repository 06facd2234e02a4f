package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/liamcoop/rulesim/engine"
	"github.com/liamcoop/rulesim/internal/logger"
)

// Config is the resolved CLI configuration. Values come from flags, the
// RULESIM_* environment and an optional config file, in that precedence.
type Config struct {
	FixturesRoot     string        `mapstructure:"fixturesRoot"`
	SourceSet        string        `mapstructure:"sourceSet"`
	ListenAddr       string        `mapstructure:"listenAddr"`
	LogLevel         string        `mapstructure:"logLevel"`
	ConditionTimeout time.Duration `mapstructure:"conditionTimeout"`
}

// RootOptions holds global state shared by all subcommands.
type RootOptions struct {
	ConfigFile string
	Config     Config
}

// NewRootCommand creates the rulesim root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "rulesim",
		Short:         "Rule simulation engine",
		Long:          "Simulate declarative rules against fixture source sets, with a full per-condition evaluation trace.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(opts, cmd); err != nil {
				return err
			}
			if opts.Config.LogLevel != "" {
				level, err := logger.ParseLevel(opts.Config.LogLevel)
				if err != nil {
					return err
				}
				logger.SetLevel(level)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default: ./rulesim.yaml)")
	cmd.PersistentFlags().String("fixtures", "fixtures", "root directory holding source sets")
	cmd.PersistentFlags().String("source-set", "", "source set to initialize the engine with")
	cmd.PersistentFlags().String("log-level", "", "minimum log level (TRACE..FATAL)")
	cmd.PersistentFlags().Duration("condition-timeout", 0, "per-condition fact resolution timeout (0 disables)")

	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewGlobalCommand(opts))
	cmd.AddCommand(NewFilesCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// loadConfig merges flags, environment and the optional config file into
// opts.Config.
func loadConfig(opts *RootOptions, cmd *cobra.Command) error {
	v := viper.New()
	v.SetDefault("fixturesRoot", "fixtures")
	v.SetDefault("listenAddr", ":8080")

	v.SetEnvPrefix("RULESIM")
	v.AutomaticEnv()

	if err := v.BindPFlag("fixturesRoot", cmd.Flags().Lookup("fixtures")); err != nil {
		return err
	}
	if err := v.BindPFlag("sourceSet", cmd.Flags().Lookup("source-set")); err != nil {
		return err
	}
	if err := v.BindPFlag("logLevel", cmd.Flags().Lookup("log-level")); err != nil {
		return err
	}
	if err := v.BindPFlag("conditionTimeout", cmd.Flags().Lookup("condition-timeout")); err != nil {
		return err
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		v.SetConfigName("rulesim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	return v.Unmarshal(&opts.Config)
}

// newReadyEngine builds a controller, initializes it for the configured
// source set, and returns a simulator over it.
func newReadyEngine(ctx context.Context, opts *RootOptions) (*engine.Controller, *engine.Simulator, error) {
	if opts.Config.SourceSet == "" {
		return nil, nil, fmt.Errorf("a source set is required (--source-set or RULESIM_SOURCESET)")
	}

	ctrl := engine.NewController(opts.Config.FixturesRoot)
	err := ctrl.Initialize(ctx, opts.Config.SourceSet, func(step string, percent int) {
		logger.Debug("initializing", "step", step, "percent", percent)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("engine initialization failed: %w", err)
	}
	return ctrl, engine.NewSimulator(ctrl), nil
}

// simOptions maps the resolved configuration onto engine options.
func simOptions(opts *RootOptions) engine.Options {
	return engine.Options{ConditionTimeout: opts.Config.ConditionTimeout}
}
