package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/oshokin/ical-alarm-relay/internal/config"
	"github.com/oshokin/ical-alarm-relay/internal/logger"
	"github.com/oshokin/ical-alarm-relay/internal/service/relay"
	"github.com/oshokin/ical-alarm-relay/internal/version"
)

// defaultEnvFile is read when present.
const defaultEnvFile = ".env"

// sources names the optional files the effective configuration is built from.
type sources struct {
	// configPath to the configuration YAML file.
	configPath string
	// envFile with ICAL_ALARM_RELAY_* variables.
	envFile string
}

// NewRootCommand builds the relay command line.
func NewRootCommand() *cobra.Command {
	src := new(sources)

	rootCmd := &cobra.Command{
		Use:   version.Name,
		Short: "Publish calendar alarms to a message broker when they become due.",
		Long: `Reads every .ics file of a directory, expands recurring events and watches
their alarms. When an alarm becomes due it is published once as JSON to an MQTT,
NATS or Kafka topic and remembered in a state file, so a restart does not repeat it.
Alarms are forgotten again once they are no longer due.

Settings come from built-in defaults, an optional YAML file (--config), an optional
.env file, ICAL_ALARM_RELAY_* environment variables and flags, later ones winning.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cfg, err := src.build(cmd.Flags())
			if err != nil {
				return err
			}

			if err = config.Validate(cfg); err != nil {
				return err
			}

			level, _ := logger.ParseLogLevel(cfg.LogLevel)

			closeLog := logger.Setup(logger.Options{
				Level: level,
				File:  cfg.LogFile,
			})

			defer func() {
				_ = closeLog()
			}()

			if err = relay.Run(ctx, cfg); err != nil {
				logger.Errorf(ctx, "Relay stopped: %v", err)

				return err
			}

			return nil
		},
	}

	rootCmd.AddCommand(newConfigCommand(src))
	version.AttachCobraVersionCommand(rootCmd)
	bindFlags(rootCmd.PersistentFlags(), src)

	return rootCmd
}

// Execute runs the relay CLI and exits with non-zero status on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newConfigCommand prints or saves the effective configuration.
func newConfigCommand(src *sources) *cobra.Command {
	return &cobra.Command{
		Use:   "config [path]",
		Short: "Print the effective configuration as YAML, or save it to path.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := src.build(cmd.Flags())
			if err != nil {
				return err
			}

			if len(args) > 0 {
				return config.Save(args[0], cfg)
			}

			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(data)

			return err
		},
	}
}

// build layers the configuration: defaults, YAML file, .env file,
// environment variables, then the flags that were set explicitly.
func (s *sources) build(flags *pflag.FlagSet) (*config.Config, error) {
	if err := config.LoadEnvFile(s.envFile); err != nil {
		return nil, err
	}

	cfg := config.Default()

	if s.configPath != "" {
		loaded, err := config.Load(s.configPath)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	var flagErr error

	flags.Visit(func(flag *pflag.Flag) {
		if flagErr != nil || !config.IsOption(flag.Name) {
			return
		}

		flagErr = config.Set(cfg, flag.Name, flag.Value.String())
	})

	if flagErr != nil {
		return nil, fmt.Errorf("apply flags: %w", flagErr)
	}

	return cfg, nil
}

// bindFlags declares every option flag. Defaults are informational only:
// a flag overrides the other layers only when it is set.
func bindFlags(flags *pflag.FlagSet, src *sources) {
	defaults := config.Default()

	// Setup command flags with consistent naming and descriptions.
	flags.StringVarP(&src.configPath, "config", "c", "", "path to an optional YAML settings file")
	flags.StringVar(&src.envFile, "env-file", defaultEnvFile, "path to an optional .env file")

	flags.StringP(config.OptionCalendarPath, "p", defaults.CalendarPath, "directory with .ics files")
	flags.StringP(config.OptionStateFile, "o", "", "JSON file listing already notified alarms (required)")
	flags.StringP(config.OptionBroker, "b", defaults.Broker.Host, "broker host, optionally host:port")
	flags.StringP(config.OptionTopic, "t", "", "topic or subject to publish to (required)")
	flags.String(config.OptionTransport, defaults.Broker.Transport, "transport: mqtt, nats, kafka or none")
	flags.Duration(config.OptionBrokerTimeout, defaults.Broker.Timeout, "broker connect and publish timeout")
	flags.StringP(config.OptionTimezone, "z", "", "IANA timezone, system zone when empty")
	flags.Duration(config.OptionReloadInterval, defaults.ReloadInterval, "how often calendars are re-read")
	flags.String(config.OptionReloadSchedule, "", "cron expression for calendar reloads, overrides --reload-interval")
	flags.Duration(config.OptionCycleInterval, defaults.CycleInterval, "pause between reconciliation cycles")
	flags.Duration(config.OptionLookbehind, defaults.Lookbehind, "how far back occurrences are expanded")
	flags.Duration(config.OptionHorizon, defaults.Horizon, "how far ahead occurrences are expanded")
	flags.Bool(config.OptionWatch, false, "reload calendars as soon as .ics files change")
	flags.String(config.OptionHealthAddress, "", "serve the gRPC health service on this address")
	flags.BoolP(config.OptionVerbose, "v", false, "debug logging")
	flags.String(config.OptionLogLevel, defaults.LogLevel, "log level: debug, info, warn, error")
	flags.String(config.OptionLogFile, "", "also write logs to this rotated file")
}
