package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Option names shared by command-line flags and environment variables.
const (
	OptionCalendarPath   = "calendar-path"
	OptionStateFile      = "state-file"
	OptionBroker         = "broker"
	OptionTopic          = "topic"
	OptionTransport      = "transport"
	OptionBrokerTimeout  = "broker-timeout"
	OptionTimezone       = "timezone"
	OptionReloadInterval = "reload-interval"
	OptionReloadSchedule = "reload-schedule"
	OptionCycleInterval  = "cycle-interval"
	OptionLookbehind     = "lookbehind"
	OptionHorizon        = "horizon"
	OptionWatch          = "watch"
	OptionHealthAddress  = "health-address"
	OptionVerbose        = "verbose"
	OptionLogLevel       = "log-level"
	OptionLogFile        = "log-file"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "ICAL_ALARM_RELAY_"

// ErrUnknownOption is returned by Set for names outside the option table.
var ErrUnknownOption = errors.New("unknown option")

// setter applies a textual value to one field.
type setter func(cfg *Config, value string) error

// setters maps option names to the fields they control.
//
//nolint:gochecknoglobals // Read-only lookup table.
var setters = map[string]setter{
	OptionCalendarPath: func(cfg *Config, value string) error {
		cfg.CalendarPath = value

		return nil
	},
	OptionStateFile: func(cfg *Config, value string) error {
		cfg.StateFile = value

		return nil
	},
	OptionBroker: func(cfg *Config, value string) error {
		cfg.Broker.Host = value

		return nil
	},
	OptionTopic: func(cfg *Config, value string) error {
		cfg.Broker.Topic = value

		return nil
	},
	OptionTransport: func(cfg *Config, value string) error {
		cfg.Broker.Transport = strings.ToLower(value)

		return nil
	},
	OptionBrokerTimeout: durationSetter(func(cfg *Config) *time.Duration { return &cfg.Broker.Timeout }),
	OptionTimezone: func(cfg *Config, value string) error {
		cfg.Timezone = value

		return nil
	},
	OptionReloadInterval: durationSetter(func(cfg *Config) *time.Duration { return &cfg.ReloadInterval }),
	OptionReloadSchedule: func(cfg *Config, value string) error {
		cfg.ReloadSchedule = value

		return nil
	},
	OptionCycleInterval: durationSetter(func(cfg *Config) *time.Duration { return &cfg.CycleInterval }),
	OptionLookbehind:    durationSetter(func(cfg *Config) *time.Duration { return &cfg.Lookbehind }),
	OptionHorizon:       durationSetter(func(cfg *Config) *time.Duration { return &cfg.Horizon }),
	OptionWatch: func(cfg *Config, value string) error {
		watch, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}

		cfg.Watch = watch

		return nil
	},
	OptionHealthAddress: func(cfg *Config, value string) error {
		cfg.HealthAddress = value

		return nil
	},
	OptionVerbose: func(cfg *Config, value string) error {
		verbose, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}

		if verbose {
			cfg.LogLevel = "debug"
		}

		return nil
	},
	OptionLogLevel: func(cfg *Config, value string) error {
		cfg.LogLevel = value

		return nil
	},
	OptionLogFile: func(cfg *Config, value string) error {
		cfg.LogFile = value

		return nil
	},
}

// durationSetter parses Go duration strings into the field returned by field.
func durationSetter(field func(cfg *Config) *time.Duration) setter {
	return func(cfg *Config, value string) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}

		*field(cfg) = d

		return nil
	}
}

// Set applies value to the option called name.
// Names not in the table are rejected with ErrUnknownOption.
func Set(cfg *Config, name, value string) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	set, ok := setters[name]
	if !ok {
		return &OptionError{Option: name, Value: value, Err: ErrUnknownOption}
	}

	if err := set(cfg, value); err != nil {
		return &OptionError{Option: name, Value: value, Err: err}
	}

	return nil
}

// IsOption reports whether name is a known option.
func IsOption(name string) bool {
	_, ok := setters[name]

	return ok
}

// EnvName returns the environment variable that overrides the option.
func EnvName(option string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(option, "-", "_"))
}

// LoadEnvFile reads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error. Variables already set are kept.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}

	return nil
}

// ApplyEnv overrides cfg with every ICAL_ALARM_RELAY_* variable that is set.
// Options are applied in name order, the same order flags are visited in,
// so verbose wins over log-level.
func ApplyEnv(cfg *Config) error {
	for _, name := range slices.Sorted(maps.Keys(setters)) {
		value, ok := os.LookupEnv(EnvName(name))
		if !ok {
			continue
		}

		if err := Set(cfg, name, value); err != nil {
			return err
		}
	}

	return nil
}
