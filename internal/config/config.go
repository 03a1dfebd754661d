package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/ical-alarm-relay/internal/logger"
)

// Broker holds the notification transport settings.
type Broker struct {
	// Transport selects the client: mqtt, nats, kafka or none.
	Transport string `yaml:"transport"`
	// Host is the broker host, optionally with a port.
	Host string `yaml:"host"`
	// Topic is the topic or subject notifications are published to.
	Topic string `yaml:"topic"`
	// Timeout bounds connecting and publishing.
	Timeout time.Duration `yaml:"timeout"`
}

// Config holds the relay settings.
type Config struct {
	// CalendarPath is the directory scanned for .ics files.
	CalendarPath string `yaml:"calendar_path"`
	// StateFile is the JSON artifact listing already notified alarms.
	StateFile string `yaml:"state_file"`
	// Broker describes where notifications go.
	Broker Broker `yaml:"broker"`
	// Timezone is an IANA zone name; empty means the system zone.
	Timezone string `yaml:"timezone"`
	// ReloadInterval is how often calendars are re-read.
	ReloadInterval time.Duration `yaml:"reload_interval"`
	// ReloadSchedule is an optional cron expression replacing ReloadInterval.
	ReloadSchedule string `yaml:"reload_schedule"`
	// CycleInterval is the pause between reconciliation cycles.
	CycleInterval time.Duration `yaml:"cycle_interval"`
	// Lookbehind is how far back occurrences are expanded.
	Lookbehind time.Duration `yaml:"lookbehind"`
	// Horizon is how far ahead occurrences are expanded.
	Horizon time.Duration `yaml:"horizon"`
	// Watch reloads calendars early when the directory changes.
	Watch bool `yaml:"watch"`
	// HealthAddress enables the gRPC health service when set.
	HealthAddress string `yaml:"health_address"`
	// LogLevel is the minimum log level.
	LogLevel string `yaml:"log_level"`
	// LogFile is an optional rotated log file.
	LogFile string `yaml:"log_file"`

	// Location is resolved from Timezone by Validate.
	Location *time.Location `yaml:"-"`
	// Schedule is parsed from ReloadSchedule by Validate.
	Schedule cron.Schedule `yaml:"-"`
}

const (
	// DefaultStateFilename is the default filename for the notified-alarms artifact.
	DefaultStateFilename = "ical-alarm-relay-state.json"

	// DefaultBrokerHost is used when no broker is given.
	DefaultBrokerHost = "localhost"

	// DefaultTimeout bounds broker connections and publishes.
	DefaultTimeout = 5 * time.Second

	// DefaultReloadInterval is how often calendars are re-read.
	DefaultReloadInterval = 300 * time.Second

	// DefaultCycleInterval is the reconciliation period.
	DefaultCycleInterval = 15 * time.Second

	// DefaultLookbehind is how far back occurrences are expanded.
	DefaultLookbehind = 24 * time.Hour

	// DefaultHorizon is how far ahead occurrences are expanded.
	DefaultHorizon = 365 * 24 * time.Hour

	// DefaultLogLevel keeps the daemon quiet unless something goes wrong.
	DefaultLogLevel = "error"

	// DefaultFilePermissions is the permission used for written files.
	DefaultFilePermissions = 0o600
)

// Transports lists the accepted Broker.Transport values.
//
//nolint:gochecknoglobals // Read-only lookup table.
var Transports = []string{"mqtt", "nats", "kafka", "none"}

var (
	// ErrRequired is returned when a mandatory option is empty.
	ErrRequired = errors.New("value is required")
	// ErrNotDirectory is returned when the calendar path is not a directory.
	ErrNotDirectory = errors.New("not an existing directory")
	// ErrNotPositive is returned for zero or negative durations.
	ErrNotPositive = errors.New("must be positive")
	// ErrNegative is returned for negative durations where zero is allowed.
	ErrNegative = errors.New("must not be negative")
	// ErrUnknownValue is returned for values outside an enumeration.
	ErrUnknownValue = errors.New("unknown value")
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
)

// OptionError reports which option was rejected and with what value.
type OptionError struct {
	// Option is the flag-style option name.
	Option string
	// Value is the rejected value as given.
	Value string
	// Err is the reason.
	Err error
}

// Error implements error.
func (e *OptionError) Error() string {
	return fmt.Sprintf("invalid option %s=%q: %v", e.Option, e.Value, e.Err)
}

// Unwrap returns the reason.
func (e *OptionError) Unwrap() error {
	return e.Err
}

// Default returns the built-in settings.
func Default() *Config {
	calendarPath, err := os.Getwd()
	if err != nil {
		calendarPath = "."
	}

	return &Config{
		CalendarPath: calendarPath,
		StateFile:    "",
		Broker: Broker{
			Transport: "mqtt",
			Host:      DefaultBrokerHost,
			Timeout:   DefaultTimeout,
		},
		ReloadInterval: DefaultReloadInterval,
		CycleInterval:  DefaultCycleInterval,
		Lookbehind:     DefaultLookbehind,
		Horizon:        DefaultHorizon,
		LogLevel:       DefaultLogLevel,
	}
}

// Load reads a YAML settings file on top of the defaults.
// It does not validate; callers apply overrides first and then Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return cfg, nil
}

// Marshal renders the settings as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, errConfigIsNotSet
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}

	return data, nil
}

// Save writes the settings to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the settings and resolves Location and Schedule.
// The first problem found is returned as an *OptionError.
//
//nolint:cyclop,funlen // A flat list of checks reads best.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	info, err := os.Stat(cfg.CalendarPath)
	if err != nil || !info.IsDir() {
		return &OptionError{Option: OptionCalendarPath, Value: cfg.CalendarPath, Err: ErrNotDirectory}
	}

	if cfg.StateFile == "" {
		return &OptionError{Option: OptionStateFile, Err: ErrRequired}
	}

	if cfg.Broker.Topic == "" {
		return &OptionError{Option: OptionTopic, Err: ErrRequired}
	}

	if cfg.Broker.Host == "" {
		return &OptionError{Option: OptionBroker, Err: ErrRequired}
	}

	if !isTransport(cfg.Broker.Transport) {
		return &OptionError{
			Option: OptionTransport,
			Value:  cfg.Broker.Transport,
			Err:    fmt.Errorf("%w, expected one of %s", ErrUnknownValue, strings.Join(Transports, ", ")),
		}
	}

	durations := []struct {
		option string
		value  time.Duration
	}{
		{OptionBrokerTimeout, cfg.Broker.Timeout},
		{OptionReloadInterval, cfg.ReloadInterval},
		{OptionCycleInterval, cfg.CycleInterval},
		{OptionHorizon, cfg.Horizon},
	}

	for _, d := range durations {
		if d.value <= 0 {
			return &OptionError{Option: d.option, Value: d.value.String(), Err: ErrNotPositive}
		}
	}

	if cfg.Lookbehind < 0 {
		return &OptionError{Option: OptionLookbehind, Value: cfg.Lookbehind.String(), Err: ErrNegative}
	}

	cfg.Location = time.Local
	if cfg.Timezone != "" {
		location, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return &OptionError{Option: OptionTimezone, Value: cfg.Timezone, Err: err}
		}

		cfg.Location = location
	}

	cfg.Schedule = nil
	if cfg.ReloadSchedule != "" {
		schedule, err := cron.ParseStandard(cfg.ReloadSchedule)
		if err != nil {
			return &OptionError{Option: OptionReloadSchedule, Value: cfg.ReloadSchedule, Err: err}
		}

		cfg.Schedule = schedule
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return &OptionError{Option: OptionLogLevel, Value: cfg.LogLevel, Err: ErrUnknownValue}
	}

	if cfg.HealthAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.HealthAddress); err != nil {
			return &OptionError{Option: OptionHealthAddress, Value: cfg.HealthAddress, Err: err}
		}
	}

	return nil
}

// isTransport reports whether name is a known transport.
func isTransport(name string) bool {
	for _, transport := range Transports {
		if name == transport {
			return true
		}
	}

	return false
}
