package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestSet covers the option table.
func TestSet(t *testing.T) {
	t.Parallel()

	cfg := Default()

	require.NoError(t, Set(cfg, OptionBroker, "mqtt.local:1884"))
	require.NoError(t, Set(cfg, OptionTransport, "KAFKA"))
	require.NoError(t, Set(cfg, OptionCycleInterval, "1m"))
	require.NoError(t, Set(cfg, OptionWatch, "true"))
	require.NoError(t, Set(cfg, OptionVerbose, "true"))

	require.Equal(t, "mqtt.local:1884", cfg.Broker.Host)
	require.Equal(t, "kafka", cfg.Broker.Transport)
	require.Equal(t, time.Minute, cfg.CycleInterval)
	require.True(t, cfg.Watch)
	require.Equal(t, "debug", cfg.LogLevel)

	require.NoError(t, Set(cfg, OptionVerbose, "false"))
	require.Equal(t, "debug", cfg.LogLevel)

	var optionErr *OptionError

	require.ErrorAs(t, Set(cfg, OptionReloadInterval, "soon"), &optionErr)
	require.Equal(t, OptionReloadInterval, optionErr.Option)
	require.Equal(t, "soon", optionErr.Value)

	require.ErrorIs(t, Set(cfg, "colour", "blue"), ErrUnknownOption)
	require.False(t, IsOption("colour"))
	require.True(t, IsOption(OptionTopic))
}

// TestEnvName checks the variable naming scheme.
func TestEnvName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ICAL_ALARM_RELAY_STATE_FILE", EnvName(OptionStateFile))
	require.Equal(t, "ICAL_ALARM_RELAY_TOPIC", EnvName(OptionTopic))
}

// TestApplyEnv checks that set variables override the file values.
//
//nolint:paralleltest // t.Setenv forbids parallel tests.
func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvName(OptionTopic), "env/topic")
	t.Setenv(EnvName(OptionReloadSchedule), "0 * * * *")

	cfg := Default()
	cfg.Broker.Topic = "file/topic"

	require.NoError(t, ApplyEnv(cfg))
	require.Equal(t, "env/topic", cfg.Broker.Topic)
	require.Equal(t, "0 * * * *", cfg.ReloadSchedule)

	t.Setenv(EnvName(OptionVerbose), "true")
	t.Setenv(EnvName(OptionLogLevel), "warn")

	for range 20 {
		cfg.LogLevel = DefaultLogLevel

		require.NoError(t, ApplyEnv(cfg))
		require.Equal(t, "debug", cfg.LogLevel, "verbose is applied after log-level")
	}

	t.Setenv(EnvName(OptionHorizon), "forever")
	require.Error(t, ApplyEnv(cfg))
}

// TestLoadEnvFile checks .env loading without clobbering set variables.
//
//nolint:paralleltest // Mutates the process environment.
func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(""))
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))

	topic := EnvName(OptionTopic)
	broker := EnvName(OptionBroker)

	t.Setenv(topic, "already/set")
	t.Setenv(broker, "")
	require.NoError(t, os.Unsetenv(broker))

	path := filepath.Join(t.TempDir(), ".env")
	contents := topic + "=from/file\n" + broker + "=nats.local\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	require.NoError(t, LoadEnvFile(path))
	require.Equal(t, "already/set", os.Getenv(topic))
	require.Equal(t, "nats.local", os.Getenv(broker))
}
