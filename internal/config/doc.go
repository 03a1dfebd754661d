// Package config defines the relay settings and the layers that produce them:
// built-in defaults, an optional YAML file, a .env file with
// ICAL_ALARM_RELAY_* variables, and command-line flags, in that order.
//
// Validate resolves the timezone and the optional cron reload schedule and
// reports the first rejected option as an *OptionError.
package config
