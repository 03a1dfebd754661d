// Package logger wraps zap for the relay.
//
// A sugared logger travels inside context.Context (ToContext, FromContext,
// WithName, WithKV) so every component logs through the handle it was given.
// Setup builds the process logger from the CLI options: a console core on
// stdout and, optionally, a JSON core writing to a lumberjack-rotated file.
package logger
