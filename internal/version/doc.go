// Package version exposes build metadata for the relay.
//
// Version, Commit and BuildTime are injected with -ldflags at build time.
package version
