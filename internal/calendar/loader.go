package calendar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/ical-alarm-relay/internal/domain/alarm"
	"github.com/oshokin/ical-alarm-relay/internal/logger"
)

// Extension is the file suffix of calendar files, matched case-insensitively.
const Extension = ".ics"

const (
	// DefaultLookbehind is how far before the load time occurrences are kept.
	DefaultLookbehind = 24 * time.Hour
	// DefaultHorizon is how far after the load time occurrences are expanded.
	DefaultHorizon = 365 * 24 * time.Hour
)

// Options configures a Loader.
type Options struct {
	// Dir is the directory scanned for calendar files.
	Dir string
	// Location is the zone every time is converted into. Nil means time.Local.
	Location *time.Location
	// Lookbehind is how far before now occurrence starts are accepted.
	Lookbehind time.Duration
	// Horizon is how far after now occurrence starts are accepted.
	Horizon time.Duration
}

// Loader builds alarm batches from a calendar directory.
type Loader struct {
	dir        string
	location   *time.Location
	lookbehind time.Duration
	horizon    time.Duration
}

// NewLoader returns a Loader for opts, filling in defaults.
func NewLoader(opts Options) *Loader {
	l := &Loader{
		dir:        opts.Dir,
		location:   opts.Location,
		lookbehind: opts.Lookbehind,
		horizon:    opts.Horizon,
	}

	if l.location == nil {
		l.location = time.Local
	}

	if l.lookbehind < 0 {
		l.lookbehind = DefaultLookbehind
	}

	if l.horizon <= 0 {
		l.horizon = DefaultHorizon
	}

	return l
}

// Dir returns the scanned directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Files lists the calendar files of the directory in lexical order.
func (l *Loader) Files() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read calendar directory: %w", err)
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !IsCalendarFile(entry.Name()) {
			continue
		}

		files = append(files, filepath.Join(l.dir, entry.Name()))
	}

	return files, nil
}

// Load reads every calendar file and expands the occurrences whose start
// lies within the window around now. Unreadable or malformed files are
// logged and skipped. An error is returned only when the directory itself
// cannot be listed or ctx is done.
func (l *Loader) Load(ctx context.Context, now time.Time) (*alarm.Batch, error) {
	files, err := l.Files()
	if err != nil {
		return nil, err
	}

	var events []sourced

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		parsed, err := l.parseFile(ctx, path)
		if err != nil {
			logger.WarnKV(ctx, "Skipping calendar file", "file", path, "error", err)

			continue
		}

		events = append(events, parsed...)
	}

	now = now.In(l.location)
	x := expand(events, window{
		start:    now.Add(-l.lookbehind),
		end:      now.Add(l.horizon),
		location: l.location,
	})

	for _, failure := range x.failures {
		logger.WarnKV(ctx, "Skipping event", "uid", failure.uid, "error", failure.err)
	}

	for _, uid := range x.truncated {
		logger.WarnKV(ctx, "Recurrence truncated", "uid", uid, "cap", maxOccurrencesPerEvent)
	}

	logger.InfoKV(ctx, "Calendars loaded",
		"dir", l.dir,
		"files", len(files),
		"occurrences", len(x.batch.Occurrences),
		"alarms", x.batch.Len(),
	)

	return x.batch, nil
}

// parseFile reads the events of one file.
func (l *Loader) parseFile(ctx context.Context, path string) ([]sourced, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	defer func() {
		if err := f.Close(); err != nil {
			logger.WarnKV(ctx, "Failed to close calendar file", "file", path, "error", err)
		}
	}()

	events, skips, err := parseCalendar(f, l.location)
	if err != nil {
		return nil, err
	}

	for _, skip := range skips {
		logger.WarnKV(ctx, "Skipping calendar component", "file", path, "uid", skip.uid, "error", skip.err)
	}

	result := make([]sourced, 0, len(events))
	for _, ev := range events {
		result = append(result, sourced{event: ev, source: path})
	}

	logger.DebugKV(ctx, "Calendar file parsed", "file", path, "events", len(result))

	return result, nil
}

// IsCalendarFile reports whether name has the calendar extension.
func IsCalendarFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), Extension)
}
