package relay

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oshokin/ical-alarm-relay/internal/domain/alarm"
	"github.com/oshokin/ical-alarm-relay/internal/logger"
	"github.com/oshokin/ical-alarm-relay/internal/repository/state"
)

// Loader produces a fresh batch of alarms.
type Loader interface {
	Load(ctx context.Context, now time.Time) (*alarm.Batch, error)
}

// Notifier delivers one record.
type Notifier interface {
	Notify(ctx context.Context, record alarm.Record) error
}

// StatusReporter receives the health of the loop after every cycle.
type StatusReporter interface {
	SetServing(serving bool)
}

// CycleResult summarizes one tick.
type CycleResult struct {
	// Reloaded is set when the batch was rebuilt on this tick.
	Reloaded bool
	// Skipped is set when no batch was ever loaded and nothing was done.
	Skipped bool
	// Selected is the number of identities after deduplication.
	Selected int
	// Due is the number of identities whose trigger has passed.
	Due int
	// Notified counts successful notifications.
	Notified int
	// Failed counts notifications that could not be delivered.
	Failed int
	// Retired counts identities removed from the store.
	Retired int
	// Persisted is set when the store was written successfully.
	Persisted bool
}

// service holds the loop state. All methods run on the loop goroutine.
type service struct {
	loader   Loader
	notifier Notifier
	store    *state.Store
	status   StatusReporter
	reload   cron.Schedule
	clock    func() time.Time
	location *time.Location

	batch      *alarm.Batch
	nextReload time.Time
	stale      bool
}

// now reads the clock in the configured location.
func (s *service) now() time.Time {
	return s.clock().In(s.location)
}

// markStale forces a reload on the next tick.
func (s *service) markStale() {
	s.stale = true
}

// tick runs one reconciliation step at the current time.
func (s *service) tick(ctx context.Context) CycleResult {
	now := s.now()

	var result CycleResult

	result.Reloaded = s.reloadIfDue(ctx, now)

	if s.batch == nil {
		logger.Warn(ctx, "No calendar data loaded yet, skipping cycle")
		s.status.SetServing(false)

		result.Skipped = true

		return result
	}

	s.cycle(ctx, now, &result)

	return result
}

// reloadIfDue rebuilds the batch when the reload time passed, the watcher
// marked it stale or no batch exists. It reports whether a new batch is in use.
func (s *service) reloadIfDue(ctx context.Context, now time.Time) bool {
	if s.batch != nil && !s.stale && now.Before(s.nextReload) {
		return false
	}

	batch, err := s.loader.Load(ctx, now)
	if err != nil {
		if s.batch == nil {
			logger.ErrorKV(ctx, "Failed to load calendars, will retry on next tick", "error", err)

			return false
		}

		logger.ErrorKV(ctx, "Failed to reload calendars, keeping previous data", "error", err)
	} else {
		s.batch = batch
	}

	s.stale = false
	s.nextReload = s.reload.Next(now)

	logger.DebugKV(ctx, "Next calendar reload scheduled", "at", s.nextReload)

	return err == nil
}

// cycle notifies newly due identities, retires the rest and persists.
func (s *service) cycle(ctx context.Context, now time.Time, result *CycleResult) {
	selection := alarm.Select(s.batch, now)
	evaluation := alarm.Evaluate(selection, now)
	due := evaluation.DueIdentities()

	result.Selected = selection.Len()
	result.Due = len(evaluation.Due)

	for _, pending := range evaluation.Pending {
		logger.DebugKV(ctx, "Alarm pending",
			"uid", pending.Identity,
			"summary", pending.Instance.Summary,
			"trigger", alarm.FormatTimestamp(pending.Instance.Trigger),
		)
	}

	for i := range evaluation.Due {
		selected := &evaluation.Due[i]

		if s.store.Has(selected.Identity) {
			logger.DebugKV(ctx, "Alarm already handled", "uid", selected.Identity)

			continue
		}

		record := alarm.NewRecord(selected, now)

		logger.InfoKV(ctx, "Handling alarm",
			"uid", record.UID,
			"summary", record.Summary,
			"time_left", record.TimeLeftToEvent,
		)

		if err := s.notifier.Notify(ctx, record); err != nil {
			logger.ErrorKV(ctx, "Failed to notify alarm", "uid", record.UID, "error", err)

			result.Failed++
		} else {
			result.Notified++
		}

		s.store.Upsert(record)
	}

	for _, identity := range s.store.IDs() {
		if _, ok := due[identity]; ok {
			continue
		}

		record, _ := s.store.Get(identity)
		s.store.Remove(identity)

		logger.InfoKV(ctx, "Alarm no longer active", "uid", identity, "summary", record.Summary)

		result.Retired++
	}

	if err := s.store.Persist(ctx); err != nil {
		logger.ErrorKV(ctx, "Failed to persist state", "error", err)
		s.status.SetServing(false)

		return
	}

	result.Persisted = true

	s.status.SetServing(true)
}

// run ticks immediately and then every interval until ctx is done.
// A tick in progress always completes.
func (s *service) run(ctx context.Context, interval time.Duration, changes <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cycleCtx := context.WithoutCancel(ctx)

	s.logResult(ctx, s.tick(cycleCtx))

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")

			return
		case <-changes:
			logger.Debug(ctx, "Calendar directory changed, reload scheduled")
			s.markStale()
		case <-ticker.C:
			s.logResult(ctx, s.tick(cycleCtx))
		}
	}
}

// logResult reports a tick at debug level.
func (s *service) logResult(ctx context.Context, result CycleResult) {
	logger.DebugKV(ctx, "Cycle finished",
		"reloaded", result.Reloaded,
		"skipped", result.Skipped,
		"selected", result.Selected,
		"due", result.Due,
		"notified", result.Notified,
		"failed", result.Failed,
		"retired", result.Retired,
		"stored", s.store.Len(),
	)
}

// nopStatus ignores status changes.
type nopStatus struct{}

func (nopStatus) SetServing(bool) {}
