package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oshokin/ical-alarm-relay/internal/calendar"
	"github.com/oshokin/ical-alarm-relay/internal/config"
	"github.com/oshokin/ical-alarm-relay/internal/logger"
	"github.com/oshokin/ical-alarm-relay/internal/notifier"
	"github.com/oshokin/ical-alarm-relay/internal/repository/state"
	"github.com/oshokin/ical-alarm-relay/internal/service/health"
	"github.com/oshokin/ical-alarm-relay/internal/service/instance"
	"github.com/oshokin/ical-alarm-relay/internal/version"
)

// Run validates cfg, locks and opens the state artifact and runs the loop
// until ctx is canceled. A corrupt artifact or another relay using the same
// state file stops it early.
//
//nolint:funlen // Linear wiring of the components.
func Run(ctx context.Context, cfg *config.Config) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, version.Name)

	if err := config.Validate(cfg); err != nil {
		return err
	}

	guard := instance.NewGuard(cfg.StateFile)
	if err := guard.Acquire(); err != nil {
		return err
	}

	defer func() {
		if err := guard.Release(); err != nil {
			logger.WarnKV(ctx, "Failed to release state lock", "lock", guard.Path(), "error", err)
		}
	}()

	store, err := state.Open(ctx, state.NewFileRepository(cfg.StateFile))
	if err != nil {
		return err
	}

	publisher, err := notifier.New(notifier.Options{
		Transport: cfg.Broker.Transport,
		Host:      cfg.Broker.Host,
		Timeout:   cfg.Broker.Timeout,
	})
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc := &service{
		loader: calendar.NewLoader(calendar.Options{
			Dir:        cfg.CalendarPath,
			Location:   cfg.Location,
			Lookbehind: cfg.Lookbehind,
			Horizon:    cfg.Horizon,
		}),
		notifier: notifier.NewNotifier(publisher, cfg.Broker.Topic),
		store:    store,
		status:   nopStatus{},
		reload:   reloadSchedule(cfg),
		clock:    time.Now,
		location: cfg.Location,
	}

	if cfg.HealthAddress != "" {
		hs, err := health.Listen(ctx, cfg.HealthAddress, version.Name)
		if err != nil {
			return err
		}

		served := make(chan error, 1)

		go func() {
			served <- hs.Serve(ctx)
		}()

		defer func() {
			cancel()

			if err := <-served; err != nil {
				logger.ErrorKV(ctx, "Health server failed", "error", err)
			}
		}()

		svc.status = hs
	}

	var changes <-chan struct{}

	if cfg.Watch {
		watcher, err := calendar.NewWatcher(ctx, cfg.CalendarPath)
		if err != nil {
			return err
		}

		defer func() {
			if err := watcher.Close(); err != nil {
				logger.WarnKV(ctx, "Failed to close calendar watcher", "error", err)
			}
		}()

		changes = watcher.Changes()
	}

	logger.InfoKV(ctx, "Relay started",
		"calendar_path", cfg.CalendarPath,
		"state_file", cfg.StateFile,
		"transport", cfg.Broker.Transport,
		"broker", cfg.Broker.Host,
		"topic", cfg.Broker.Topic,
		"timezone", cfg.Location.String(),
		"stored_alarms", store.Len(),
	)

	svc.run(ctx, cfg.CycleInterval, changes)

	return nil
}

// reloadSchedule returns the cron schedule if one is configured, otherwise
// a constant delay of the reload interval.
//
//nolint:ireturn // cron.Schedule is the abstraction.
func reloadSchedule(cfg *config.Config) cron.Schedule {
	if cfg.Schedule != nil {
		return cfg.Schedule
	}

	return cron.Every(cfg.ReloadInterval)
}
