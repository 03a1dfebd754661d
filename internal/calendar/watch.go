package calendar

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/ical-alarm-relay/internal/logger"
)

// relevantOps are the directory changes that make a batch stale.
const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Watcher reports changes to the calendar files of a directory.
type Watcher struct {
	watcher *fsnotify.Watcher
	changes chan struct{}
	done    chan struct{}
}

// NewWatcher starts watching dir until ctx is done or Close is called.
// Bursts of events collapse into a single pending notification.
func NewWatcher(ctx context.Context, dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := fw.Add(dir); err != nil {
		_ = fw.Close()

		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		watcher: fw,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	go w.run(ctx)

	return w, nil
}

// Changes delivers a value after calendar files were created, written,
// renamed or removed.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done

	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&relevantOps == 0 || !IsCalendarFile(event.Name) {
				continue
			}

			logger.DebugKV(ctx, "Calendar change detected", "file", event.Name, "op", event.Op.String())

			select {
			case w.changes <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			logger.WarnKV(ctx, "Calendar watcher error", "error", err)
		}
	}
}
