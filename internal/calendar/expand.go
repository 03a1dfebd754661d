package calendar

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/oshokin/ical-alarm-relay/internal/domain/alarm"
)

// maxOccurrencesPerEvent caps recurrence expansion of a single event.
const maxOccurrencesPerEvent = 5000

// window is the inclusive range occurrence starts must fall into.
type window struct {
	start    time.Time
	end      time.Time
	location *time.Location
}

// contains reports whether t lies inside the window.
func (w window) contains(t time.Time) bool {
	return !t.Before(w.start) && !t.After(w.end)
}

// sourced is an event together with the file it came from.
type sourced struct {
	event
	source string
}

// overrideSlot is an override together with whether a base instance used it.
type overrideSlot struct {
	sourced
	matched bool
}

// expansion collects the occurrences of a set of events into a batch.
type expansion struct {
	window    window
	batch     *alarm.Batch
	overrides map[string][]*overrideSlot
	truncated []string
	failures  []skipped
}

// expand turns events into occurrences inside w, in event order.
// Overrides replace the matching instance of their base event; overrides
// without a base in events are treated as single events.
func expand(events []sourced, w window) *expansion {
	x := &expansion{
		window:    w,
		batch:     new(alarm.Batch),
		overrides: make(map[string][]*overrideSlot),
	}

	bases := make(map[string]struct{}, len(events))

	for _, ev := range events {
		if ev.recurrenceID == nil {
			bases[ev.uid] = struct{}{}
		}
	}

	for _, ev := range events {
		if ev.recurrenceID == nil {
			continue
		}

		if _, ok := bases[ev.uid]; ok {
			x.overrides[ev.uid] = append(x.overrides[ev.uid], &overrideSlot{sourced: ev})
		}
	}

	for _, ev := range events {
		if ev.recurrenceID != nil {
			if _, ok := bases[ev.uid]; ok {
				continue
			}
		}

		if ev.rrule == "" {
			x.single(ev)

			continue
		}

		if err := x.recurring(ev); err != nil {
			x.failures = append(x.failures, skipped{uid: ev.uid, err: err})
		}
	}

	return x
}

// single adds a non-recurring event.
func (x *expansion) single(ev sourced) {
	defer x.moved(ev.uid)

	if !x.window.contains(ev.start) {
		return
	}

	if override, ok := x.override(ev.uid, ev.start); ok {
		ev = override
	}

	x.add(ev, ev.start, ev.end)
}

// recurring expands an RRULE event, applying EXDATEs and overrides.
func (x *expansion) recurring(ev sourced) error {
	options, err := rrule.StrToROptionInLocation(ev.rrule, ev.start.Location())
	if err != nil {
		return fmt.Errorf("RRULE %q: %w", ev.rrule, err)
	}

	options.Dtstart = ev.start

	rule, err := rrule.NewRRule(*options)
	if err != nil {
		return fmt.Errorf("RRULE %q: %w", ev.rrule, err)
	}

	var set rrule.Set

	set.RRule(rule)

	for _, exdate := range ev.exdates {
		set.ExDate(exdate.In(ev.start.Location()))
	}

	starts := set.Between(
		x.window.start.In(ev.start.Location()),
		x.window.end.In(ev.start.Location()),
		true,
	)

	if len(starts) > maxOccurrencesPerEvent {
		starts = starts[:maxOccurrencesPerEvent]
		x.truncated = append(x.truncated, ev.uid)
	}

	length := ev.end.Sub(ev.start)

	for _, start := range starts {
		if override, ok := x.override(ev.uid, start); ok {
			x.add(override, override.start, override.end)

			continue
		}

		x.add(ev, start, start.Add(length))
	}

	x.moved(ev.uid)

	return nil
}

// override finds the override of uid whose RECURRENCE-ID equals start
// and marks it as used.
func (x *expansion) override(uid string, start time.Time) (sourced, bool) {
	for _, candidate := range x.overrides[uid] {
		if candidate.recurrenceID.Equal(start) {
			candidate.matched = true

			return candidate.sourced, true
		}
	}

	return sourced{}, false
}

// moved adds the unused overrides of uid that start inside the window.
// Their original slot lies outside the window or was never generated.
func (x *expansion) moved(uid string) {
	for _, candidate := range x.overrides[uid] {
		if candidate.matched || !x.window.contains(candidate.start) {
			continue
		}

		candidate.matched = true

		x.add(candidate.sourced, candidate.start, candidate.end)
	}
}

// add appends one occurrence of ev with its alarms.
func (x *expansion) add(ev sourced, start, end time.Time) {
	if ev.cancelled {
		return
	}

	location := x.window.location
	occurrence := alarm.Occurrence{
		UID:         ev.uid,
		Summary:     ev.summary,
		Description: ev.description,
		Start:       start.In(location),
		End:         end.In(location),
		AllDay:      ev.allDay,
		Source:      ev.source,
	}

	instances := make([]alarm.Instance, 0, len(ev.alarms))

	for _, def := range ev.alarms {
		action := def.action
		if action == "" {
			action = alarm.DefaultAction
		}

		instances = append(instances, alarm.Instance{
			RawID:       def.rawID,
			Trigger:     def.trigger.at(start, end).In(location),
			Summary:     def.summary,
			Description: def.description,
			Action:      action,
		})
	}

	x.batch.Add(occurrence, instances...)
}
