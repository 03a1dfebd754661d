package calendar

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

const (
	propertyDuration     = ical.ComponentProperty("DURATION")
	propertyRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")
	propertyTrigger      = ical.ComponentProperty("TRIGGER")
	propertyAction       = ical.ComponentProperty("ACTION")

	statusCancelled = "CANCELLED"
	relatedEnd      = "END"
	allDayLength    = 24 * time.Hour
)

var (
	// ErrMissingUID is returned for events without a UID.
	ErrMissingUID = errors.New("missing UID")
	// ErrMissingStart is returned for events without a DTSTART.
	ErrMissingStart = errors.New("missing DTSTART")
	// ErrMissingTrigger is returned for alarms without a TRIGGER.
	ErrMissingTrigger = errors.New("missing TRIGGER")
)

// event is a VEVENT with its dates resolved and recurrence data kept raw.
type event struct {
	uid         string
	summary     string
	description string

	start  time.Time
	end    time.Time
	allDay bool

	cancelled    bool
	rrule        string
	exdates      []time.Time
	recurrenceID *time.Time

	alarms []alarmSpec
}

// alarmSpec is a VALARM whose trigger is resolved per occurrence.
type alarmSpec struct {
	rawID       string
	summary     string
	description string
	action      string
	trigger     trigger
}

// trigger is either an absolute time or an offset from the start or end.
type trigger struct {
	absolute time.Time
	offset   time.Duration
	fromEnd  bool
}

// at resolves the trigger for an occurrence.
func (t trigger) at(start, end time.Time) time.Time {
	if !t.absolute.IsZero() {
		return t.absolute
	}

	if t.fromEnd {
		return end.Add(t.offset)
	}

	return start.Add(t.offset)
}

// skipped records a component that could not be used.
type skipped struct {
	uid string
	err error
}

// parseCalendar reads every VEVENT of one iCalendar stream.
// Events that cannot be used are reported in the second result.
func parseCalendar(r io.Reader, location *time.Location) ([]event, []skipped, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parse calendar: %w", err)
	}

	var (
		events  []event
		skips   []skipped
		vevents = cal.Events()
	)

	for _, vevent := range vevents {
		ev, alarmSkips, err := parseEvent(vevent, location)
		skips = append(skips, alarmSkips...)

		if err != nil {
			skips = append(skips, skipped{uid: ev.uid, err: err})

			continue
		}

		events = append(events, ev)
	}

	return events, skips, nil
}

// parseEvent converts one VEVENT. Broken alarms are dropped and reported.
//
//nolint:cyclop,funlen // Property-by-property mapping.
func parseEvent(vevent *ical.VEvent, location *time.Location) (event, []skipped, error) {
	var ev event

	ev.uid = text(vevent.GetProperty(ical.ComponentPropertyUniqueId))
	if ev.uid == "" {
		return ev, nil, ErrMissingUID
	}

	ev.summary = text(vevent.GetProperty(ical.ComponentPropertySummary))
	ev.description = text(vevent.GetProperty(ical.ComponentPropertyDescription))
	ev.cancelled = strings.EqualFold(text(vevent.GetProperty(ical.ComponentPropertyStatus)), statusCancelled)

	startProperty := vevent.GetProperty(ical.ComponentPropertyDtStart)
	if startProperty == nil {
		return ev, nil, ErrMissingStart
	}

	start, allDay, err := parseTime(startProperty.Value, startProperty.ICalParameters, location)
	if err != nil {
		return ev, nil, fmt.Errorf("DTSTART: %w", err)
	}

	ev.start = start
	ev.allDay = allDay

	switch {
	case vevent.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		endProperty := vevent.GetProperty(ical.ComponentPropertyDtEnd)

		ev.end, _, err = parseTime(endProperty.Value, endProperty.ICalParameters, location)
		if err != nil {
			return ev, nil, fmt.Errorf("DTEND: %w", err)
		}
	case vevent.GetProperty(propertyDuration) != nil:
		d, err := parseDuration(vevent.GetProperty(propertyDuration).Value)
		if err != nil {
			return ev, nil, fmt.Errorf("DURATION: %w", err)
		}

		ev.end = ev.start.Add(d)
	case ev.allDay:
		ev.end = ev.start.Add(allDayLength)
	default:
		ev.end = ev.start
	}

	if p := vevent.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.rrule = strings.TrimSpace(p.Value)
	}

	for _, p := range vevent.GetProperties(ical.ComponentPropertyExdate) {
		exdates, err := parseTimeList(p.Value, p.ICalParameters, location)
		if err != nil {
			return ev, nil, fmt.Errorf("EXDATE: %w", err)
		}

		ev.exdates = append(ev.exdates, exdates...)
	}

	if p := vevent.GetProperty(propertyRecurrenceID); p != nil {
		recurrenceID, _, err := parseTime(p.Value, p.ICalParameters, location)
		if err != nil {
			return ev, nil, fmt.Errorf("RECURRENCE-ID: %w", err)
		}

		ev.recurrenceID = &recurrenceID
	}

	var skips []skipped

	for _, valarm := range vevent.Alarms() {
		def, err := parseAlarm(valarm, &ev, location)
		if err != nil {
			skips = append(skips, skipped{uid: ev.uid, err: fmt.Errorf("VALARM: %w", err)})

			continue
		}

		ev.alarms = append(ev.alarms, def)
	}

	return ev, skips, nil
}

// parseAlarm converts one VALARM of ev.
func parseAlarm(valarm *ical.VAlarm, ev *event, location *time.Location) (alarmSpec, error) {
	def := alarmSpec{
		rawID:       text(valarm.GetProperty(ical.ComponentPropertyUniqueId)),
		summary:     text(valarm.GetProperty(ical.ComponentPropertySummary)),
		description: text(valarm.GetProperty(ical.ComponentPropertyDescription)),
		action:      strings.ToUpper(text(valarm.GetProperty(propertyAction))),
	}

	if def.summary == "" {
		def.summary = ev.summary
	}

	if def.description == "" {
		def.description = ev.description
	}

	p := valarm.GetProperty(propertyTrigger)
	if p == nil {
		return def, ErrMissingTrigger
	}

	if strings.EqualFold(param(p.ICalParameters, "VALUE"), "DATE-TIME") {
		absolute, _, err := parseTime(p.Value, p.ICalParameters, location)
		if err != nil {
			return def, fmt.Errorf("TRIGGER: %w", err)
		}

		def.trigger.absolute = absolute

		return def, nil
	}

	offset, err := parseDuration(p.Value)
	if err != nil {
		return def, fmt.Errorf("TRIGGER: %w", err)
	}

	def.trigger.offset = offset
	def.trigger.fromEnd = strings.EqualFold(param(p.ICalParameters, "RELATED"), relatedEnd)

	return def, nil
}

// text returns the unescaped value of a property, or "" when it is absent.
func text(p *ical.IANAProperty) string {
	if p == nil {
		return ""
	}

	return strings.TrimSpace(unescapeText(p.Value))
}
