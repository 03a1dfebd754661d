package alarm

import "time"

// DefaultAction is used when a calendar alarm does not declare an ACTION.
const DefaultAction = "DISPLAY"

// Occurrence is one concrete instance of a calendar event.
type Occurrence struct {
	// UID is the calendar identity of the owning event.
	UID string
	// Summary is the event title.
	Summary string
	// Description is the event body text.
	Description string
	// Start is when this occurrence begins, in the configured location.
	Start time.Time
	// End is when this occurrence ends, in the configured location.
	End time.Time
	// AllDay marks date-only events.
	AllDay bool
	// Source is the calendar file the occurrence was read from.
	Source string
}

// TimeLeft returns the time remaining until the occurrence starts.
// It is negative once the occurrence has started.
func (o *Occurrence) TimeLeft(now time.Time) time.Duration {
	return o.Start.Sub(now)
}

// Started reports whether the occurrence start lies strictly before now.
func (o *Occurrence) Started(now time.Time) bool {
	return o.Start.Before(now)
}

// Instance is a single alarm attached to an occurrence of a Batch.
type Instance struct {
	// Occurrence is the index of the owning occurrence in Batch.Occurrences.
	// It is only meaningful within the batch that produced the instance.
	Occurrence int
	// RawID is the alarm's own identifier, empty when the source has none.
	RawID string
	// Trigger is the absolute time the alarm fires.
	Trigger time.Time
	// Summary is the alarm title.
	Summary string
	// Description is the alarm body text.
	Description string
	// Action is the alarm kind (DISPLAY, AUDIO, EMAIL...).
	Action string
}

// Batch holds everything one source reload produced.
// Instances reference occurrences by index, so a Batch must be treated as
// immutable once handed to Select.
type Batch struct {
	// Occurrences in source order.
	Occurrences []Occurrence
	// Instances in source order.
	Instances []Instance
}

// Add appends an occurrence and its alarms, wiring the back references.
func (b *Batch) Add(occurrence Occurrence, alarms ...Instance) {
	index := len(b.Occurrences)
	b.Occurrences = append(b.Occurrences, occurrence)

	for _, instance := range alarms {
		instance.Occurrence = index
		b.Instances = append(b.Instances, instance)
	}
}

// OccurrenceOf resolves the owning occurrence of an instance.
func (b *Batch) OccurrenceOf(instance *Instance) (*Occurrence, bool) {
	if b == nil || instance.Occurrence < 0 || instance.Occurrence >= len(b.Occurrences) {
		return nil, false
	}

	return &b.Occurrences[instance.Occurrence], true
}

// Len returns the number of alarm instances in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}

	return len(b.Instances)
}
