package alarm

import "time"

// Selected is the instance chosen to represent a logical identity in one cycle.
type Selected struct {
	// Identity is the logical identity of the instance.
	Identity string
	// Instance is the winning alarm instance.
	Instance Instance
	// Occurrence is the resolved owning occurrence.
	Occurrence Occurrence
}

// Selection maps logical identities to their selected alarm.
// Identities keep the order in which they were first seen.
type Selection struct {
	// order lists identities in first-insertion order.
	order []string
	// byIdentity holds the current winner per identity.
	byIdentity map[string]Selected
}

// newSelection allocates an empty selection sized for the expected input.
func newSelection(capacity int) *Selection {
	return &Selection{
		order:      make([]string, 0, capacity),
		byIdentity: make(map[string]Selected, capacity),
	}
}

// Len returns the number of selected identities.
func (s *Selection) Len() int {
	return len(s.order)
}

// Get returns the selected alarm for an identity.
func (s *Selection) Get(identity string) (Selected, bool) {
	selected, ok := s.byIdentity[identity]

	return selected, ok
}

// Identities returns the selected identities in order.
func (s *Selection) Identities() []string {
	return append([]string(nil), s.order...)
}

// All returns the selected alarms in order.
func (s *Selection) All() []Selected {
	result := make([]Selected, 0, len(s.order))
	for _, identity := range s.order {
		result = append(result, s.byIdentity[identity])
	}

	return result
}

// Select collapses the batch to one alarm per logical identity.
//
// Instances whose occurrence started before now are never candidates. For the
// rest, the first instance seen for an identity is kept unless a later one
// belongs to an occurrence with strictly less time left; ties keep the first.
func Select(batch *Batch, now time.Time) *Selection {
	selection := newSelection(batch.Len())
	if batch == nil {
		return selection
	}

	for i := range batch.Instances {
		instance := &batch.Instances[i]

		occurrence, ok := batch.OccurrenceOf(instance)
		if !ok || occurrence.Started(now) {
			continue
		}

		identity := Identity(instance, occurrence)

		existing, found := selection.byIdentity[identity]
		if !found {
			selection.order = append(selection.order, identity)
		} else if occurrence.TimeLeft(now) >= existing.Occurrence.TimeLeft(now) {
			continue
		}

		selection.byIdentity[identity] = Selected{
			Identity:   identity,
			Instance:   *instance,
			Occurrence: *occurrence,
		}
	}

	return selection
}
