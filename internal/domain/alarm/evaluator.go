package alarm

import "time"

// Evaluation partitions a selection by firing state.
type Evaluation struct {
	// Due holds alarms whose trigger time is at or before now.
	Due []Selected
	// Pending holds alarms that have not fired yet.
	Pending []Selected
}

// IsDue reports whether the instance has crossed its firing threshold.
func IsDue(instance *Instance, now time.Time) bool {
	return instance.Trigger.Sub(now) <= 0
}

// Evaluate splits the selection into due and pending alarms, keeping order.
func Evaluate(selection *Selection, now time.Time) Evaluation {
	var evaluation Evaluation

	for _, selected := range selection.All() {
		if IsDue(&selected.Instance, now) {
			evaluation.Due = append(evaluation.Due, selected)
		} else {
			evaluation.Pending = append(evaluation.Pending, selected)
		}
	}

	return evaluation
}

// DueIdentities returns the set of due identities.
func (e Evaluation) DueIdentities() map[string]struct{} {
	result := make(map[string]struct{}, len(e.Due))
	for _, selected := range e.Due {
		result[selected.Identity] = struct{}{}
	}

	return result
}
