package alarm

import (
	"fmt"
	"strings"
	"time"
)

const (
	// timestampLayout renders times as "2006-01-02 15:04:05+07:00".
	timestampLayout = "2006-01-02 15:04:05-07:00"
	// timestampMicrosLayout is used when the time has a sub-second part.
	timestampMicrosLayout = "2006-01-02 15:04:05.000000-07:00"

	microsPerSecond = int64(time.Second / time.Microsecond)
	microsPerDay    = 24 * 60 * 60 * microsPerSecond
)

// Record is the notification emitted for a logical identity and persisted
// until the identity is retired. It is the JSON payload on the wire as well.
type Record struct {
	UID                string `json:"uid"`
	Summary            string `json:"summary"`
	Description        string `json:"description"`
	Action             string `json:"action"`
	AlarmSince         string `json:"alarm_since"`
	TimeLeftToEvent    string `json:"time_left_to_event"`
	SecondsLeftToEvent int64  `json:"seconds_left_to_event"`
	EventStart         string `json:"event_start"`
}

// NewRecord builds the notification for a selected alarm at the given time.
func NewRecord(selected *Selected, now time.Time) Record {
	timeLeft := selected.Occurrence.TimeLeft(now)

	return Record{
		UID:                selected.Identity,
		Summary:            selected.Instance.Summary,
		Description:        selected.Instance.Description,
		Action:             selected.Instance.Action,
		AlarmSince:         FormatTimestamp(selected.Instance.Trigger),
		TimeLeftToEvent:    FormatTimeLeft(timeLeft),
		SecondsLeftToEvent: int64(timeLeft / time.Second),
		EventStart:         FormatTimestamp(selected.Occurrence.Start),
	}
}

// FormatTimestamp renders a time with its UTC offset and, when present,
// microseconds: "2024-03-01 09:30:00+01:00".
func FormatTimestamp(t time.Time) string {
	if t.Nanosecond()/int(time.Microsecond) != 0 {
		return t.Format(timestampMicrosLayout)
	}

	return t.Format(timestampLayout)
}

// FormatTimeLeft renders a duration as "[D day[s], ]H:MM:SS[.ffffff]".
// Days are floored, so one second in the past reads "-1 day, 23:59:59".
func FormatTimeLeft(d time.Duration) string {
	micros := d.Microseconds()

	days := micros / microsPerDay
	rest := micros % microsPerDay

	if rest < 0 {
		rest += microsPerDay
		days--
	}

	seconds := rest / microsPerSecond
	fraction := rest % microsPerSecond

	var builder strings.Builder

	if days != 0 {
		unit := "days"
		if days == 1 || days == -1 {
			unit = "day"
		}

		fmt.Fprintf(&builder, "%d %s, ", days, unit)
	}

	fmt.Fprintf(&builder, "%d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)

	if fraction != 0 {
		fmt.Fprintf(&builder, ".%06d", fraction)
	}

	return builder.String()
}
