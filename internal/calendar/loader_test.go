package calendar

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/ical-alarm-relay/internal/domain/alarm"
)

// testNow is the reference load time of the tests.
//
//nolint:gochecknoglobals // Shared test fixture.
var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// vcalendar wraps lines into a calendar object with CRLF line endings.
func vcalendar(lines ...string) string {
	all := make([]string, 0, len(lines)+4)
	all = append(all, "BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//relay//tests//EN")
	all = append(all, lines...)
	all = append(all, "END:VCALENDAR", "")

	return strings.Join(all, "\r\n")
}

// writeFile stores contents under dir/name.
func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o600))
}

// load runs a UTC loader over dir at testNow.
func load(t *testing.T, dir string) *alarm.Batch {
	t.Helper()

	batch, err := NewLoader(Options{Dir: dir, Location: time.UTC}).Load(context.Background(), testNow)
	require.NoError(t, err)

	return batch
}

// TestLoad_SingleEventTriggers checks relative, absolute and end-related triggers.
func TestLoad_SingleEventTriggers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "work.ics", vcalendar(
		"BEGIN:VEVENT",
		"UID:standup",
		"SUMMARY:Standup",
		"DESCRIPTION:Daily sync\\, room 4",
		"DTSTART:20240301T100000Z",
		"DTEND:20240301T101500Z",
		"BEGIN:VALARM",
		"UID:standup-alarm",
		"ACTION:AUDIO",
		"TRIGGER:-PT15M",
		"END:VALARM",
		"BEGIN:VALARM",
		"TRIGGER;VALUE=DATE-TIME:20240301T080000Z",
		"SUMMARY:Prepare notes",
		"END:VALARM",
		"BEGIN:VALARM",
		"TRIGGER;RELATED=END:PT5M",
		"END:VALARM",
		"END:VEVENT",
	))

	batch := load(t, dir)
	require.Len(t, batch.Occurrences, 1)
	require.Len(t, batch.Instances, 3)

	occurrence := batch.Occurrences[0]
	require.Equal(t, "standup", occurrence.UID)
	require.Equal(t, "Daily sync, room 4", occurrence.Description)
	require.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), occurrence.End)
	require.Equal(t, filepath.Join(dir, "work.ics"), occurrence.Source)

	relative := batch.Instances[0]
	require.Equal(t, "standup-alarm", relative.RawID)
	require.Equal(t, "AUDIO", relative.Action)
	require.Equal(t, "Standup", relative.Summary)
	require.Equal(t, time.Date(2024, 3, 1, 9, 45, 0, 0, time.UTC), relative.Trigger)

	absolute := batch.Instances[1]
	require.Empty(t, absolute.RawID)
	require.Equal(t, alarm.DefaultAction, absolute.Action)
	require.Equal(t, "Prepare notes", absolute.Summary)
	require.Equal(t, "Daily sync, room 4", absolute.Description)
	require.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), absolute.Trigger)

	fromEnd := batch.Instances[2]
	require.Equal(t, time.Date(2024, 3, 1, 10, 20, 0, 0, time.UTC), fromEnd.Trigger)

	for i := range batch.Instances {
		owner, ok := batch.OccurrenceOf(&batch.Instances[i])
		require.True(t, ok)
		require.Equal(t, "standup", owner.UID)
	}
}

// TestLoad_Recurrence checks RRULE expansion with EXDATE and overrides.
func TestLoad_Recurrence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "gym.ics", vcalendar(
		"BEGIN:VEVENT",
		"UID:gym",
		"SUMMARY:Gym",
		"DTSTART:20240228T100000Z",
		"DURATION:PT1H",
		"RRULE:FREQ=DAILY;COUNT=5",
		"EXDATE:20240302T100000Z",
		"BEGIN:VALARM",
		"TRIGGER:-PT10M",
		"END:VALARM",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:gym",
		"RECURRENCE-ID:20240303T100000Z",
		"SUMMARY:Gym (moved)",
		"DTSTART:20240303T120000Z",
		"DTEND:20240303T130000Z",
		"BEGIN:VALARM",
		"TRIGGER:-PT30M",
		"END:VALARM",
		"END:VEVENT",
	))

	batch := load(t, dir)

	starts := make([]time.Time, 0, len(batch.Occurrences))
	for _, occurrence := range batch.Occurrences {
		starts = append(starts, occurrence.Start)
	}

	require.Equal(t, []time.Time{
		time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC),
	}, starts)

	require.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), batch.Occurrences[1].End)
	require.Equal(t, "Gym (moved)", batch.Occurrences[2].Summary)

	require.Len(t, batch.Instances, 3)
	require.Equal(t, time.Date(2024, 3, 3, 11, 30, 0, 0, time.UTC), batch.Instances[2].Trigger)

	// The occurrence that already started is left out of the selection.
	selection := alarm.Select(batch, testNow)
	require.Equal(t, 2, selection.Len())
}

// TestLoad_OverrideMovedIntoWindow checks overrides whose original slot lies before the window.
func TestLoad_OverrideMovedIntoWindow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "review.ics", vcalendar(
		"BEGIN:VEVENT",
		"UID:review",
		"SUMMARY:Review",
		"DTSTART:20240225T100000Z",
		"DURATION:PT1H",
		"RRULE:FREQ=DAILY;COUNT=6",
		"BEGIN:VALARM",
		"TRIGGER:-PT10M",
		"END:VALARM",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:review",
		"RECURRENCE-ID:20240226T100000Z",
		"SUMMARY:Review (postponed)",
		"DTSTART:20240302T080000Z",
		"DTEND:20240302T090000Z",
		"BEGIN:VALARM",
		"TRIGGER:-PT10M",
		"END:VALARM",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:review",
		"RECURRENCE-ID:20240227T100000Z",
		"SUMMARY:Review (still in the past)",
		"DTSTART:20240228T100000Z",
		"DTEND:20240228T110000Z",
		"END:VEVENT",
	))

	batch := load(t, dir)

	starts := make([]time.Time, 0, len(batch.Occurrences))
	for _, occurrence := range batch.Occurrences {
		starts = append(starts, occurrence.Start)
	}

	require.Equal(t, []time.Time{
		time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC),
	}, starts)

	require.Equal(t, "Review (postponed)", batch.Occurrences[2].Summary)
	require.Len(t, batch.Instances, 3)
	require.Equal(t, time.Date(2024, 3, 2, 7, 50, 0, 0, time.UTC), batch.Instances[2].Trigger)
}

// TestLoad_SkipsBrokenAndCancelled checks that bad input never hides good input.
func TestLoad_SkipsBrokenAndCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "b.ICS", vcalendar(
		"BEGIN:VEVENT",
		"UID:second",
		"DTSTART:20240302T100000Z",
		"BEGIN:VALARM",
		"TRIGGER:-PT5M",
		"END:VALARM",
		"END:VEVENT",
	))
	writeFile(t, dir, "a.ics", vcalendar(
		"BEGIN:VEVENT",
		"UID:first",
		"DTSTART:20240302T090000Z",
		"BEGIN:VALARM",
		"TRIGGER:soon",
		"END:VALARM",
		"BEGIN:VALARM",
		"TRIGGER:-PT1H",
		"END:VALARM",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:No identity",
		"DTSTART:20240302T090000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:called-off",
		"STATUS:CANCELLED",
		"DTSTART:20240302T090000Z",
		"BEGIN:VALARM",
		"TRIGGER:-PT1H",
		"END:VALARM",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:far-away",
		"DTSTART:20260302T090000Z",
		"BEGIN:VALARM",
		"TRIGGER:-PT1H",
		"END:VALARM",
		"END:VEVENT",
	))
	writeFile(t, dir, "notes.txt", "BEGIN:VCALENDAR")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.ics"), 0o700))

	batch := load(t, dir)

	uids := make([]string, 0, len(batch.Occurrences))
	for _, occurrence := range batch.Occurrences {
		uids = append(uids, occurrence.UID)
	}

	require.Equal(t, []string{"first", "second"}, uids)
	require.Len(t, batch.Instances, 2)
	require.Equal(t, time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC), batch.Instances[0].Trigger)
}

// TestLoad_AllDayInLocation checks date values and zone conversion.
func TestLoad_AllDayInLocation(t *testing.T) {
	t.Parallel()

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "holiday.ics", vcalendar(
		"BEGIN:VEVENT",
		"UID:holiday",
		"DTSTART;VALUE=DATE:20240305",
		"BEGIN:VALARM",
		"TRIGGER:-PT12H",
		"END:VALARM",
		"END:VEVENT",
	))

	batch, err := NewLoader(Options{Dir: dir, Location: berlin}).Load(context.Background(), testNow)
	require.NoError(t, err)
	require.Len(t, batch.Occurrences, 1)

	occurrence := batch.Occurrences[0]
	require.True(t, occurrence.AllDay)
	require.Equal(t, berlin, occurrence.Start.Location())
	require.True(t, occurrence.Start.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, berlin)))
	require.Equal(t, 24*time.Hour, occurrence.End.Sub(occurrence.Start))
	require.True(t, batch.Instances[0].Trigger.Equal(time.Date(2024, 3, 4, 12, 0, 0, 0, berlin)))
}

// TestLoad_MissingDirectory checks that an unreadable directory is an error.
func TestLoad_MissingDirectory(t *testing.T) {
	t.Parallel()

	loader := NewLoader(Options{Dir: filepath.Join(t.TempDir(), "gone")})

	_, err := loader.Load(context.Background(), testNow)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestIsCalendarFile checks the case-insensitive extension match.
func TestIsCalendarFile(t *testing.T) {
	t.Parallel()

	require.True(t, IsCalendarFile("home.ics"))
	require.True(t, IsCalendarFile("HOME.ICS"))
	require.False(t, IsCalendarFile("home.ics.bak"))
	require.False(t, IsCalendarFile("ics"))
}
