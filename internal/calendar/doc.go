// Package calendar turns a directory of iCalendar files into an alarm.Batch.
//
// Events are read with github.com/arran4/golang-ical and recurring events are
// expanded with github.com/teambition/rrule-go inside a window around the
// load time. Every VALARM of every occurrence becomes one alarm.Instance.
// A file that fails to parse is logged and skipped; a malformed event or
// alarm is skipped on its own.
package calendar
