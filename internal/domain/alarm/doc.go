// Package alarm contains the core domain of the relay.
//
// It defines the calendar-derived input (Occurrence, Instance, Batch), the
// per-cycle decisions (Identity, Select, Evaluate) and the emitted
// NotificationRecord. Everything here is pure: no I/O, no logging and no
// clock reads, the caller passes the cycle's "now" explicitly.
package alarm
