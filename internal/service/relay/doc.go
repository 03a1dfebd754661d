// Package relay runs the reconciliation loop: reload calendars when due,
// select the nearest alarm per identity, notify newly due identities once,
// retire identities that are no longer due, and persist the result.
package relay
