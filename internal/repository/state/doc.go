// Package state keeps the set of alarm identities that were already notified
// and are still due.
//
// FileRepository reads and writes the JSON artifact {"alarms": [...]}.
// Store is the in-memory view the reconciliation loop works on; it is loaded
// once at startup and persisted after every cycle.
package state
