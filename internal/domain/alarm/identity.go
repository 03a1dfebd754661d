package alarm

// identitySeparator joins the occurrence UID and the trigger timestamp of
// alarms that carry no identifier of their own.
const identitySeparator = " - "

// Identity derives the logical identity used to deduplicate alarms.
//
// An explicit alarm identifier wins. Otherwise the identity is built from the
// owning occurrence UID and the trigger timestamp, so moving the trigger
// produces a new identity rather than an update of the old one.
func Identity(instance *Instance, occurrence *Occurrence) string {
	if instance.RawID != "" {
		return instance.RawID
	}

	return occurrence.UID + identitySeparator + FormatTimestamp(instance.Trigger)
}
