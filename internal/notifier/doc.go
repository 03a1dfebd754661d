// Package notifier delivers alarm records to a message broker.
//
// A Notifier encodes a record as JSON and hands it to a Publisher. The MQTT,
// NATS and Kafka publishers open a fresh connection for every message and
// close it afterwards; the relay sends a handful of messages per day and
// must not depend on a long-lived broker session.
package notifier
