// Package mqtt wraps paho.mqtt.golang for the notification republish
// sink.
//
// notify-core only publishes: received platform notifications are
// fanned out onto per-tenant topics for downstream consumers. The
// client manages the broker connection, auto-reconnect with backoff,
// an LWT on the system status topic, and bounded publish timeouts.
//
// Topic layout:
//
//	notify/{tenant}/{channel}        republished notification bodies
//	notify/{tenant}/connection       connection status transitions
//	notify/system/status             service online/offline (retained)
//
// Thread Safety: all methods are safe for concurrent use.
package mqtt
