// Package wsclient provides the websocket transport used to consume
// notification streams from the platform.
//
// This package manages:
//   - Asynchronous connection establishment (success is only confirmed by
//     the callback's open event, never by Dial returning)
//   - Keep-alive pings on a fixed interval to prevent idle-timeout closure
//   - Notification envelope decoding and acknowledgment echo
//   - Idempotent, bounded-retry disconnect
//   - An inspectable handle state (running / stopping / stopped / failed)
//     that the reconnect scheduler polls independently of the registry
//
// # Event delivery
//
// The underlying gorilla/websocket connection produces events on its read
// goroutine. They are serialised through an internal channel and delivered
// to the Callback by a single driver goroutine per connection, so callback
// implementations never see concurrent invocations for the same tenant.
//
// # Usage
//
//	conn := wsclient.Dial(ctx, endpoint, tenant, callback, cfg)
//	...
//	conn.Disconnect()
//
// Thread Safety: all exported methods on Conn are safe for concurrent use.
package wsclient
