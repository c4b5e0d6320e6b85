// Package notification is the connection lifecycle and subscription
// reconciliation core of notify-core.
//
// It maintains, per tenant, a streaming websocket connection to the
// platform's notification consumer endpoint, and keeps the remote
// subscription set reconciled with the intent declared at onboarding.
// Connectivity loss is converted into operational alarms; a periodic
// scheduler detects unhealthy connections and drives token refresh and
// transport re-establishment with a mandatory settle delay.
//
// # Structure
//
//   - Registry / Connection: the single source of truth for who is
//     connected, shared between scheduler ticks and transport callbacks.
//   - Reconciler: idempotent ensure/remove of remote subscriptions with
//     single-level device-tree fan-out.
//   - Scheduler: the periodic health scan and reconnect driver.
//   - Subscriber: one per subscription type (device-scope measurements,
//     tenant-scope managed objects), tying the pieces together.
//   - Service: tenant lifecycle entry points and the operations exposed
//     through the HTTP façade.
//   - Dispatcher and sinks: hand decoded notifications to downstream
//     consumers (MQTT republish, InfluxDB measurements).
//
// State is rebuilt from the platform on every start; nothing in this
// package survives a restart on purpose.
package notification
