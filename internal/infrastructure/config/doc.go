// Package config loads and validates the notify-core configuration.
//
// Configuration comes from a single YAML file with three layers of
// precedence: hardcoded defaults, file values, then NOTIFYCORE_* environment
// variable overrides. Secrets (platform credentials, broker passwords,
// InfluxDB tokens) should always be supplied through the environment.
//
// # Example
//
//	platform:
//	  base_url: "https://acme.example-iot.com"
//	  subscriber: "NotifyCoreSubscriber"
//	  token_ttl: 1440
//	reconnect:
//	  initial_delay: 30
//	  period: 120
//	  settle_delay: 120
//	  keepalive_interval: 10
//	tenants:
//	  - id: "t1000"
//	    username: "svc-notify"
//	    password: ""          # NOTIFYCORE_TENANT_PASSWORD
package config
