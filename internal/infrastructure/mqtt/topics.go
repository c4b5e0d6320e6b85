package mqtt

import "fmt"

// Topic prefixes for everything notify-core publishes.
//
// Republished notifications use: notify/{tenant}/{channel}
// where channel is the notification API the subscription covers
// (measurements, managedObjects, ...).
const (
	// TopicPrefix is the base for all notify-core topics.
	TopicPrefix = "notify"

	// TopicPrefixSystem is the base for service-level status topics.
	TopicPrefixSystem = "notify/system"
)

// Topics provides builders for notify-core MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	t := topics.TenantNotification("t12345", "measurements")
//	// Returns: "notify/t12345/measurements"
type Topics struct{}

// TenantNotification returns the republish topic for one tenant and
// notification channel.
//
// Example: notify/t12345/measurements
func (Topics) TenantNotification(tenant, channel string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, tenant, channel)
}

// TenantConnection returns the topic carrying a tenant's connection
// status transitions.
//
// Example: notify/t12345/connection
func (Topics) TenantConnection(tenant string) string {
	return fmt.Sprintf("%s/%s/connection", TopicPrefix, tenant)
}

// SystemStatus returns the retained service status topic.
//
// Example: notify/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllTenantNotifications returns a pattern matching every republished
// notification. Mostly useful to downstream consumers and tests.
//
// Pattern: notify/+/+
func (Topics) AllTenantNotifications() string {
	return fmt.Sprintf("%s/+/+", TopicPrefix)
}
