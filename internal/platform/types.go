package platform

// Credentials are the per-tenant basic-auth credentials supplied by the
// tenant lifecycle (onboarding event or configuration).
type Credentials struct {
	Tenant   string
	Username string
	Password string
}

// DeviceNode is a device managed object with its direct child device ids.
// Grandchildren are not resolved; the reconciler fan-out is single-level.
type DeviceNode struct {
	ID       string
	Name     string
	ChildIDs []string
}

// SubscriptionContext is the scope a subscription is bound to.
type SubscriptionContext string

// Subscription contexts understood by the platform.
const (
	// ContextManagedObject scopes a subscription to a single device
	// managed object.
	ContextManagedObject SubscriptionContext = "mo"

	// ContextTenant scopes a subscription to the whole tenant.
	ContextTenant SubscriptionContext = "tenant"
)

// Subscription describes a notification subscription on the platform.
// Identity is (Context, SourceID, Name); the reconciler never creates a
// second subscription with the same identity.
type Subscription struct {
	ID       string              `json:"id,omitempty"`
	Name     string              `json:"subscription"`
	Context  SubscriptionContext `json:"context"`
	SourceID string              `json:"-"`
	APIs     []string            `json:"-"`
}

// SubscriptionFilter narrows a subscription lookup.
// Zero-valued fields are not applied.
type SubscriptionFilter struct {
	SourceID string
	Context  SubscriptionContext
	Name     string
}

// Notification API filters accepted in a subscription's filter set.
const (
	APIMeasurements   = "measurements"
	APIAlarms         = "alarms"
	APIEvents         = "events"
	APIOperations     = "operations"
	APIManagedObjects = "managedObjects"
)

// Alarm is an operational alarm posted against a source managed object.
type Alarm struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Text     string `json:"text"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Time     string `json:"time,omitempty"`
}

// Alarm severities and statuses used by the disconnect alarm signal.
const (
	SeverityCritical = "CRITICAL"
	StatusActive     = "ACTIVE"
	StatusCleared    = "CLEARED"
)
