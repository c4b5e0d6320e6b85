package notification

import (
	"context"

	"github.com/iotstream/notify-core/internal/infrastructure/wsclient"
	"github.com/iotstream/notify-core/internal/platform"
)

// The platform surface is split per concern so tests can fake exactly
// what a component touches. *platform.Client satisfies all of them.

// Inventory lists the device trees a device-scope subscription fans out
// over.
type Inventory interface {
	ListDevices(ctx context.Context, pageSize int, includeChildren bool) ([]platform.DeviceNode, error)
}

// Subscriptions is the remote subscription CRUD surface.
type Subscriptions interface {
	FindSubscriptions(ctx context.Context, filter platform.SubscriptionFilter) ([]platform.Subscription, error)
	CreateSubscription(ctx context.Context, sub platform.Subscription) (platform.Subscription, error)
	DeleteSubscription(ctx context.Context, sub platform.Subscription) error
}

// Tokens issues and revokes consumer tokens.
type Tokens interface {
	IssueToken(ctx context.Context, subscriber, subscription string, ttlMinutes int, exclusive bool) (string, error)
	InvalidateToken(ctx context.Context, token string) error
}

// Alarms raises and clears the disconnect alarm on the service's own
// managed object.
type Alarms interface {
	RaiseAlarm(ctx context.Context, sourceID, alarmType string) error
	ClearAlarm(ctx context.Context, sourceID, alarmType string) error
}

// TenantInfo resolves per-tenant facts needed before the first connect.
type TenantInfo interface {
	TenantHost(ctx context.Context) (string, error)
	ServiceSourceID(ctx context.Context) (string, error)
}

// Platform is the full per-tenant client surface.
type Platform interface {
	Inventory
	Subscriptions
	Tokens
	Alarms
	TenantInfo
}

// DialFunc establishes a websocket transport against endpoint,
// delivering events for tenant to cb. Injectable so the scheduler and
// service tests run without a network.
type DialFunc func(ctx context.Context, endpoint, tenant string, cb wsclient.Callback, cfg wsclient.Config) Transport

// Auditor records connection lifecycle events. Satisfied by
// *audit.Trail; a nil Auditor is treated as a no-op.
type Auditor interface {
	Record(ctx context.Context, tenant, event, detail string)
}
