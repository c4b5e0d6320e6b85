package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/iotstream/notify-core/internal/infrastructure/wsclient"
	"github.com/iotstream/notify-core/internal/platform"
)

// Republish channels. A channel names the notification API a
// subscription covers and doubles as the MQTT topic segment.
const (
	ChannelMeasurements   = platform.APIMeasurements
	ChannelManagedObjects = platform.APIManagedObjects
)

// Well-known subscription and subscriber names.
const (
	// DeviceSubscriptionName is the per-device measurement subscription
	// fanned out over the inventory.
	DeviceSubscriptionName = "deviceMeasurementSubscription"

	// TenantSubscriptionName is the tenant-scope managed object
	// subscription.
	TenantSubscriptionName = "TenantSubscriptionName"

	// tenantSubscriberName is the fixed subscriber identity for the
	// tenant-scope subscription.
	tenantSubscriberName = "TenantSubscriber"

	// DisconnectAlarmType is the alarm type prefix for connectivity
	// loss; the tenant id is appended so alarms stay distinguishable
	// on the shared service managed object.
	DisconnectAlarmType = "WebsocketDisconnect"
)

// consumerEndpoint builds the websocket URL for a tenant host and token.
// The platform terminates websocket upgrades on 443 regardless of the
// REST port.
func consumerEndpoint(host, token string) string {
	return fmt.Sprintf("wss://%s:443/notification2/consumer/?token=%s", host, token)
}

// SubscriberSpec fixes the identity and scope of one subscription type.
type SubscriberSpec struct {
	// Name is the remote subscription name.
	Name string

	// Channel is the notification API covered, and the republish
	// channel notifications are dispatched under.
	Channel string

	// DeviceScope selects per-device fan-out; false means one
	// tenant-context subscription.
	DeviceScope bool

	// SubscriberFor derives the token subscriber identity for a tenant.
	SubscriberFor func(tenant string) string
}

// deviceSpec is the measurement subscription fanned out over every
// device and its direct children.
func deviceSpec(suffix string) SubscriberSpec {
	return SubscriberSpec{
		Name:        DeviceSubscriptionName,
		Channel:     ChannelMeasurements,
		DeviceScope: true,
		SubscriberFor: func(tenant string) string {
			return tenant + suffix
		},
	}
}

// tenantSpec is the tenant-scope managed object subscription.
func tenantSpec() SubscriberSpec {
	return SubscriberSpec{
		Name:        TenantSubscriptionName,
		Channel:     ChannelManagedObjects,
		DeviceScope: false,
		SubscriberFor: func(string) string {
			return tenantSubscriberName
		},
	}
}

// Subscriber runs one subscription type across all onboarded tenants:
// it owns the registry of connections for its type, converges the
// remote subscription set, and is the Reconnector its scheduler drives.
type Subscriber struct {
	svc      *Service
	spec     SubscriberSpec
	registry *Registry
}

func newSubscriber(svc *Service, spec SubscriberSpec) *Subscriber {
	return &Subscriber{
		svc:      svc,
		spec:     spec,
		registry: NewRegistry(),
	}
}

// Registry exposes the connection records for this subscription type.
func (s *Subscriber) Registry() *Registry { return s.registry }

// Spec returns the subscription identity this subscriber runs.
func (s *Subscriber) Spec() SubscriberSpec { return s.spec }

// ensure converges the remote subscription set for one tenant.
func (s *Subscriber) ensure(ctx context.Context, tenant string) error {
	client, err := s.svc.client(tenant)
	if err != nil {
		return err
	}
	rec := NewReconciler(client, client, s.svc.logger)

	if s.spec.DeviceScope {
		ensured, err := rec.EnsureDeviceSubscriptions(ctx, s.spec.Name, []string{s.spec.Channel}, s.svc.pageSize)
		if err != nil {
			return fmt.Errorf("ensuring device subscriptions for %s: %w", tenant, err)
		}
		s.svc.logger.Info("device subscriptions ensured",
			"tenant", tenant, "name", s.spec.Name, "units", ensured)
		return nil
	}

	sub := platform.Subscription{
		Name:    s.spec.Name,
		Context: platform.ContextTenant,
		APIs:    []string{s.spec.Channel},
	}
	if _, err := rec.EnsureSubscription(ctx, sub); err != nil {
		return fmt.Errorf("ensuring tenant subscription for %s: %w", tenant, err)
	}
	return nil
}

// IssueConnectionToken requests a fresh shared consumer token for the
// tenant's subscription. Part of the Reconnector contract.
func (s *Subscriber) IssueConnectionToken(ctx context.Context, tenant string) (string, error) {
	client, err := s.svc.client(tenant)
	if err != nil {
		return "", err
	}
	token, err := client.IssueToken(ctx, s.spec.SubscriberFor(tenant), s.spec.Name, s.svc.tokenTTL, false)
	if err != nil {
		return "", fmt.Errorf("issuing token for %s/%s: %w", tenant, s.spec.Name, err)
	}
	return token, nil
}

// Reconnect re-establishes the tenant's transport with the given token.
// Part of the Reconnector contract.
func (s *Subscriber) Reconnect(ctx context.Context, tenant, token string) error {
	rec, ok := s.registry.Get(tenant)
	if !ok {
		return ErrNotConnected
	}
	if rec.Handle() == nil {
		// Onboarding never reached the dial, so the remote subscription
		// set may still be missing.
		if err := s.ensure(ctx, tenant); err != nil {
			rec.SetStatus(StatusDisconnected)
			return err
		}
	}
	return s.connect(ctx, tenant, token)
}

// connect dials the consumer endpoint and attaches the transport to the
// tenant's registry record. The token string is used verbatim in the
// URL; open confirmation arrives through the transport hooks.
func (s *Subscriber) connect(ctx context.Context, tenant, token string) error {
	rec := s.registry.GetOrCreate(tenant)

	host, err := s.svc.host(ctx, tenant)
	if err != nil {
		rec.SetStatus(StatusDisconnected)
		return err
	}

	if old := rec.Handle(); old != nil {
		// Tear the stale transport down first so its close event cannot
		// be mistaken for the new session's.
		if err := old.Disconnect(); err != nil && !errors.Is(err, wsclient.ErrDisconnectFailed) {
			s.svc.logger.Warn("stale transport teardown failed",
				"tenant", tenant, "subscription", s.spec.Name, "error", err)
		}
	}

	endpoint := consumerEndpoint(host, token)
	handle := s.svc.dial(ctx, endpoint, tenant, &transportHooks{sub: s}, s.svc.wsConfig())
	rec.Attach(handle, token)

	if exp, expErr := platform.TokenExpiry(token); expErr == nil {
		s.svc.logger.Info("transport dialed",
			"tenant", tenant, "subscription", s.spec.Name, "token_expires", exp)
	} else {
		s.svc.logger.Info("transport dialed",
			"tenant", tenant, "subscription", s.spec.Name)
	}
	return nil
}

// subscribe is the full onboarding flow for one tenant: converge the
// remote subscription set, issue a token, connect. The registry record
// is created up front so a failure at any step leaves a DISCONNECTED
// record for the scheduler to recover.
func (s *Subscriber) subscribe(ctx context.Context, tenant string) error {
	rec := s.registry.GetOrCreate(tenant)

	if err := s.ensure(ctx, tenant); err != nil {
		rec.SetStatus(StatusDisconnected)
		return err
	}
	token, err := s.IssueConnectionToken(ctx, tenant)
	if err != nil {
		rec.SetStatus(StatusDisconnected)
		return err
	}
	return s.connect(ctx, tenant, token)
}

// teardown invalidates the tenant's token, disconnects the transport
// and removes the registry record. Token and transport failures are
// logged; removal always happens.
func (s *Subscriber) teardown(ctx context.Context, tenant string) {
	rec := s.registry.Remove(tenant)
	if rec == nil {
		return
	}

	if token := rec.Token(); token != "" {
		client, err := s.svc.client(tenant)
		if err == nil {
			if err := client.InvalidateToken(ctx, token); err != nil {
				s.svc.logger.Warn("token invalidation failed",
					"tenant", tenant, "subscription", s.spec.Name, "error", err)
			}
		}
	}

	if handle := rec.Handle(); handle != nil {
		if err := handle.Disconnect(); err != nil {
			s.svc.logger.Warn("transport disconnect failed",
				"tenant", tenant, "subscription", s.spec.Name, "error", err)
		}
	}

	s.svc.audit(ctx, tenant, "offboarded", s.spec.Name)
}

// transportHooks adapts transport events for one subscriber into
// registry, alarm and audit updates. Events per connection arrive
// serialised from the transport driver.
type transportHooks struct {
	sub *Subscriber
}

func (h *transportHooks) OnOpen(tenant string) {
	s := h.sub
	ctx := context.Background()

	rec, ok := s.registry.Get(tenant)
	if !ok {
		return
	}
	rec.SetStatus(StatusConnected)

	s.svc.clearDisconnectAlarm(ctx, tenant)
	s.svc.audit(ctx, tenant, "connected", s.spec.Name)
	s.svc.logger.Info("websocket session established",
		"tenant", tenant, "subscription", s.spec.Name)
}

func (h *transportHooks) OnNotification(tenant string, n wsclient.Notification) {
	s := h.sub
	// The routing header carries its own tenant discriminator; a shared
	// token can in principle deliver another tenant's traffic, so the
	// envelope wins over the connection it arrived on.
	if envTenant, err := n.TenantID(); err == nil && envTenant != tenant {
		s.svc.logger.Warn("notification tenant differs from connection tenant",
			"connection_tenant", tenant, "envelope_tenant", envTenant)
		tenant = envTenant
	}
	s.svc.dispatcher.Dispatch(context.Background(), tenant, s.spec.Channel, n)
}

func (h *transportHooks) OnError(tenant string, err error) {
	s := h.sub
	ctx := context.Background()

	if errors.Is(err, wsclient.ErrUpgradeRejected) {
		if rec, ok := s.registry.Get(tenant); ok {
			rec.SetStatus(StatusDisconnected)
		}
		s.svc.raiseDisconnectAlarm(ctx, tenant)
		s.svc.audit(ctx, tenant, "upgrade_rejected", s.spec.Name)
	}
	s.svc.logger.Error("websocket transport error",
		"tenant", tenant, "subscription", s.spec.Name, "error", err)
}

func (h *transportHooks) OnClose(tenant string) {
	s := h.sub
	ctx := context.Background()

	rec, ok := s.registry.Get(tenant)
	if !ok {
		// Offboarded while the close event was in flight.
		return
	}
	switch rec.Status() {
	case StatusReconnecting, StatusDisconnected:
		// Transition we initiated, or already signalled.
		s.svc.logger.Debug("websocket closed",
			"tenant", tenant, "subscription", s.spec.Name, "status", rec.Status().String())
		return
	}
	rec.SetStatus(StatusDisconnected)

	s.svc.raiseDisconnectAlarm(ctx, tenant)
	s.svc.audit(ctx, tenant, "disconnected", s.spec.Name)
	s.svc.logger.Warn("websocket disconnect detected",
		"tenant", tenant, "subscription", s.spec.Name)
}
