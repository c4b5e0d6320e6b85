package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iotstream/notify-core/internal/infrastructure/config"
	"github.com/iotstream/notify-core/internal/infrastructure/logging"
	"github.com/iotstream/notify-core/internal/infrastructure/wsclient"
	"github.com/iotstream/notify-core/internal/platform"
)

// Options configures a Service. Dial and NewClient default to the real
// transport and REST client; tests inject fakes.
type Options struct {
	Platform  config.PlatformConfig
	Reconnect config.ReconnectConfig
	Logger    *logging.Logger

	Dispatcher *Dispatcher
	Audit      Auditor

	// Dial overrides transport establishment.
	Dial DialFunc

	// NewClient overrides per-tenant REST client construction.
	NewClient func(creds platform.Credentials) Platform
}

// defaultSubscriberSuffix is appended to the tenant id to form the
// device subscription's subscriber identity when config leaves it empty.
const defaultSubscriberSuffix = "NotifyCoreSubscriber"

// Service is the orchestration root: it owns the per-tenant platform
// clients, the two subscribers (device-scope measurements, tenant-scope
// managed objects), and their reconnect schedulers.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Run is called exactly once, by the process lifecycle owner.
type Service struct {
	logger     *logging.Logger
	dispatcher *Dispatcher
	auditor    Auditor
	dial       DialFunc
	newClient  func(creds platform.Credentials) Platform

	tokenTTL  int
	pageSize  int
	reconnect config.ReconnectConfig

	// sourceOverride, when set, skips platform resolution of the alarm
	// source managed object.
	sourceOverride string

	device *Subscriber
	tenant *Subscriber

	mu      sync.RWMutex
	clients map[string]Platform
	hosts   map[string]string
	sources map[string]string

	runOnce sync.Once
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	dial := opts.Dial
	if dial == nil {
		dial = func(ctx context.Context, endpoint, tenant string, cb wsclient.Callback, cfg wsclient.Config) Transport {
			return wsclient.Dial(ctx, endpoint, tenant, cb, cfg)
		}
	}
	newClient := opts.NewClient
	if newClient == nil {
		base := opts.Platform.BaseURL
		newClient = func(creds platform.Credentials) Platform {
			return platform.NewClient(base, creds)
		}
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher(logger)
	}
	suffix := opts.Platform.Subscriber
	if suffix == "" {
		suffix = defaultSubscriberSuffix
	}

	s := &Service{
		logger:         logger.With("component", "notification"),
		dispatcher:     dispatcher,
		auditor:        opts.Audit,
		dial:           dial,
		newClient:      newClient,
		tokenTTL:       opts.Platform.TokenTTL,
		pageSize:       opts.Platform.PageSize,
		reconnect:      opts.Reconnect,
		sourceOverride: opts.Platform.SourceID,
		clients:        make(map[string]Platform),
		hosts:          make(map[string]string),
		sources:        make(map[string]string),
	}
	s.device = newSubscriber(s, deviceSpec(suffix))
	s.tenant = newSubscriber(s, tenantSpec())
	return s
}

// Run starts the reconnect schedulers, one per subscriber, and blocks
// until ctx is cancelled. Subsequent calls are no-ops.
func (s *Service) Run(ctx context.Context) {
	s.runOnce.Do(func() {
		schedCfg := SchedulerConfig{
			InitialDelay: s.reconnect.GetInitialDelay(),
			Period:       s.reconnect.GetPeriod(),
			SettleDelay:  s.reconnect.GetSettleDelay(),
		}

		var wg sync.WaitGroup
		for _, sub := range []*Subscriber{s.device, s.tenant} {
			sched := NewScheduler(sub.registry, sub, schedCfg,
				s.logger.With("subscription", sub.spec.Name))
			wg.Add(1)
			go func() {
				defer wg.Done()
				sched.Run(ctx)
			}()
		}
		wg.Wait()
	})
}

// TenantAdded onboards a tenant: builds its platform client, converges
// both subscription types and opens their websocket sessions. Partial
// failure still onboards the tenant; the scheduler picks up what could
// not connect here.
func (s *Service) TenantAdded(ctx context.Context, creds platform.Credentials) error {
	s.mu.Lock()
	if _, exists := s.clients[creds.Tenant]; exists {
		s.mu.Unlock()
		s.logger.Debug("tenant already onboarded", "tenant", creds.Tenant)
		return nil
	}
	s.clients[creds.Tenant] = s.newClient(creds)
	s.mu.Unlock()

	s.logger.Info("tenant onboarding", "tenant", creds.Tenant)
	s.audit(ctx, creds.Tenant, "onboarded", "")

	var errs []error
	for _, sub := range []*Subscriber{s.device, s.tenant} {
		if err := sub.subscribe(ctx, creds.Tenant); err != nil {
			s.logger.Error("subscription setup failed",
				"tenant", creds.Tenant, "subscription", sub.spec.Name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TenantRemoved offboards a tenant: tokens invalidated, transports
// closed, registry records and cached client state dropped.
func (s *Service) TenantRemoved(ctx context.Context, tenant string) error {
	s.mu.Lock()
	_, exists := s.clients[tenant]
	s.mu.Unlock()
	if !exists {
		return ErrTenantUnknown
	}

	s.device.teardown(ctx, tenant)
	s.tenant.teardown(ctx, tenant)

	s.mu.Lock()
	delete(s.clients, tenant)
	delete(s.hosts, tenant)
	delete(s.sources, tenant)
	s.mu.Unlock()

	s.logger.Info("tenant offboarded", "tenant", tenant)
	return nil
}

// Tenants returns the onboarded tenant ids.
func (s *Service) Tenants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.clients))
	for tenant := range s.clients {
		out = append(out, tenant)
	}
	return out
}

// SubscriptionsForDevice lists the remote subscriptions attached to one
// device managed object.
func (s *Service) SubscriptionsForDevice(ctx context.Context, tenant, deviceID string) ([]platform.Subscription, error) {
	client, err := s.client(tenant)
	if err != nil {
		return nil, err
	}
	subs, err := client.FindSubscriptions(ctx, platform.SubscriptionFilter{
		SourceID: deviceID,
		Context:  platform.ContextManagedObject,
	})
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions for device %s: %w", deviceID, err)
	}
	return subs, nil
}

// UnsubscribeDevice removes the named subscription from one device.
// Removing a subscription the device does not carry is a no-op.
func (s *Service) UnsubscribeDevice(ctx context.Context, tenant, deviceID, name string) error {
	client, err := s.client(tenant)
	if err != nil {
		return err
	}
	rec := NewReconciler(client, client, s.logger)
	_, err = rec.RemoveSubscription(ctx, platform.SubscriptionFilter{
		SourceID: deviceID,
		Context:  platform.ContextManagedObject,
		Name:     name,
	})
	return err
}

// UnsubscribeAllDevices removes the named subscription from every
// device and direct child, returning how many were removed.
func (s *Service) UnsubscribeAllDevices(ctx context.Context, tenant, name string) (int, error) {
	client, err := s.client(tenant)
	if err != nil {
		return 0, err
	}
	rec := NewReconciler(client, client, s.logger)
	return rec.RemoveDeviceSubscriptions(ctx, name, s.pageSize)
}

// Unsubscribe detaches the tenant's consumers: tokens invalidated and
// transports closed for both subscription types. The remote
// subscriptions stay and the tenant remains onboarded;
// ResubscribeTenant restores the sessions.
func (s *Service) Unsubscribe(ctx context.Context, tenant string) error {
	if _, err := s.client(tenant); err != nil {
		return err
	}
	s.device.teardown(ctx, tenant)
	s.tenant.teardown(ctx, tenant)
	return nil
}

// ResubscribeTenant re-runs the full subscribe flow for an onboarded
// tenant whose consumers were detached.
func (s *Service) ResubscribeTenant(ctx context.Context, tenant string) error {
	if _, err := s.client(tenant); err != nil {
		return err
	}
	var errs []error
	for _, sub := range []*Subscriber{s.device, s.tenant} {
		if err := sub.subscribe(ctx, tenant); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ForceDisconnect closes the tenant's transports without removing the
// registry records, so the scheduler brings the connections back. The
// records are marked DISCONNECTED before the transports close, which
// keeps the close callbacks quiet, so the alarm and audit entry are
// raised here.
func (s *Service) ForceDisconnect(ctx context.Context, tenant string) error {
	found := false
	for _, sub := range []*Subscriber{s.device, s.tenant} {
		rec, ok := sub.registry.Get(tenant)
		if !ok {
			continue
		}
		found = true
		rec.SetStatus(StatusDisconnected)
		if handle := rec.Handle(); handle != nil {
			if err := handle.Disconnect(); err != nil {
				s.logger.Warn("forced disconnect failed",
					"tenant", tenant, "subscription", sub.spec.Name, "error", err)
			}
		}
		s.audit(ctx, tenant, "disconnected", sub.spec.Name)
	}
	if !found {
		return ErrNotConnected
	}
	s.raiseDisconnectAlarm(ctx, tenant)
	return nil
}

// ConnectionInfo is one row of the connection status snapshot.
type ConnectionInfo struct {
	Tenant       string `json:"tenant"`
	Subscription string `json:"subscription"`
	Status       string `json:"status"`
	Transport    string `json:"transport"`
}

// Connections reports every registered connection across both
// subscription types.
func (s *Service) Connections() []ConnectionInfo {
	var out []ConnectionInfo
	for _, sub := range []*Subscriber{s.device, s.tenant} {
		for tenant, rec := range sub.registry.Snapshot() {
			info := ConnectionInfo{
				Tenant:       tenant,
				Subscription: sub.spec.Name,
				Status:       rec.Status().String(),
			}
			if handle := rec.Handle(); handle != nil {
				info.Transport = handle.State().String()
			}
			out = append(out, info)
		}
	}
	return out
}

// DeviceSubscriber and TenantSubscriber expose the two subscribers for
// inspection.
func (s *Service) DeviceSubscriber() *Subscriber { return s.device }
func (s *Service) TenantSubscriber() *Subscriber { return s.tenant }

func (s *Service) client(tenant string) (Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[tenant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTenantUnknown, tenant)
	}
	return client, nil
}

// host resolves and caches the tenant's websocket host.
func (s *Service) host(ctx context.Context, tenant string) (string, error) {
	s.mu.RLock()
	host, ok := s.hosts[tenant]
	s.mu.RUnlock()
	if ok {
		return host, nil
	}

	client, err := s.client(tenant)
	if err != nil {
		return "", err
	}
	host, err = client.TenantHost(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving host for %s: %w", tenant, err)
	}

	s.mu.Lock()
	s.hosts[tenant] = host
	s.mu.Unlock()
	return host, nil
}

// sourceFor resolves and caches the managed object alarms are posted
// against for a tenant. An empty return means alarms are skipped.
func (s *Service) sourceFor(ctx context.Context, tenant string) string {
	if s.sourceOverride != "" {
		return s.sourceOverride
	}

	s.mu.RLock()
	source, ok := s.sources[tenant]
	s.mu.RUnlock()
	if ok {
		return source
	}

	client, err := s.client(tenant)
	if err != nil {
		return ""
	}
	source, err = client.ServiceSourceID(ctx)
	if err != nil {
		s.logger.Warn("alarm source resolution failed, alarms suppressed",
			"tenant", tenant, "error", err)
		return ""
	}

	s.mu.Lock()
	s.sources[tenant] = source
	s.mu.Unlock()
	return source
}

func (s *Service) raiseDisconnectAlarm(ctx context.Context, tenant string) {
	client, err := s.client(tenant)
	if err != nil {
		return
	}
	source := s.sourceFor(ctx, tenant)
	if source == "" {
		return
	}
	if err := client.RaiseAlarm(ctx, source, DisconnectAlarmType+tenant); err != nil {
		s.logger.Error("raising disconnect alarm failed", "tenant", tenant, "error", err)
	}
}

func (s *Service) clearDisconnectAlarm(ctx context.Context, tenant string) {
	client, err := s.client(tenant)
	if err != nil {
		return
	}
	source := s.sourceFor(ctx, tenant)
	if source == "" {
		return
	}
	if err := client.ClearAlarm(ctx, source, DisconnectAlarmType+tenant); err != nil {
		s.logger.Error("clearing disconnect alarm failed", "tenant", tenant, "error", err)
	}
}

// audit records a lifecycle event in the trail and forwards it to sinks
// that track connection state. Both paths are best-effort.
func (s *Service) audit(ctx context.Context, tenant, event, detail string) {
	if s.auditor != nil {
		s.auditor.Record(ctx, tenant, event, detail)
	}
	s.dispatcher.DispatchConnectionEvent(ctx, tenant, detail, event)
}

func (s *Service) wsConfig() wsclient.Config {
	return wsclient.Config{
		KeepAliveInterval: s.reconnect.GetKeepAliveInterval(),
		Logger:            s.logger,
	}
}
