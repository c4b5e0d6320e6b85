package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/iotstream/notify-core/internal/infrastructure/config"
	"github.com/iotstream/notify-core/internal/infrastructure/wsclient"
	"github.com/iotstream/notify-core/internal/platform"
)

// fakePlatform implements the full Platform surface in memory.
type fakePlatform struct {
	*fakeSubscriptionStore
	inv *fakeInventory

	mu          sync.Mutex
	tokenSeq    int
	tokenErr    error
	issued      []string // subscriber|subscription
	invalidated []string
	raised      []string // source|type
	cleared     []string // source|type
	host        string
	sourceID    string
}

func newFakePlatform(devices ...platform.DeviceNode) *fakePlatform {
	return &fakePlatform{
		fakeSubscriptionStore: newFakeSubscriptionStore(),
		inv:                   &fakeInventory{devices: devices},
		host:                  "host.example",
		sourceID:              "src-1",
	}
}

func (f *fakePlatform) ListDevices(ctx context.Context, pageSize int, includeChildren bool) ([]platform.DeviceNode, error) {
	return f.inv.ListDevices(ctx, pageSize, includeChildren)
}

func (f *fakePlatform) IssueToken(_ context.Context, subscriber, subscription string, _ int, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	f.tokenSeq++
	f.issued = append(f.issued, subscriber+"|"+subscription)
	return fmt.Sprintf("tok-%s-%d", subscription, f.tokenSeq), nil
}

func (f *fakePlatform) InvalidateToken(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, token)
	return nil
}

func (f *fakePlatform) RaiseAlarm(_ context.Context, sourceID, alarmType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raised = append(f.raised, sourceID+"|"+alarmType)
	return nil
}

func (f *fakePlatform) ClearAlarm(_ context.Context, sourceID, alarmType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, sourceID+"|"+alarmType)
	return nil
}

func (f *fakePlatform) TenantHost(context.Context) (string, error)      { return f.host, nil }
func (f *fakePlatform) ServiceSourceID(context.Context) (string, error) { return f.sourceID, nil }

// fakeDialer hands out fake transports and records the dialed endpoints.
type fakeDialer struct {
	mu         sync.Mutex
	endpoints  []string
	transports []*fakeTransport
}

func (d *fakeDialer) dial(_ context.Context, endpoint, _ string, _ wsclient.Callback, _ wsclient.Config) Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints = append(d.endpoints, endpoint)
	tr := &fakeTransport{state: wsclient.StateRunning}
	d.transports = append(d.transports, tr)
	return tr
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.endpoints)
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []string // tenant|event
}

func (a *recordingAuditor) Record(_ context.Context, tenant, event, _ string) {
	a.mu.Lock()
	a.events = append(a.events, tenant+"|"+event)
	a.mu.Unlock()
}

func (a *recordingAuditor) has(entry string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.events {
		if e == entry {
			return true
		}
	}
	return false
}

func newTestService(pf *fakePlatform, dialer *fakeDialer, auditor Auditor) *Service {
	return NewService(Options{
		Platform: config.PlatformConfig{
			BaseURL:    "https://host.example",
			Subscriber: "NotifyCoreSubscriber",
			TokenTTL:   1440,
			PageSize:   2000,
		},
		Reconnect: config.ReconnectConfig{
			InitialDelay:      30,
			Period:            120,
			SettleDelay:       120,
			KeepAliveInterval: 10,
		},
		Logger: testLogger(),
		Audit:  auditor,
		Dial:   dialer.dial,
		NewClient: func(platform.Credentials) Platform {
			return pf
		},
	})
}

func onboard(t *testing.T, svc *Service, tenant string) {
	t.Helper()
	err := svc.TenantAdded(context.Background(), platform.Credentials{
		Tenant: tenant, Username: "svc", Password: "pw",
	})
	if err != nil {
		t.Fatalf("TenantAdded: %v", err)
	}
}

func TestTenantAddedSubscribesAndConnects(t *testing.T) {
	pf := newFakePlatform(
		platform.DeviceNode{ID: "1", ChildIDs: []string{"11"}},
		platform.DeviceNode{ID: "2"},
	)
	dialer := &fakeDialer{}
	svc := newTestService(pf, dialer, nil)

	onboard(t, svc, "t1")

	// Device fan-out over 2 devices + 1 child, plus one tenant-scope
	// subscription.
	if pf.count() != 4 {
		t.Fatalf("subscriptions = %d, want 4", pf.count())
	}
	if dialer.dialCount() != 2 {
		t.Fatalf("dials = %d, want one per subscription type", dialer.dialCount())
	}

	for _, ep := range dialer.endpoints {
		if !strings.HasPrefix(ep, "wss://host.example:443/notification2/consumer/?token=tok-") {
			t.Errorf("endpoint %q does not carry the issued token verbatim", ep)
		}
	}

	rec, ok := svc.DeviceSubscriber().Registry().Get("t1")
	if !ok {
		t.Fatal("device registry missing t1")
	}
	if !strings.HasPrefix(rec.Token(), "tok-"+DeviceSubscriptionName) {
		t.Fatalf("record token = %q", rec.Token())
	}
	if _, ok := svc.TenantSubscriber().Registry().Get("t1"); !ok {
		t.Fatal("tenant registry missing t1")
	}
}

func TestTenantAddedIdempotent(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	dialer := &fakeDialer{}
	svc := newTestService(pf, dialer, nil)

	onboard(t, svc, "t1")
	dials := dialer.dialCount()
	onboard(t, svc, "t1")

	if dialer.dialCount() != dials {
		t.Fatal("repeat onboarding dialed again")
	}
}

func TestFailedOnboardingLeavesRecoverableRecord(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	pf.tokenErr = platform.ErrUnavailable
	dialer := &fakeDialer{}
	svc := newTestService(pf, dialer, nil)

	err := svc.TenantAdded(context.Background(), platform.Credentials{
		Tenant: "t1", Username: "svc", Password: "pw",
	})
	if err == nil {
		t.Fatal("onboarding must report the token failure")
	}
	if dialer.dialCount() != 0 {
		t.Fatalf("dials = %d, want none without a token", dialer.dialCount())
	}

	// The tenant stays onboarded and each subscriber keeps a record the
	// scheduler will pick up.
	for _, sub := range []*Subscriber{svc.DeviceSubscriber(), svc.TenantSubscriber()} {
		rec, ok := sub.Registry().Get("t1")
		if !ok {
			t.Fatalf("%s registry missing t1 after failed onboarding", sub.Spec().Name)
		}
		if rec.Status() != StatusDisconnected {
			t.Fatalf("%s status = %v, want DISCONNECTED", sub.Spec().Name, rec.Status())
		}
		if rec.Handle() != nil {
			t.Fatalf("%s record carries a handle without a dial", sub.Spec().Name)
		}
	}
}

func TestReconnectAfterFailedOnboardingConverges(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	pf.inv.err = platform.ErrUnavailable
	dialer := &fakeDialer{}
	svc := newTestService(pf, dialer, nil)

	err := svc.TenantAdded(context.Background(), platform.Credentials{
		Tenant: "t1", Username: "svc", Password: "pw",
	})
	if err == nil {
		t.Fatal("onboarding must report the inventory failure")
	}
	rec, ok := svc.DeviceSubscriber().Registry().Get("t1")
	if !ok {
		t.Fatal("device registry missing t1 after failed onboarding")
	}
	if rec.Status() != StatusDisconnected {
		t.Fatalf("status = %v, want DISCONNECTED", rec.Status())
	}

	// Inventory comes back; the reconnect path re-converges the remote
	// subscription set before dialing.
	pf.inv.err = nil
	if err := svc.DeviceSubscriber().Reconnect(context.Background(), "t1", "tok"); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if rec.Handle() == nil {
		t.Fatal("reconnect did not attach a transport")
	}
	subs, err := pf.FindSubscriptions(context.Background(), platform.SubscriptionFilter{
		SourceID: "1", Name: DeviceSubscriptionName,
	})
	if err != nil {
		t.Fatalf("FindSubscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("device subscriptions = %d, want 1 after reconnect", len(subs))
	}
}

func TestTokenSubscriberIdentities(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	svc := newTestService(pf, &fakeDialer{}, nil)

	onboard(t, svc, "t1")

	pf.mu.Lock()
	defer pf.mu.Unlock()
	wantDevice := "t1NotifyCoreSubscriber|" + DeviceSubscriptionName
	wantTenant := tenantSubscriberName + "|" + TenantSubscriptionName
	found := map[string]bool{}
	for _, issued := range pf.issued {
		found[issued] = true
	}
	if !found[wantDevice] {
		t.Errorf("device token %q not issued, got %v", wantDevice, pf.issued)
	}
	if !found[wantTenant] {
		t.Errorf("tenant token %q not issued, got %v", wantTenant, pf.issued)
	}
}

func TestCloseEventRaisesDisconnectAlarm(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	auditor := &recordingAuditor{}
	svc := newTestService(pf, &fakeDialer{}, auditor)

	onboard(t, svc, "t1")
	rec, _ := svc.DeviceSubscriber().Registry().Get("t1")
	rec.SetStatus(StatusConnected)

	hooks := &transportHooks{sub: svc.DeviceSubscriber()}
	hooks.OnClose("t1")

	if rec.Status() != StatusDisconnected {
		t.Fatalf("status = %v, want DISCONNECTED", rec.Status())
	}
	pf.mu.Lock()
	raised := append([]string(nil), pf.raised...)
	pf.mu.Unlock()
	want := "src-1|" + DisconnectAlarmType + "t1"
	if len(raised) != 1 || raised[0] != want {
		t.Fatalf("raised = %v, want [%s]", raised, want)
	}
	if !auditor.has("t1|disconnected") {
		t.Error("disconnect not audited")
	}
}

func TestOpenEventClearsDisconnectAlarm(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	auditor := &recordingAuditor{}
	svc := newTestService(pf, &fakeDialer{}, auditor)

	onboard(t, svc, "t1")
	rec, _ := svc.DeviceSubscriber().Registry().Get("t1")

	hooks := &transportHooks{sub: svc.DeviceSubscriber()}
	hooks.OnOpen("t1")

	if rec.Status() != StatusConnected {
		t.Fatalf("status = %v, want CONNECTED", rec.Status())
	}
	pf.mu.Lock()
	cleared := append([]string(nil), pf.cleared...)
	pf.mu.Unlock()
	want := "src-1|" + DisconnectAlarmType + "t1"
	if len(cleared) == 0 || cleared[len(cleared)-1] != want {
		t.Fatalf("cleared = %v, want %s", cleared, want)
	}
	if !auditor.has("t1|connected") {
		t.Error("open not audited")
	}
}

func TestCloseDuringReconnectDoesNotAlarm(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	svc := newTestService(pf, &fakeDialer{}, nil)

	onboard(t, svc, "t1")
	rec, _ := svc.DeviceSubscriber().Registry().Get("t1")
	rec.SetStatus(StatusReconnecting)

	hooks := &transportHooks{sub: svc.DeviceSubscriber()}
	hooks.OnClose("t1")

	pf.mu.Lock()
	defer pf.mu.Unlock()
	if len(pf.raised) != 0 {
		t.Fatalf("alarm raised for a deliberate close: %v", pf.raised)
	}
}

func TestNotificationEventDispatches(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	sink := &recordingSink{name: "capture"}
	svc := NewService(Options{
		Platform:   config.PlatformConfig{BaseURL: "https://x", TokenTTL: 1440, PageSize: 2000},
		Logger:     testLogger(),
		Dispatcher: NewDispatcher(testLogger(), sink),
		Dial:       (&fakeDialer{}).dial,
		NewClient:  func(platform.Credentials) Platform { return pf },
	})

	onboard(t, svc, "t1")

	hooks := &transportHooks{sub: svc.DeviceSubscriber()}
	hooks.OnNotification("t1", wsclient.Notification{Message: "{}"})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.calls) != 1 || sink.calls[0] != "t1/"+ChannelMeasurements {
		t.Fatalf("calls = %v", sink.calls)
	}
}

func TestNotificationEnvelopeTenantWins(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	sink := &recordingSink{name: "capture"}
	svc := NewService(Options{
		Platform:   config.PlatformConfig{BaseURL: "https://x", TokenTTL: 1440, PageSize: 2000},
		Logger:     testLogger(),
		Dispatcher: NewDispatcher(testLogger(), sink),
		Dial:       (&fakeDialer{}).dial,
		NewClient:  func(platform.Credentials) Platform { return pf },
	})

	onboard(t, svc, "t1")

	hooks := &transportHooks{sub: svc.DeviceSubscriber()}
	hooks.OnNotification("t1", wsclient.Notification{
		Headers: []string{"/t2/measurements/123"},
		Message: "{}",
	})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.calls) != 1 || sink.calls[0] != "t2/"+ChannelMeasurements {
		t.Fatalf("calls = %v, want envelope tenant t2", sink.calls)
	}
}

func TestTenantRemoved(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	dialer := &fakeDialer{}
	svc := newTestService(pf, dialer, nil)

	onboard(t, svc, "t1")
	if err := svc.TenantRemoved(context.Background(), "t1"); err != nil {
		t.Fatalf("TenantRemoved: %v", err)
	}

	pf.mu.Lock()
	invalidated := len(pf.invalidated)
	pf.mu.Unlock()
	if invalidated != 2 {
		t.Fatalf("invalidated %d tokens, want 2", invalidated)
	}
	if _, ok := svc.DeviceSubscriber().Registry().Get("t1"); ok {
		t.Fatal("device record survived offboarding")
	}
	if err := svc.TenantRemoved(context.Background(), "t1"); !errors.Is(err, ErrTenantUnknown) {
		t.Fatalf("second removal: got %v, want ErrTenantUnknown", err)
	}
}

func TestForceDisconnectKeepsRecords(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	dialer := &fakeDialer{}
	auditor := &recordingAuditor{}
	svc := newTestService(pf, dialer, auditor)

	onboard(t, svc, "t1")
	if err := svc.ForceDisconnect(context.Background(), "t1"); err != nil {
		t.Fatalf("ForceDisconnect: %v", err)
	}

	rec, ok := svc.DeviceSubscriber().Registry().Get("t1")
	if !ok {
		t.Fatal("forced disconnect must keep the record for the scheduler")
	}
	if rec.Status() != StatusDisconnected {
		t.Fatalf("status = %v, want DISCONNECTED", rec.Status())
	}

	dialer.mu.Lock()
	for _, tr := range dialer.transports {
		if tr.disconnects == 0 {
			t.Fatal("a transport was not disconnected")
		}
	}
	dialer.mu.Unlock()

	// The close callbacks stay quiet for a deliberate disconnect, so
	// the alarm and audit entry come from the force path itself.
	pf.mu.Lock()
	raised := append([]string(nil), pf.raised...)
	pf.mu.Unlock()
	want := "src-1|" + DisconnectAlarmType + "t1"
	if len(raised) != 1 || raised[0] != want {
		t.Fatalf("raised = %v, want [%s]", raised, want)
	}
	if !auditor.has("t1|disconnected") {
		t.Error("forced disconnect not audited")
	}

	if err := svc.ForceDisconnect(context.Background(), "ghost"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("unknown tenant: got %v, want ErrNotConnected", err)
	}
}

func TestUnsubscribeDevice(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	svc := newTestService(pf, &fakeDialer{}, nil)

	onboard(t, svc, "t1")

	if err := svc.UnsubscribeDevice(context.Background(), "t1", "1", DeviceSubscriptionName); err != nil {
		t.Fatalf("UnsubscribeDevice: %v", err)
	}
	subs, err := svc.SubscriptionsForDevice(context.Background(), "t1", "1")
	if err != nil {
		t.Fatalf("SubscriptionsForDevice: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("device still has %d subscriptions", len(subs))
	}

	// Removing again converges on the same absent state.
	if err := svc.UnsubscribeDevice(context.Background(), "t1", "1", DeviceSubscriptionName); err != nil {
		t.Fatalf("repeat unsubscribe must be a no-op, got %v", err)
	}
}

func TestReconnectUsesProvidedToken(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	dialer := &fakeDialer{}
	svc := newTestService(pf, dialer, nil)

	onboard(t, svc, "t1")
	if err := svc.DeviceSubscriber().Reconnect(context.Background(), "t1", "fresh-token"); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}

	dialer.mu.Lock()
	last := dialer.endpoints[len(dialer.endpoints)-1]
	dialer.mu.Unlock()
	if !strings.HasSuffix(last, "?token=fresh-token") {
		t.Fatalf("endpoint = %q, want the fresh token verbatim", last)
	}

	rec, _ := svc.DeviceSubscriber().Registry().Get("t1")
	if rec.Token() != "fresh-token" {
		t.Fatalf("record token = %q", rec.Token())
	}
}

func TestReconnectUnknownTenant(t *testing.T) {
	svc := newTestService(newFakePlatform(), &fakeDialer{}, nil)

	err := svc.DeviceSubscriber().Reconnect(context.Background(), "ghost", "tok")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
}

func TestConnectionsSnapshot(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	svc := newTestService(pf, &fakeDialer{}, nil)

	onboard(t, svc, "t1")

	infos := svc.Connections()
	if len(infos) != 2 {
		t.Fatalf("connections = %d, want 2", len(infos))
	}
	names := map[string]bool{}
	for _, info := range infos {
		if info.Tenant != "t1" {
			t.Errorf("tenant = %q", info.Tenant)
		}
		if info.Transport != "running" {
			t.Errorf("transport = %q", info.Transport)
		}
		names[info.Subscription] = true
	}
	if !names[DeviceSubscriptionName] || !names[TenantSubscriptionName] {
		t.Fatalf("missing subscription rows: %v", names)
	}
}

func TestUnsubscribeAndResubscribe(t *testing.T) {
	pf := newFakePlatform(platform.DeviceNode{ID: "1"})
	dialer := &fakeDialer{}
	svc := newTestService(pf, dialer, nil)

	onboard(t, svc, "t1")
	if err := svc.Unsubscribe(context.Background(), "t1"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	if _, ok := svc.DeviceSubscriber().Registry().Get("t1"); ok {
		t.Fatal("unsubscribe must drop the registry record")
	}
	// The remote subscriptions stay in place.
	if pf.count() == 0 {
		t.Fatal("unsubscribe must not delete remote subscriptions")
	}

	if err := svc.ResubscribeTenant(context.Background(), "t1"); err != nil {
		t.Fatalf("ResubscribeTenant: %v", err)
	}
	if _, ok := svc.DeviceSubscriber().Registry().Get("t1"); !ok {
		t.Fatal("resubscribe must restore the record")
	}
}
