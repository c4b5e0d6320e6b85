package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iotstream/notify-core/internal/infrastructure/wsclient"
)

type recordingSink struct {
	mu    sync.Mutex
	name  string
	calls []string // tenant/channel
	err   error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) HandleNotification(_ context.Context, tenant, channel string, _ wsclient.Notification) error {
	s.mu.Lock()
	s.calls = append(s.calls, tenant+"/"+channel)
	s.mu.Unlock()
	return s.err
}

func TestDispatcherSinkFailureIsolation(t *testing.T) {
	failing := &recordingSink{name: "bad", err: errors.New("boom")}
	healthy := &recordingSink{name: "good"}
	d := NewDispatcher(testLogger(), failing, healthy)

	d.Dispatch(context.Background(), "t1", ChannelMeasurements, wsclient.Notification{Message: "{}"})

	if len(failing.calls) != 1 || len(healthy.calls) != 1 {
		t.Fatalf("both sinks must run: failing=%d healthy=%d", len(failing.calls), len(healthy.calls))
	}
	if healthy.calls[0] != "t1/measurements" {
		t.Fatalf("call = %q", healthy.calls[0])
	}
}

type capturePublisher struct {
	topic   string
	payload []byte
}

func (p *capturePublisher) PublishDefault(topic string, payload []byte) error {
	p.topic = topic
	p.payload = payload
	return nil
}

func TestMQTTSinkTopicAndPayload(t *testing.T) {
	pub := &capturePublisher{}
	sink := NewMQTTSink(pub)

	n := wsclient.Notification{Message: `{"id":"1"}`}
	if err := sink.HandleNotification(context.Background(), "t12345", ChannelMeasurements, n); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if pub.topic != "notify/t12345/measurements" {
		t.Errorf("topic = %q", pub.topic)
	}
	if string(pub.payload) != `{"id":"1"}` {
		t.Errorf("payload = %q, want the raw notification body", pub.payload)
	}
}

type captureWriter struct {
	points []SeriesValue
	tenant string
	source string
}

func (w *captureWriter) WriteMeasurement(tenant, sourceID, fragment, series, unit string, value float64, _ time.Time) {
	w.tenant = tenant
	w.source = sourceID
	w.points = append(w.points, SeriesValue{Fragment: fragment, Series: series, Unit: unit, Value: value})
}

func TestInfluxSinkWritesSeries(t *testing.T) {
	w := &captureWriter{}
	sink := NewInfluxSink(w)

	n := wsclient.Notification{Message: sampleMeasurement}
	if err := sink.HandleNotification(context.Background(), "t12345", ChannelMeasurements, n); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if w.tenant != "t12345" || w.source != "4711" {
		t.Errorf("tags tenant=%q source=%q", w.tenant, w.source)
	}
	if len(w.points) != 2 {
		t.Fatalf("wrote %d points, want 2", len(w.points))
	}
}

func TestInfluxSinkIgnoresOtherChannels(t *testing.T) {
	w := &captureWriter{}
	sink := NewInfluxSink(w)

	n := wsclient.Notification{Message: `{"id":"1"}`}
	if err := sink.HandleNotification(context.Background(), "t1", ChannelManagedObjects, n); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(w.points) != 0 {
		t.Fatal("managed object notification must not reach the writer")
	}
}

func TestInfluxSinkMalformedBody(t *testing.T) {
	sink := NewInfluxSink(&captureWriter{})

	n := wsclient.Notification{Message: "{broken"}
	if err := sink.HandleNotification(context.Background(), "t1", ChannelMeasurements, n); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestMQTTSinkConnectionEvent(t *testing.T) {
	pub := &capturePublisher{}
	sink := NewMQTTSink(pub)

	err := sink.HandleConnectionEvent(context.Background(), "t12345", DeviceSubscriptionName, "disconnected")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if pub.topic != "notify/t12345/connection" {
		t.Errorf("topic = %q", pub.topic)
	}

	var got connectionEventPayload
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.Tenant != "t12345" || got.Event != "disconnected" || got.Subscription != DeviceSubscriptionName {
		t.Errorf("payload = %+v", got)
	}
}

type captureEventWriter struct {
	captureWriter
	events []string // tenant/status
}

func (w *captureEventWriter) WriteConnectionEvent(tenant, status string) {
	w.events = append(w.events, tenant+"/"+status)
}

func TestDispatchConnectionEvent(t *testing.T) {
	w := &captureEventWriter{}
	plain := &recordingSink{name: "plain"}
	d := NewDispatcher(testLogger(), plain, NewInfluxSink(w))

	d.DispatchConnectionEvent(context.Background(), "t1", TenantSubscriptionName, "connected")

	if len(w.events) != 1 || w.events[0] != "t1/connected" {
		t.Fatalf("events = %v", w.events)
	}
	if len(plain.calls) != 0 {
		t.Fatal("plain sink must not receive connection events")
	}
}

func TestInfluxSinkConnectionEventWithoutWriter(t *testing.T) {
	sink := NewInfluxSink(&captureWriter{})

	if err := sink.HandleConnectionEvent(context.Background(), "t1", TenantSubscriptionName, "connected"); err != nil {
		t.Fatalf("handle: %v", err)
	}
}
