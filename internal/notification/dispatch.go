package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iotstream/notify-core/internal/infrastructure/logging"
	mqttinfra "github.com/iotstream/notify-core/internal/infrastructure/mqtt"
	"github.com/iotstream/notify-core/internal/infrastructure/wsclient"
)

// Sink consumes received notifications. Sink failures are isolated: a
// failing sink is logged and the remaining sinks still run.
type Sink interface {
	Name() string
	HandleNotification(ctx context.Context, tenant, channel string, n wsclient.Notification) error
}

// Dispatcher fans a received notification out to every configured sink.
type Dispatcher struct {
	sinks  []Sink
	logger *logging.Logger
}

func NewDispatcher(logger *logging.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, tenant, channel string, n wsclient.Notification) {
	for _, sink := range d.sinks {
		if err := sink.HandleNotification(ctx, tenant, channel, n); err != nil {
			d.logger.Warn("sink failed, continuing",
				"sink", sink.Name(), "tenant", tenant, "channel", channel, "error", err)
		}
	}
}

// ConnectionEventSink is implemented by sinks that additionally track
// connection lifecycle transitions.
type ConnectionEventSink interface {
	HandleConnectionEvent(ctx context.Context, tenant, subscription, event string) error
}

// DispatchConnectionEvent forwards a connection lifecycle event to every
// sink that tracks them. Same isolation rules as Dispatch.
func (d *Dispatcher) DispatchConnectionEvent(ctx context.Context, tenant, subscription, event string) {
	for _, sink := range d.sinks {
		ces, ok := sink.(ConnectionEventSink)
		if !ok {
			continue
		}
		if err := ces.HandleConnectionEvent(ctx, tenant, subscription, event); err != nil {
			d.logger.Warn("connection event sink failed, continuing",
				"sink", sink.Name(), "tenant", tenant, "event", event, "error", err)
		}
	}
}

// Publisher is the slice of the MQTT client the republish sink uses.
type Publisher interface {
	PublishDefault(topic string, payload []byte) error
}

// MQTTSink republishes raw notification bodies onto per-tenant topics.
type MQTTSink struct {
	pub Publisher
}

func NewMQTTSink(pub Publisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) HandleNotification(_ context.Context, tenant, channel string, n wsclient.Notification) error {
	topic := mqttinfra.Topics{}.TenantNotification(tenant, channel)
	return s.pub.PublishDefault(topic, []byte(n.Message))
}

// connectionEventPayload is the wire form published on the per-tenant
// connection topic.
type connectionEventPayload struct {
	Tenant       string    `json:"tenant"`
	Subscription string    `json:"subscription"`
	Event        string    `json:"event"`
	Timestamp    time.Time `json:"timestamp"`
}

// HandleConnectionEvent publishes connection transitions so broker
// consumers can track tenant connectivity without polling the API.
func (s *MQTTSink) HandleConnectionEvent(_ context.Context, tenant, subscription, event string) error {
	payload, err := json.Marshal(connectionEventPayload{
		Tenant:       tenant,
		Subscription: subscription,
		Event:        event,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.pub.PublishDefault(mqttinfra.Topics{}.TenantConnection(tenant), payload)
}

// MeasurementWriter is the slice of the InfluxDB client the measurement
// sink uses.
type MeasurementWriter interface {
	WriteMeasurement(tenant, sourceID, fragment, series, unit string, value float64, timestamp time.Time)
}

// ConnectionEventWriter stores connection transitions as time series.
// Optional for a MeasurementWriter; the sink type-asserts for it.
type ConnectionEventWriter interface {
	WriteConnectionEvent(tenant, status string)
}

// InfluxSink decodes measurement notifications and stores each numeric
// series as a point. Notifications on other channels pass through
// untouched.
type InfluxSink struct {
	writer MeasurementWriter
}

func NewInfluxSink(writer MeasurementWriter) *InfluxSink {
	return &InfluxSink{writer: writer}
}

func (s *InfluxSink) Name() string { return "influxdb" }

func (s *InfluxSink) HandleNotification(_ context.Context, tenant, channel string, n wsclient.Notification) error {
	if channel != ChannelMeasurements {
		return nil
	}

	m, err := DecodeMeasurement(n.Message)
	if err != nil {
		return err
	}
	for _, v := range m.Values() {
		s.writer.WriteMeasurement(tenant, m.SourceID, v.Fragment, v.Series, v.Unit, v.Value, m.Time)
	}
	return nil
}

// HandleConnectionEvent records the transition when the underlying writer
// supports connection event points.
func (s *InfluxSink) HandleConnectionEvent(_ context.Context, tenant, _, event string) error {
	if w, ok := s.writer.(ConnectionEventWriter); ok {
		w.WriteConnectionEvent(tenant, event)
	}
	return nil
}
