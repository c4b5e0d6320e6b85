package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteMeasurement writes one series value from a decoded measurement
// notification.
//
// The write is non-blocking; points are batched and sent asynchronously.
//
// Tags: tenant, source (device managed object id), fragment, series.
// Fields: value, plus unit when present.
//
// Example:
//
//	client.WriteMeasurement("t12345", "4711", "c8y_Temperature", "T", "C", 21.5, ts)
func (c *Client) WriteMeasurement(tenant, sourceID, fragment, series, unit string, value float64, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	fields := map[string]interface{}{
		"value": value,
	}
	if unit != "" {
		fields["unit"] = unit
	}

	point := write.NewPoint(
		"notifications",
		map[string]string{
			"tenant":   tenant,
			"source":   sourceID,
			"fragment": fragment,
			"series":   series,
		},
		fields,
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectionEvent records a connection status transition as a
// point, so reconnect churn is visible next to the telemetry it gates.
func (c *Client) WriteConnectionEvent(tenant, status string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"connection_events",
		map[string]string{
			"tenant": tenant,
		},
		map[string]interface{}{
			"status": status,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
