// Package influxdb provides InfluxDB connectivity for notify-core.
//
// It wraps the official influxdb-client-go v2 library with notify-core
// patterns for connection management, measurement writing, and health
// monitoring.
//
// # Purpose
//
// The measurement sink stores decoded measurement notifications as
// time-series points, tagged by tenant, source device, fragment and
// series, so republished device telemetry is queryable after the fact.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "iotstream",
//	    Bucket: "notifications",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteMeasurement("t12345", "4711", "c8y_Temperature", "T", "C", 21.5, time.Now())
//
// Writes are non-blocking and batched; async write errors surface
// through the SetOnError callback.
package influxdb
