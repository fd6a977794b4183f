// Package influxdb provides InfluxDB connectivity for Sous Edge Core.
//
// It wraps the official influxdb-client-go v2 library with Sous Edge-specific
// patterns for connection management, telemetry writing, and health monitoring.
//
// # Purpose
//
// This package is the time-series store behind the realtime hub's
// telemetry pipeline: samples that survive per-device throttling land
// here, tagged by hardware ID and metric key.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "sous",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.RecordTelemetry("kds-kitchen-01", "temperature_c", 21.5, nil)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
