package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RecordTelemetry writes a throttled telemetry sample to InfluxDB.
//
// This is the primary method for recording hardware telemetry and
// satisfies the realtime hub's sink interface. The write is non-blocking;
// data is batched and sent asynchronously.
//
// Scalar metadata values ride along as extra fields; nested values are
// dropped since InfluxDB fields are flat.
//
// Parameters:
//   - hardwareID: Physical unit identifier (e.g., "kds-kitchen-01")
//   - key: The metric name (e.g., "temperature_c", "cpu_percent")
//   - value: The numeric value to record
//   - metadata: Optional scalar context fields (may be nil)
//
// Example:
//
//	client.RecordTelemetry("kds-kitchen-01", "temperature_c", 21.5, nil)
func (c *Client) RecordTelemetry(hardwareID, key string, value float64, metadata map[string]any) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"value": value,
	}
	for k, v := range metadata {
		if k == "value" {
			continue
		}
		switch v.(type) {
		case float64, int, int64, bool, string:
			fields[k] = v
		}
	}

	point := write.NewPoint(
		"telemetry",
		map[string]string{
			"hardware_id": hardwareID,
			"key":         key,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit RecordTelemetry.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "edge-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
