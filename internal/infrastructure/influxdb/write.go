package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementAuthEvents is the measurement holding authentication activity.
const MeasurementAuthEvents = "auth_events"

// AuthEvent is one point in the auth_events series. Action and TenantID
// are tags; SubjectID is a field because it is high cardinality.
type AuthEvent struct {
	Action    string
	TenantID  string
	SubjectID string
	Entity    string
	Time      time.Time
}

// WriteAuthEvent queues one auth_events point. The write is non-blocking;
// failures surface through the SetOnError callback.
func (c *Client) WriteAuthEvent(e AuthEvent) {
	tags := map[string]string{"action": e.Action}
	if e.TenantID != "" {
		tags["tenant_id"] = e.TenantID
	}
	if e.Entity != "" {
		tags["entity"] = e.Entity
	}

	fields := map[string]interface{}{"count": 1}
	if e.SubjectID != "" {
		fields["subject_id"] = e.SubjectID
	}

	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	c.WritePointWithTime(MeasurementAuthEvents, tags, fields, ts)
}

// WritePointWithTime queues a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
