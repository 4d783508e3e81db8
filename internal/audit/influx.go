package audit

import (
	"context"

	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/influxdb"
)

// PointWriter is the subset of *influxdb.Client used by InfluxSink.
type PointWriter interface {
	WriteAuthEvent(e influxdb.AuthEvent)
}

// InfluxSink records each event as an auth_events point. Writes are
// batched by the client, so Write never reports delivery failures.
type InfluxSink struct {
	w PointWriter
}

// NewInfluxSink creates a sink writing through w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Write implements Sink.
func (s *InfluxSink) Write(_ context.Context, e Event) error {
	s.w.WriteAuthEvent(influxdb.AuthEvent{
		Action:    string(e.Action),
		TenantID:  e.TenantID,
		SubjectID: e.SubjectID,
		Entity:    e.Entity,
		Time:      e.OccurredAt,
	})
	return nil
}
