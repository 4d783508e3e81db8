package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/mqtt"
)

// Publisher is the subset of *mqtt.Client used by MQTTSink.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Topics() mqtt.Topics
	QoS() byte
}

// MQTTSink publishes each event as JSON to
// {prefix}/audit/{tenant}/{action}. Messages are not retained.
type MQTTSink struct {
	pub Publisher
}

// NewMQTTSink creates a sink publishing through pub.
func NewMQTTSink(pub Publisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

// Write implements Sink.
func (s *MQTTSink) Write(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling audit event: %w", err)
	}
	topic := s.pub.Topics().Audit(e.TenantID, string(e.Action))
	if err := s.pub.Publish(topic, payload, s.pub.QoS(), false); err != nil {
		return fmt.Errorf("publishing audit event: %w", err)
	}
	return nil
}
