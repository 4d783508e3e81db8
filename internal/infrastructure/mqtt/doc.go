// Package mqtt provides the MQTT connection used to publish audit events.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// AdvisorPro treats MQTT as an outbound event bus. The auth core publishes
// one message per audit event and never subscribes; downstream consumers
// (SIEM forwarders, notification workers) subscribe to the audit tree.
//
//	AdvisorPro ─► MQTT Broker ─► audit consumers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Audit payloads never contain passwords, tokens or refresh secrets
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().Audit("ws-123", "LOGIN")
//	err = client.Publish(topic, payload, 1, false)
package mqtt
