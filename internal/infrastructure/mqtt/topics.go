package mqtt

import "fmt"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "advisorpro"

// Topics builds AdvisorPro MQTT topics under a common prefix.
//
//	topics := mqtt.Topics{Prefix: "advisorpro"}
//	topics.Audit("ws-1", "LOGIN") // advisorpro/audit/ws-1/LOGIN
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Audit returns the topic for one audit event. Events without a tenant are
// published under "_".
//
// Example: advisorpro/audit/ws-123/LOGIN
func (t Topics) Audit(tenantID, action string) string {
	if tenantID == "" {
		tenantID = "_"
	}
	return fmt.Sprintf("%s/audit/%s/%s", t.prefix(), tenantID, action)
}

// AllAudit returns a pattern matching every audit event.
//
// Pattern: advisorpro/audit/+/+
func (t Topics) AllAudit() string {
	return fmt.Sprintf("%s/audit/+/+", t.prefix())
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: advisorpro/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}
