package audit

import "time"

// Action names a recorded activity.
type Action string

const (
	ActionSignup          Action = "SIGNUP"
	ActionLogin           Action = "LOGIN"
	ActionLoginFailed     Action = "LOGIN_FAILED"
	ActionRefresh         Action = "REFRESH"
	ActionRefreshRejected Action = "REFRESH_REJECTED"
	ActionLogout          Action = "LOGOUT"
	ActionLogoutAll       Action = "LOGOUT_ALL"
	ActionRoleChanged     Action = "ROLE_CHANGED"
)

// Entity types referenced by events.
const (
	EntityUser       = "user"
	EntitySession    = "session"
	EntityMembership = "membership"
)

// Event is one audit trail entry. TenantID and SubjectID are empty when
// the actor is unknown, for example a failed login for an unknown email.
type Event struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id,omitempty"`
	SubjectID  string         `json:"subject_id,omitempty"`
	Action     Action         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
