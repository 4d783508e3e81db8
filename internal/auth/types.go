package auth

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Role is a workspace membership tier. The set is closed: any value not
// listed in ValidRoles is rejected, never mapped to a default.
type Role string

const (
	// RoleOwner administers the workspace: members, roles, settings, billing.
	RoleOwner Role = "OWNER"

	// RoleAgent works client records and reminders but cannot change the
	// workspace itself.
	RoleAgent Role = "AGENT"

	// RoleViewer has read-only access.
	RoleViewer Role = "VIEWER"
)

// ValidRoles is the closed set of membership roles.
var ValidRoles = []Role{RoleOwner, RoleAgent, RoleViewer}

// Valid reports whether r is one of ValidRoles.
func (r Role) Valid() bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// ParseRole converts a stored or submitted string into a Role.
// Matching is case-insensitive; anything outside the closed set fails.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
	}
	return r, nil
}

// Identity is the authenticated principal carried by an access token.
// It does not change for the lifetime of one token.
type Identity struct {
	SubjectID string `json:"subject_id"`
	TenantID  string `json:"tenant_id"`
	Role      Role   `json:"role"`
}

// User is a human account. Users belong to workspaces through Memberships.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Workspace is a tenant.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership binds a user to a workspace with a role.
type Membership struct {
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// Member is a membership joined with its user, for listings.
type Member struct {
	UserID   string    `json:"user_id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// RefreshRecord is the server-side state of one session.
// Only RevokedAt ever changes after creation.
type RefreshRecord struct {
	ID         string     `json:"id"`
	SubjectID  string     `json:"subject_id"`
	SecretHash string     `json:"-"` // never serialised
	UserAgent  string     `json:"user_agent,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Usable reports whether the record can still back a rotation at now:
// not revoked and not yet expired.
func (r *RefreshRecord) Usable(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// Input limits.
const (
	minPasswordLength = 8
	maxPasswordLength = 128
	maxNameLength     = 120
	maxEmailLength    = 254
)

// normaliseEmail lowercases and trims an address and checks its shape.
func normaliseEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > maxEmailLength {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is not a valid address", ErrValidation)
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be %d-%d characters", ErrValidation, minPasswordLength, maxPasswordLength)
	}
	return nil
}

func validateName(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	if len(value) > maxNameLength {
		return "", fmt.Errorf("%w: %s must be at most %d characters", ErrValidation, field, maxNameLength)
	}
	return value, nil
}
