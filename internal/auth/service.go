package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/subha-wp/advisorpro-crm-sub002/internal/audit"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/logging"
)

// Emitter receives audit events. Emit must not block.
type Emitter interface {
	Emit(e audit.Event)
}

// Session is what a successful signup, login or refresh hands back to the
// transport: an access token and the refresh credential backing it.
type Session struct {
	Identity         Identity
	AccessToken      string
	AccessExpiresAt  time.Time
	Refresh          RefreshCredential
	RefreshExpiresAt time.Time
}

// SignupInput is the self-service registration payload.
type SignupInput struct {
	Email         string
	Password      string
	Name          string
	WorkspaceName string
	UserAgent     string
}

// LoginInput is the password login payload.
type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
}

// ServiceDeps are the collaborators of Service. Audit and Logger are optional.
type ServiceDeps struct {
	Users   UserRepository
	Refresh RefreshStore
	Codec   *Codec
	Hasher  *Hasher
	Audit   Emitter
	Logger  *logging.Logger
}

// Service runs the session lifecycle: signup, login, rotation and logout.
type Service struct {
	users   UserRepository
	refresh RefreshStore
	codec   *Codec
	hasher  *Hasher
	audit   Emitter
	logger  *logging.Logger
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNowTime sets the clock used for expiry checks and audit timestamps.
func WithNowTime(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a Service. Missing required collaborators are a
// configuration error.
func NewService(deps ServiceDeps, opts ...ServiceOption) (*Service, error) {
	if deps.Users == nil || deps.Refresh == nil || deps.Codec == nil || deps.Hasher == nil {
		return nil, fmt.Errorf("%w: session service requires users, refresh store, codec and hasher", ErrMisconfigured)
	}
	s := &Service{
		users:   deps.Users,
		refresh: deps.Refresh,
		codec:   deps.Codec,
		hasher:  deps.Hasher,
		audit:   deps.Audit,
		logger:  deps.Logger,
		now:     time.Now,
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Signup creates a user, their workspace and an OWNER membership, then
// opens a session for them.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	email, err := normaliseEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	name, err := validateName("name", in.Name)
	if err != nil {
		return nil, err
	}
	workspaceName, err := validateName("workspace_name", in.WorkspaceName)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &User{Email: email, Name: name, PasswordHash: hash}
	membership, err := s.users.CreateWithWorkspace(ctx, user, workspaceName)
	if err != nil {
		return nil, err
	}

	id := Identity{SubjectID: user.ID, TenantID: membership.WorkspaceID, Role: membership.Role}
	session, err := s.open(ctx, id, in.UserAgent)
	if err != nil {
		return nil, err
	}

	s.emit(audit.Event{
		TenantID:  id.TenantID,
		SubjectID: id.SubjectID,
		Action:    audit.ActionSignup,
		Entity:    audit.EntityUser,
		EntityID:  user.ID,
		Metadata:  map[string]any{"workspace_id": membership.WorkspaceID},
	})
	return session, nil
}

// Login verifies a password and opens a session. An unknown email and a
// wrong password both return ErrInvalidCredentials after similar work.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email, err := normaliseEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if in.Password == "" || len(in.Password) > maxPasswordLength {
		return nil, fmt.Errorf("%w: password is required", ErrValidation)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		s.hasher.DummyVerify(in.Password)
		s.emitLoginFailed("", "", "unknown_email")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		s.logger.Warn("stored password digest unreadable", "user_id", user.ID, "error", err)
	}
	if !ok {
		// No membership lookup here: both failure paths do the same work.
		s.emitLoginFailed(user.ID, "", "bad_password")
		return nil, ErrInvalidCredentials
	}

	membership, err := s.users.FindMembership(ctx, user.ID)
	if errors.Is(err, ErrNoMembership) {
		s.emitLoginFailed(user.ID, "", "no_membership")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	id := Identity{SubjectID: user.ID, TenantID: membership.WorkspaceID, Role: membership.Role}
	session, err := s.open(ctx, id, in.UserAgent)
	if err != nil {
		return nil, err
	}

	s.emit(audit.Event{
		TenantID:  id.TenantID,
		SubjectID: id.SubjectID,
		Action:    audit.ActionLogin,
		Entity:    audit.EntitySession,
		EntityID:  session.Refresh.RecordID,
		Metadata:  map[string]any{"user_agent": in.UserAgent},
	})
	return session, nil
}

// Refresh rotates a refresh credential.
//
// The presented credential is checked against its record (exists, live,
// secret matches), the subject's current membership is re-read, and the
// record is replaced by a new one in a single store transaction. Every
// rejection returns ErrInvalidRefresh; the cause is only logged.
func (s *Service) Refresh(ctx context.Context, cred RefreshCredential, userAgent string) (*Session, error) {
	if cred.RecordID == "" || cred.Secret == "" {
		return nil, s.rejectRefresh(ErrRefreshMalformed, cred.RecordID, "")
	}

	rec, err := s.refresh.Find(ctx, cred.RecordID)
	if err != nil {
		return nil, s.rejectRefresh(err, cred.RecordID, "")
	}
	if !rec.Usable(s.now()) {
		return nil, s.rejectRefresh(ErrRefreshRevoked, rec.ID, rec.SubjectID)
	}

	ok, err := s.hasher.Verify(cred.Secret, rec.SecretHash)
	if err != nil || !ok {
		return nil, s.rejectRefresh(ErrRefreshMismatch, rec.ID, rec.SubjectID)
	}

	membership, err := s.users.FindMembership(ctx, rec.SubjectID)
	if err != nil {
		return nil, s.rejectRefresh(err, rec.ID, rec.SubjectID)
	}
	id := Identity{SubjectID: rec.SubjectID, TenantID: membership.WorkspaceID, Role: membership.Role}

	// Sign before rotating so a signing failure leaves the old record live.
	access, accessExp, err := s.codec.SignAccess(id)
	if err != nil {
		return nil, s.rejectRefresh(err, rec.ID, rec.SubjectID)
	}

	next, secret, err := s.refresh.Rotate(ctx, rec.ID, rec.SubjectID, userAgent)
	if err != nil {
		return nil, s.rejectRefresh(err, rec.ID, rec.SubjectID)
	}

	s.emit(audit.Event{
		TenantID:  id.TenantID,
		SubjectID: id.SubjectID,
		Action:    audit.ActionRefresh,
		Entity:    audit.EntitySession,
		EntityID:  next.ID,
		Metadata:  map[string]any{"replaces": rec.ID},
	})

	return &Session{
		Identity:         id,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		Refresh:          RefreshCredential{RecordID: next.ID, Secret: secret},
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// Logout revokes the presented record. Malformed, unknown or mismatched
// credentials are ignored so the caller can always clear its cookies.
func (s *Service) Logout(ctx context.Context, cred RefreshCredential) error {
	if cred.RecordID == "" || cred.Secret == "" {
		return nil
	}

	rec, err := s.refresh.Find(ctx, cred.RecordID)
	if errors.Is(err, ErrRefreshNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	// The record id alone is not a capability.
	if ok, _ := s.hasher.Verify(cred.Secret, rec.SecretHash); !ok {
		return nil
	}

	if err := s.refresh.Revoke(ctx, rec.ID); err != nil {
		return err
	}

	s.emit(audit.Event{
		TenantID:  s.tenantOf(ctx, rec.SubjectID),
		SubjectID: rec.SubjectID,
		Action:    audit.ActionLogout,
		Entity:    audit.EntitySession,
		EntityID:  rec.ID,
	})
	return nil
}

// LogoutAll revokes every live record of subjectID. Access tokens already
// issued stay valid until they expire.
func (s *Service) LogoutAll(ctx context.Context, subjectID string) (int64, error) {
	n, err := s.refresh.RevokeAllFor(ctx, subjectID)
	if err != nil {
		return 0, err
	}

	s.emit(audit.Event{
		TenantID:  s.tenantOf(ctx, subjectID),
		SubjectID: subjectID,
		Action:    audit.ActionLogoutAll,
		Entity:    audit.EntityUser,
		EntityID:  subjectID,
		Metadata:  map[string]any{"revoked": n},
	})
	return n, nil
}

// ListMembers returns the members of the actor's workspace.
func (s *Service) ListMembers(ctx context.Context, actor Identity) ([]Member, error) {
	if _, ok := RequireRole(&actor, PolicyStaff); !ok {
		return nil, ErrForbidden
	}
	return s.users.ListMembers(ctx, actor.TenantID)
}

// ChangeRole sets the role of userID in the actor's workspace. The change
// reaches the member's sessions at their next rotation.
func (s *Service) ChangeRole(ctx context.Context, actor Identity, userID string, role Role) error {
	if _, ok := RequireRole(&actor, PolicyOwner); !ok {
		return ErrForbidden
	}
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if err := s.users.UpdateMemberRole(ctx, actor.TenantID, userID, role); err != nil {
		return err
	}

	s.emit(audit.Event{
		TenantID:  actor.TenantID,
		SubjectID: actor.SubjectID,
		Action:    audit.ActionRoleChanged,
		Entity:    audit.EntityMembership,
		EntityID:  userID,
		Metadata:  map[string]any{"role": string(role)},
	})
	return nil
}

// AccessTTL is the lifetime of access tokens minted by the service.
func (s *Service) AccessTTL() time.Duration { return s.codec.AccessTTL() }

// open signs an access token for id and creates its refresh record.
func (s *Service) open(ctx context.Context, id Identity, userAgent string) (*Session, error) {
	access, accessExp, err := s.codec.SignAccess(id)
	if err != nil {
		return nil, err
	}
	rec, secret, err := s.refresh.Create(ctx, id.SubjectID, userAgent)
	if err != nil {
		return nil, err
	}
	return &Session{
		Identity:         id,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		Refresh:          RefreshCredential{RecordID: rec.ID, Secret: secret},
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// rejectRefresh records a failed rotation and returns the single error
// callers see.
func (s *Service) rejectRefresh(cause error, recordID, subjectID string) error {
	reason := "invalid"
	switch {
	case errors.Is(cause, ErrRefreshMalformed):
		reason = "malformed"
	case errors.Is(cause, ErrRefreshNotFound):
		reason = "not_found"
	case errors.Is(cause, ErrRefreshRevoked):
		reason = "revoked"
	case errors.Is(cause, ErrRefreshMismatch):
		reason = "mismatch"
	case errors.Is(cause, ErrNoMembership):
		reason = "no_membership"
	}

	if reason == "invalid" {
		s.logger.Error("refresh failed", "record_id", recordID, "error", cause)
	} else {
		s.logger.Debug("refresh rejected", "record_id", recordID, "reason", reason, "error", cause)
	}

	s.emit(audit.Event{
		SubjectID: subjectID,
		Action:    audit.ActionRefreshRejected,
		Entity:    audit.EntitySession,
		EntityID:  recordID,
		Metadata:  map[string]any{"reason": reason},
	})
	return ErrInvalidRefresh
}

func (s *Service) emitLoginFailed(subjectID, tenantID, reason string) {
	s.emit(audit.Event{
		TenantID:  tenantID,
		SubjectID: subjectID,
		Action:    audit.ActionLoginFailed,
		Entity:    audit.EntityUser,
		EntityID:  subjectID,
		Metadata:  map[string]any{"reason": reason},
	})
}

// tenantOf is a best-effort lookup for audit context.
func (s *Service) tenantOf(ctx context.Context, subjectID string) string {
	m, err := s.users.FindMembership(ctx, subjectID)
	if err != nil {
		return ""
	}
	return m.WorkspaceID
}

func (s *Service) emit(e audit.Event) {
	if s.audit == nil {
		return
	}
	e.OccurredAt = s.now().UTC()
	s.audit.Emit(e)
}
