package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/subha-wp/advisorpro-crm-sub002/internal/auth"
)

// Operation names for the auth.operations.total metric.
const (
	opSignup    = "signup"
	opLogin     = "login"
	opRefresh   = "refresh"
	opLogout    = "logout"
	opLogoutAll = "logout_all"
)

// signupRequest is the request body for POST /auth/signup.
type signupRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	Name          string `json:"name"`
	WorkspaceName string `json:"workspace_name"`
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// identityResponse describes the session owner. Tokens are never echoed in
// the body; they travel only in cookies.
type identityResponse struct {
	UserID          string    `json:"user_id"`
	TenantID        string    `json:"tenant_id"`
	Role            auth.Role `json:"role"`
	AccessExpiresAt time.Time `json:"access_expires_at,omitempty"`
}

func newIdentityResponse(session *auth.Session) identityResponse {
	return identityResponse{
		UserID:          session.Identity.SubjectID,
		TenantID:        session.Identity.TenantID,
		Role:            session.Identity.Role,
		AccessExpiresAt: session.AccessExpiresAt.UTC(),
	}
}

// handleSignup registers a user with a new workspace and opens a session.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := s.auth.Signup(r.Context(), auth.SignupInput{
		Email:         req.Email,
		Password:      req.Password,
		Name:          req.Name,
		WorkspaceName: req.WorkspaceName,
		UserAgent:     r.UserAgent(),
	})
	s.metrics.RecordAuth(r.Context(), opSignup, err)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.cookies.set(w, session)
	writeJSON(w, http.StatusCreated, newIdentityResponse(session))
}

// handleLogin verifies a password and opens a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := s.auth.Login(r.Context(), auth.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: r.UserAgent(),
	})
	s.metrics.RecordAuth(r.Context(), opLogin, err)
	if err != nil {
		s.logger.Info("login failed",
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		s.writeServiceError(w, r, err)
		return
	}

	s.cookies.set(w, session)
	writeJSON(w, http.StatusOK, newIdentityResponse(session))
}

// handleRefresh rotates the refresh cookie. Every failure answers 401
// invalid_refresh and clears both cookies.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// A missing or malformed cookie yields the zero credential, which the
	// service rejects like any other.
	cred, _ := s.cookies.readRefresh(r) //nolint:errcheck // handled by Refresh

	session, err := s.auth.Refresh(r.Context(), cred, r.UserAgent())
	s.metrics.RecordAuth(r.Context(), opRefresh, err)
	if err != nil {
		s.writeServiceError(w, r, auth.ErrInvalidRefresh)
		return
	}

	s.cookies.set(w, session)
	writeJSON(w, http.StatusOK, newIdentityResponse(session))
}

// handleLogout revokes the presented refresh record and clears the cookies.
// It succeeds even without a usable cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cred, err := s.cookies.readRefresh(r); err == nil {
		err = s.auth.Logout(r.Context(), cred)
		s.metrics.RecordAuth(r.Context(), opLogout, err)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	s.cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleLogoutAll revokes every refresh record of the caller. Access tokens
// already issued elsewhere stay valid until they expire.
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	n, err := s.auth.LogoutAll(r.Context(), id.SubjectID)
	s.metrics.RecordAuth(r.Context(), opLogoutAll, err)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.logger.Info("all sessions revoked", "user_id", id.SubjectID, "revoked", n)
	s.cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the identity carried by the access token.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	writeJSON(w, http.StatusOK, identityResponse{
		UserID:   id.SubjectID,
		TenantID: id.TenantID,
		Role:     id.Role,
	})
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
// It writes the 400 itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
