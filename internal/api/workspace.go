package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/subha-wp/advisorpro-crm-sub002/internal/auth"
)

// changeRoleRequest is the request body for PATCH /workspace/members/{userID}.
type changeRoleRequest struct {
	Role string `json:"role"`
}

// handleListMembers lists the members of the caller's workspace.
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	members, err := s.auth.ListMembers(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if members == nil {
		members = []auth.Member{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"members": members,
		"count":   len(members),
	})
}

// handleChangeRole sets a member's role. The member's open sessions pick
// up the change on their next refresh.
func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	userID := chi.URLParam(r, "userID")

	var req changeRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if err := s.auth.ChangeRole(r.Context(), id, userID, role); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"role":    role,
	})
}

// handleSettings returns the workspace settings. Only owners reach it.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"workspace_id": id.TenantID,
		"permissions":  auth.PermissionsForRole(id.Role),
	})
}
