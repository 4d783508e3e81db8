package api

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subha-wp/advisorpro-crm-sub002/internal/auth"
)

// ─── Session cookies ───────────────────────────────────────────────

func TestSignup_SetsSessionCookies(t *testing.T) {
	tests := []struct {
		name       string
		opts       []envOption
		wantSecure bool
	}{
		{name: "development", wantSecure: false},
		{name: "production", opts: []envOption{withProduction()}, wantSecure: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.opts...)
			cookies := env.signup(t, "alice@example.com")

			access := cookieNamed(cookies, "ap_access")
			require.NotNil(t, access)
			assert.Equal(t, int((15 * time.Minute).Seconds()), access.MaxAge)

			refresh := cookieNamed(cookies, "ap_refresh")
			require.NotNil(t, refresh)
			assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), refresh.MaxAge)
			assert.Contains(t, refresh.Value, ":")

			for _, c := range []*http.Cookie{access, refresh} {
				assert.True(t, c.HttpOnly, c.Name)
				assert.Equal(t, http.SameSiteLaxMode, c.SameSite, c.Name)
				assert.Equal(t, "/", c.Path, c.Name)
				assert.Equal(t, tt.wantSecure, c.Secure, c.Name)
			}
		})
	}
}

func TestSignup_ResponseBody(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email":          "alice@example.com",
		"password":       testPassword,
		"name":           "Alice",
		"workspace_name": "Alice Advisory",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "OWNER", body["role"])
	assert.NotEmpty(t, body["user_id"])
	assert.NotEmpty(t, body["tenant_id"])
	assert.NotContains(t, rec.Body.String(), "access_token", "tokens only travel in cookies")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestSignup_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice@example.com")

	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{
			name:     "duplicate email",
			body:     map[string]string{"email": "alice@example.com", "password": testPassword, "name": "A", "workspace_name": "W"},
			wantCode: http.StatusConflict,
			wantErr:  ErrCodeConflict,
		},
		{
			name:     "short password",
			body:     map[string]string{"email": "bob@example.com", "password": "short", "name": "B", "workspace_name": "W"},
			wantCode: http.StatusBadRequest,
			wantErr:  ErrCodeValidation,
		},
		{
			name:     "unknown field",
			body:     map[string]any{"email": "bob@example.com", "role": "OWNER"},
			wantCode: http.StatusBadRequest,
			wantErr:  ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/auth/signup", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decodeBody(t, rec)["code"])
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice@example.com")

	cookies := env.login(t, "ALICE@example.com")
	assert.NotNil(t, cookieNamed(cookies, "ap_access"))
	assert.NotNil(t, cookieNamed(cookies, "ap_refresh"))

	for _, body := range []map[string]string{
		{"email": "alice@example.com", "password": "wrong-password"},
		{"email": "nobody@example.com", "password": testPassword},
	} {
		rec := env.do(t, http.MethodPost, "/api/v1/auth/login", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, ErrCodeUnauthorized, decodeBody(t, rec)["code"])
		assert.Empty(t, rec.Result().Cookies())
	}
}

// ─── Scenarios ─────────────────────────────────────────────────────

// A: sign up, then reach an owner-only endpoint with the issued cookies.
func TestScenario_SignupThenOwnerEndpoint(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.signup(t, "alice@example.com")

	rec := env.do(t, http.MethodGet, "/api/v1/workspace/settings", nil, cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeBody(t, rec)["workspace_id"])
}

// B: two concurrent refreshes with one cookie; exactly one rotates.
func TestScenario_ConcurrentRefresh(t *testing.T) {
	env := newTestEnv(t)
	refresh := cookieNamed(env.signup(t, "alice@example.com"), "ap_refresh")
	require.NotNil(t, refresh)

	const racers = 2
	recs := make([]*httptest.ResponseRecorder, racers)
	var wg sync.WaitGroup
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
			req.AddCookie(&http.Cookie{Name: refresh.Name, Value: refresh.Value})
			recs[i] = httptest.NewRecorder()
			env.handler.ServeHTTP(recs[i], req)
		}()
	}
	wg.Wait()

	var ok, rejected int
	for _, rec := range recs {
		switch rec.Code {
		case http.StatusOK:
			ok++
			rotated := cookieNamed(rec.Result().Cookies(), "ap_refresh")
			require.NotNil(t, rotated)
			assert.NotEqual(t, refresh.Value, rotated.Value)
		case http.StatusUnauthorized:
			rejected++
			assert.Equal(t, ErrCodeInvalidRefresh, decodeBody(t, rec)["code"])
			cleared := cookieNamed(rec.Result().Cookies(), "ap_refresh")
			require.NotNil(t, cleared)
			assert.Equal(t, -1, cleared.MaxAge)
		default:
			t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
}

// C: an AGENT is refused at an owner-only endpoint, indistinguishably from
// an anonymous caller.
func TestScenario_AgentForbidden(t *testing.T) {
	env := newTestEnv(t)
	agent := env.token(t, auth.Identity{SubjectID: "usr-agent", TenantID: "ws-1", Role: auth.RoleAgent})

	denied := env.do(t, http.MethodGet, "/api/v1/workspace/settings", nil, agent)
	anonymous := env.do(t, http.MethodGet, "/api/v1/workspace/settings", nil)

	assert.Equal(t, http.StatusUnauthorized, denied.Code)
	assert.Equal(t, ErrCodeUnauthorized, decodeBody(t, denied)["code"])
	assert.Equal(t, anonymous.Code, denied.Code)
	assert.JSONEq(t, anonymous.Body.String(), denied.Body.String())
}

// D: an access token past its TTL no longer authenticates.
func TestScenario_AccessExpiry(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.signup(t, "alice@example.com")

	rec := env.do(t, http.MethodGet, "/api/v1/auth/me", nil, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)

	env.clock.Advance(15*time.Minute + time.Second)
	rec = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, cookies...)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrCodeUnauthorized, decodeBody(t, rec)["code"])
}

// E: after logout-all the old refresh cookie is rejected.
func TestScenario_LogoutAll(t *testing.T) {
	env := newTestEnv(t)
	first := env.signup(t, "alice@example.com")
	second := env.login(t, "alice@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/auth/logout-all", nil, first...)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, -1, cookieNamed(rec.Result().Cookies(), "ap_access").MaxAge)

	for _, cookies := range [][]*http.Cookie{first, second} {
		rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, cookieNamed(cookies, "ap_refresh"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, ErrCodeInvalidRefresh, decodeBody(t, rec)["code"])
	}

	// The other device's access token lives out its TTL, and no longer.
	rec = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, cookieNamed(second, "ap_access"))
	assert.Equal(t, http.StatusOK, rec.Code)

	env.clock.Advance(15*time.Minute + time.Second)
	rec = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, cookieNamed(second, "ap_access"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrCodeUnauthorized, decodeBody(t, rec)["code"])
}

func TestLogoutAll_RequiresSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/auth/logout-all", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ─── Refresh and logout ────────────────────────────────────────────

func TestRefresh_RotatesOnce(t *testing.T) {
	env := newTestEnv(t)
	old := cookieNamed(env.signup(t, "alice@example.com"), "ap_refresh")

	rec := env.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, old)
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := cookieNamed(rec.Result().Cookies(), "ap_refresh")
	require.NotNil(t, rotated)
	assert.Equal(t, "OWNER", decodeBody(t, rec)["role"])

	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, old)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a rotated credential is spent")

	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, rotated)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh_BadCookies(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		cookies []*http.Cookie
	}{
		{name: "no cookie"},
		{name: "malformed", cookies: []*http.Cookie{{Name: "ap_refresh", Value: "garbage"}}},
		{name: "unknown record", cookies: []*http.Cookie{{Name: "ap_refresh", Value: "rt-missing:deadbeef"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, tt.cookies...)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, ErrCodeInvalidRefresh, decodeBody(t, rec)["code"])

			for _, name := range []string{"ap_access", "ap_refresh"} {
				c := cookieNamed(rec.Result().Cookies(), name)
				require.NotNil(t, c, name)
				assert.Equal(t, -1, c.MaxAge, name)
				assert.Empty(t, c.Value, name)
			}
		})
	}
}

// A role change reaches the member at their next refresh, not before.
func TestRefresh_PicksUpRoleChange(t *testing.T) {
	env := newTestEnv(t)
	owner := env.signup(t, "owner@example.com")

	me := decodeBody(t, env.do(t, http.MethodGet, "/api/v1/auth/me", nil, owner...))
	tenant, _ := me["tenant_id"].(string)
	agentID := env.seedMember(t, tenant, "agent@example.com", auth.RoleAgent)
	agent := env.login(t, "agent@example.com")

	rec := env.do(t, http.MethodPatch, "/api/v1/workspace/members/"+agentID, map[string]string{"role": "viewer"}, owner...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/workspace/members", nil, agent...)
	assert.Equal(t, http.StatusOK, rec.Code, "issued token keeps its role until it is replaced")

	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, cookieNamed(agent, "ap_refresh"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "VIEWER", decodeBody(t, rec)["role"])

	rec = env.do(t, http.MethodGet, "/api/v1/workspace/members", nil, rec.Result().Cookies()...)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.signup(t, "alice@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/auth/logout", nil, cookies...)
	require.Equal(t, http.StatusNoContent, rec.Code)
	for _, name := range []string{"ap_access", "ap_refresh"} {
		c := cookieNamed(rec.Result().Cookies(), name)
		require.NotNil(t, c, name)
		assert.Equal(t, -1, c.MaxAge, name)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", nil, cookieNamed(cookies, "ap_refresh"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Repeat and cookie-less logouts still succeed.
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/api/v1/auth/logout", nil, cookies...).Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/api/v1/auth/logout", nil).Code)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	id := auth.Identity{SubjectID: "usr-1", TenantID: "ws-1", Role: auth.RoleViewer}

	rec := env.do(t, http.MethodGet, "/api/v1/auth/me", nil, env.token(t, id))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "usr-1", body["user_id"])
	assert.Equal(t, "ws-1", body["tenant_id"])
	assert.Equal(t, "VIEWER", body["role"])

	// Bearer works too.
	tok := env.token(t, id).Value
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
