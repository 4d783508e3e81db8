package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/subha-wp/advisorpro-crm-sub002/internal/auth"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/config"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/database"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/logging"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/ratelimit"
	"github.com/subha-wp/advisorpro-crm-sub002/migrations"
)

const testPassword = "correct-horse-battery"

// testClock drives every time-dependent component of a testEnv.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv is a running API over a temp SQLite database.
type testEnv struct {
	handler http.Handler
	srv     *Server
	clock   *testClock
	codec   *auth.Codec
	hasher  *auth.Hasher
	db      *sql.DB
	users   *auth.SQLiteUserRepository
	reader  *sdkmetric.ManualReader
}

type envOption func(*Deps)

func withProduction() envOption {
	return func(d *Deps) { d.App.Environment = config.EnvProduction }
}

func withLoginBudget(requests int) envOption {
	return func(d *Deps) { d.Security.RateLimit.Login.Requests = requests }
}

func withRefreshBudget(requests int) envOption {
	return func(d *Deps) { d.Security.RateLimit.Refresh.Requests = requests }
}

func withRateCeiling(maxKeys int) envOption {
	return func(d *Deps) { d.Security.RateLimit.MaxKeys = maxKeys }
}

func withHealth(name string, c HealthChecker) envOption {
	return func(d *Deps) {
		if d.Health == nil {
			d.Health = map[string]HealthChecker{}
		}
		d.Health[name] = c
	}
}

func withCORS(origins ...string) envOption {
	return func(d *Deps) { d.Config.CORS.AllowedOrigins = origins }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	require.NoError(t, db.Migrate(ctx, migrations.FS))

	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	hasher, err := auth.NewHasher(auth.HashParams{Time: 1, MemoryKiB: 1024, Threads: 1})
	require.NoError(t, err)

	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret:     "test-secret-key-at-least-32-chars!",
		Issuer:     "advisorpro-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: auth.DefaultRefreshTTL,
		Now:        clock.Now,
	})
	require.NoError(t, err)

	users := auth.NewUserRepository(db.DB)
	store := auth.NewRefreshStore(db.DB, hasher, auth.WithStoreClock(clock.Now))

	svc, err := auth.NewService(auth.ServiceDeps{
		Users:   users,
		Refresh: store,
		Codec:   codec,
		Hasher:  hasher,
	}, auth.WithNowTime(clock.Now))
	require.NoError(t, err)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	deps := Deps{
		Config: config.APIConfig{Host: "127.0.0.1"},
		App:    config.AppConfig{Name: "advisorpro", Environment: config.EnvDevelopment},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{AccessTokenTTL: 15, RefreshTokenTTL: 168},
			Cookies: config.CookieConfig{
				AccessName:  "ap_access",
				RefreshName: "ap_refresh",
			},
			RateLimit: config.RateLimitConfig{
				Enabled: true,
				Backend: "memory",
				MaxKeys: 1000,
				Login:   config.RateWindowConfig{Requests: 100, WindowSeconds: 60},
				Refresh: config.RateWindowConfig{Requests: 100, WindowSeconds: 60},
			},
		},
		Logger:   logging.Nop(),
		Auth:     svc,
		Resolver: auth.NewResolver(codec, ""),
		Metrics:  metrics,
		Version:  "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}
	newGuard := func() *ratelimit.Guard {
		store := ratelimit.NewMemoryStore(deps.Security.RateLimit.MaxKeys, ratelimit.WithMemoryClock(clock.Now))
		return ratelimit.NewGuard(store, ratelimit.WithClock(clock.Now))
	}
	if deps.Guard == nil {
		deps.Guard = newGuard()
	}
	if deps.RefreshGuard == nil {
		deps.RefreshGuard = newGuard()
	}

	srv, err := New(deps)
	require.NoError(t, err)
	srv.now = clock.Now

	return &testEnv{
		handler: srv.Handler(),
		srv:     srv,
		clock:   clock,
		codec:   codec,
		hasher:  hasher,
		db:      db.DB,
		users:   users,
		reader:  reader,
	}
}

// do sends one request through the router.
func (e *testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return e.doFrom(t, "", method, path, body, cookies...)
}

// doFrom is do with the peer address set to remoteAddr. An empty address
// keeps the httptest default.
func (e *testEnv) doFrom(t *testing.T, remoteAddr, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// signup registers email as the owner of a fresh workspace and returns its
// session cookies.
func (e *testEnv) signup(t *testing.T, email string) []*http.Cookie {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email":          email,
		"password":       testPassword,
		"name":           "Test User",
		"workspace_name": "Test Workspace",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return rec.Result().Cookies()
}

// seedMember inserts a user whose only membership is workspaceID.
func (e *testEnv) seedMember(t *testing.T, workspaceID, email string, role auth.Role) string {
	t.Helper()
	hash, err := e.hasher.Hash(testPassword)
	require.NoError(t, err)

	id := "usr-" + email
	now := e.clock.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
	_, err = e.db.ExecContext(context.Background(),
		`INSERT INTO users (id, email, name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, email, email, hash, now, now)
	require.NoError(t, err)
	require.NoError(t, e.users.AddMember(context.Background(), workspaceID, id, role))
	return id
}

// login returns the session cookies of email.
func (e *testEnv) login(t *testing.T, email string) []*http.Cookie {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return rec.Result().Cookies()
}

// token signs an access token directly, bypassing login.
func (e *testEnv) token(t *testing.T, id auth.Identity) *http.Cookie {
	t.Helper()
	tok, _, err := e.codec.SignAccess(id)
	require.NoError(t, err)
	return &http.Cookie{Name: "ap_access", Value: tok}
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// counterValue sums the data points of an int64 counter whose attributes
// include every key/value in match.
func (e *testEnv) counterValue(t *testing.T, name string, match map[string]string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, e.reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is %T", name, m.Data)
			for _, dp := range sum.DataPoints {
				if attrsMatch(dp.Attributes, match) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func attrsMatch(set attribute.Set, match map[string]string) bool {
	for k, want := range match {
		got, ok := set.Value(attribute.Key(k))
		if !ok || got.Emit() != want {
			return false
		}
	}
	return true
}
