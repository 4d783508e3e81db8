package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/subha-wp/advisorpro-crm-sub002/internal/audit"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/config"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/database"
	"github.com/subha-wp/advisorpro-crm-sub002/migrations"
)

const testSecret = "test-secret-key-at-least-32-chars!"

// testDB creates a temporary SQLite database with the embedded migrations
// applied. The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	require.NoError(t, db.Migrate(ctx, migrations.FS))
	return db.DB
}

// testHasher uses cheap Argon2 parameters so tests stay fast.
func testHasher(t testing.TB) *Hasher {
	t.Helper()
	h, err := NewHasher(HashParams{Time: 1, MemoryKiB: 1024, Threads: 1})
	require.NoError(t, err)
	return h
}

// testClock is a settable clock shared by codec, store and service.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
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

func testCodec(t testing.TB, clock *testClock) *Codec {
	t.Helper()
	cfg := CodecConfig{
		Secret:     testSecret,
		Issuer:     "advisorpro-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: DefaultRefreshTTL,
	}
	if clock != nil {
		cfg.Now = clock.Now
	}
	codec, err := NewCodec(cfg)
	require.NoError(t, err)
	return codec
}

// recordingEmitter collects audit events synchronously.
type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingEmitter) Emit(e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) actions() []audit.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Action, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

func (r *recordingEmitter) last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// fixture is a fully wired Service over a temporary database.
type fixture struct {
	db     *sql.DB
	users  *SQLiteUserRepository
	store  *SQLiteRefreshStore
	codec  *Codec
	clock  *testClock
	audit  *recordingEmitter
	svc    *Service
	hasher *Hasher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testDB(t)
	clock := newTestClock()
	hasher := testHasher(t)
	users := NewUserRepository(db)
	users.now = clock.Now
	store := NewRefreshStore(db, hasher, WithStoreClock(clock.Now))
	codec := testCodec(t, clock)
	rec := &recordingEmitter{}

	svc, err := NewService(ServiceDeps{
		Users:   users,
		Refresh: store,
		Codec:   codec,
		Hasher:  hasher,
		Audit:   rec,
	}, WithNowTime(clock.Now))
	require.NoError(t, err)

	return &fixture{db: db, users: users, store: store, codec: codec, clock: clock, audit: rec, svc: svc, hasher: hasher}
}

// signup registers an owner with its own workspace.
func (f *fixture) signup(t *testing.T, email string) *Session {
	t.Helper()
	session, err := f.svc.Signup(context.Background(), SignupInput{
		Email:         email,
		Password:      "correct-horse-battery",
		Name:          "Test User",
		WorkspaceName: "Test Workspace",
		UserAgent:     "go-test",
	})
	require.NoError(t, err)
	return session
}

// seedMember creates a user and adds it to workspaceID with role. The
// clock moves forward first so members list in seeding order.
func (f *fixture) seedMember(t *testing.T, workspaceID, email string, role Role) *User {
	t.Helper()
	ctx := context.Background()
	f.clock.Advance(time.Second)

	hash, err := f.hasher.Hash("correct-horse-battery")
	require.NoError(t, err)

	user := &User{ID: "usr-" + email, Email: email, Name: email, PasswordHash: hash}
	now := formatTime(f.clock.Now())
	_, err = f.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.PasswordHash, now, now)
	require.NoError(t, err)
	require.NoError(t, f.users.AddMember(ctx, workspaceID, user.ID, role))
	return user
}
