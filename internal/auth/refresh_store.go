package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultRefreshTTL is how long a refresh record stays usable.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// RefreshStore persists refresh records. Records are revoked, never deleted.
type RefreshStore interface {
	// Create issues a new record for subjectID and returns it together with
	// the plaintext secret. The secret is not recoverable afterwards.
	Create(ctx context.Context, subjectID, userAgent string) (*RefreshRecord, string, error)

	// Find returns the record with the given id, usable or not.
	Find(ctx context.Context, id string) (*RefreshRecord, error)

	// Revoke marks one record revoked. Revoking twice is not an error.
	Revoke(ctx context.Context, id string) error

	// RevokeAllFor revokes every live record of subjectID and returns how
	// many changed.
	RevokeAllFor(ctx context.Context, subjectID string) (int64, error)

	// Rotate revokes oldID and creates its successor atomically. Only one
	// caller can rotate a given record; the others get ErrRefreshRevoked.
	Rotate(ctx context.Context, oldID, subjectID, userAgent string) (*RefreshRecord, string, error)
}

// SQLiteRefreshStore implements RefreshStore using SQLite.
type SQLiteRefreshStore struct {
	db     *sql.DB
	hasher *Hasher
	ttl    time.Duration
	now    func() time.Time
}

// RefreshStoreOption configures a SQLiteRefreshStore.
type RefreshStoreOption func(*SQLiteRefreshStore)

// WithRefreshTTL overrides DefaultRefreshTTL.
func WithRefreshTTL(ttl time.Duration) RefreshStoreOption {
	return func(s *SQLiteRefreshStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithStoreClock sets the time source used for expiry and revocation.
func WithStoreClock(now func() time.Time) RefreshStoreOption {
	return func(s *SQLiteRefreshStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRefreshStore creates a SQLite-backed refresh store. Secrets are hashed
// with hasher before they touch the database.
func NewRefreshStore(db *sql.DB, hasher *Hasher, opts ...RefreshStoreOption) *SQLiteRefreshStore {
	s := &SQLiteRefreshStore{db: db, hasher: hasher, ttl: DefaultRefreshTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const refreshColumns = "id, subject_id, secret_hash, user_agent, created_at, expires_at, revoked_at"

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Create implements RefreshStore.
func (s *SQLiteRefreshStore) Create(ctx context.Context, subjectID, userAgent string) (*RefreshRecord, string, error) {
	rec, secret, err := s.newRecord(subjectID, userAgent)
	if err != nil {
		return nil, "", err
	}
	if err := insertRecord(ctx, s.db, rec); err != nil {
		return nil, "", err
	}
	return rec, secret, nil
}

// Find implements RefreshStore.
func (s *SQLiteRefreshStore) Find(ctx context.Context, id string) (*RefreshRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+refreshColumns+" FROM refresh_records WHERE id = ?", id)
	return scanRecord(row)
}

// Revoke implements RefreshStore. Unknown ids are ignored.
func (s *SQLiteRefreshStore) Revoke(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE refresh_records SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("revoking refresh record: %w", err)
	}
	return nil
}

// RevokeAllFor implements RefreshStore.
func (s *SQLiteRefreshStore) RevokeAllFor(ctx context.Context, subjectID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE refresh_records SET revoked_at = ? WHERE subject_id = ? AND revoked_at IS NULL`,
		formatTime(s.now()), subjectID)
	if err != nil {
		return 0, fmt.Errorf("revoking refresh records for subject: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // sqlite3 always reports affected rows
	return n, nil
}

// Rotate implements RefreshStore.
//
// The conditional UPDATE is the commit point: it only matches a live record,
// so of two concurrent rotations exactly one sees an affected row. If the
// process dies before Commit the old record is untouched and no successor
// exists.
func (s *SQLiteRefreshStore) Rotate(ctx context.Context, oldID, subjectID, userAgent string) (*RefreshRecord, string, error) {
	rec, secret, err := s.newRecord(subjectID, userAgent)
	if err != nil {
		return nil, "", err
	}
	ts := formatTime(rec.CreatedAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("starting rotation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	result, err := tx.ExecContext(ctx,
		`UPDATE refresh_records SET revoked_at = ?
		 WHERE id = ? AND subject_id = ? AND revoked_at IS NULL AND expires_at > ?`,
		ts, oldID, subjectID, ts)
	if err != nil {
		return nil, "", fmt.Errorf("revoking rotated record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, "", fmt.Errorf("checking rotated record: %w", err)
	}
	if affected == 0 {
		return nil, "", ErrRefreshRevoked
	}

	if err := insertRecord(ctx, tx, rec); err != nil {
		return nil, "", err
	}
	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("committing rotation: %w", err)
	}
	return rec, secret, nil
}

func (s *SQLiteRefreshStore) newRecord(subjectID, userAgent string) (*RefreshRecord, string, error) {
	if subjectID == "" {
		return nil, "", fmt.Errorf("creating refresh record: subject is required")
	}
	secret, err := generateSecret()
	if err != nil {
		return nil, "", err
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, "", fmt.Errorf("hashing refresh secret: %w", err)
	}

	now := s.now().UTC()
	return &RefreshRecord{
		ID:         "rt-" + uuid.NewString(),
		SubjectID:  subjectID,
		SecretHash: hash,
		UserAgent:  truncate(userAgent, maxUserAgentLength),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}, secret, nil
}

const maxUserAgentLength = 256

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func insertRecord(ctx context.Context, db execer, rec *RefreshRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO refresh_records (`+refreshColumns+`) VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		rec.ID, rec.SubjectID, rec.SecretHash, nullString(rec.UserAgent),
		formatTime(rec.CreatedAt), formatTime(rec.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("creating refresh record: %w", err)
	}
	return nil
}

func scanRecord(s scanner) (*RefreshRecord, error) {
	var rec RefreshRecord
	var userAgent, revokedAt sql.NullString
	var createdAt, expiresAt string
	if err := s.Scan(&rec.ID, &rec.SubjectID, &rec.SecretHash, &userAgent, &createdAt, &expiresAt, &revokedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRefreshNotFound
		}
		return nil, fmt.Errorf("scanning refresh record: %w", err)
	}
	rec.UserAgent = userAgent.String

	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t, err := parseTime(revokedAt.String)
		if err != nil {
			return nil, err
		}
		rec.RevokedAt = &t
	}
	return &rec, nil
}
