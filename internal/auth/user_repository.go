package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserRepository persists users, workspaces and memberships.
type UserRepository interface {
	// CreateWithWorkspace inserts user, a new workspace and an OWNER
	// membership for the user in one transaction.
	CreateWithWorkspace(ctx context.Context, user *User, workspaceName string) (*Membership, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	// FindMembership returns the membership that scopes the user's sessions.
	FindMembership(ctx context.Context, userID string) (*Membership, error)

	ListMembers(ctx context.Context, workspaceID string) ([]Member, error)
	AddMember(ctx context.Context, workspaceID, userID string, role Role) error
	UpdateMemberRole(ctx context.Context, workspaceID, userID string, role Role) error
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db, now: time.Now}
}

const userColumns = "id, email, name, password_hash, created_at, updated_at"

// CreateWithWorkspace implements UserRepository. IDs are generated when empty.
// A duplicate email returns ErrEmailExists and leaves no rows behind.
func (r *SQLiteUserRepository) CreateWithWorkspace(ctx context.Context, user *User, workspaceName string) (*Membership, error) {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()
	}
	now := r.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	m := &Membership{
		UserID:      user.ID,
		WorkspaceID: "ws-" + uuid.NewString(),
		Role:        RoleOwner,
		CreatedAt:   now,
	}
	ts := formatTime(now)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting signup transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.PasswordHash, ts, ts,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workspaces (id, name, created_at) VALUES (?, ?, ?)`,
		m.WorkspaceID, workspaceName, ts,
	); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memberships (user_id, workspace_id, role, created_at) VALUES (?, ?, ?, ?)`,
		m.UserID, m.WorkspaceID, string(m.Role), ts,
	); err != nil {
		return nil, fmt.Errorf("creating membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing signup: %w", err)
	}
	return m, nil
}

// GetByID retrieves a user by ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// GetByEmail retrieves a user by email. Matching is case-insensitive.
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

// FindMembership returns the user's first membership ordered by workspace id.
// Sessions are scoped to exactly one tenant; users in several workspaces
// always resolve to the same one.
func (r *SQLiteUserRepository) FindMembership(ctx context.Context, userID string) (*Membership, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, workspace_id, role, created_at FROM memberships
		 WHERE user_id = ? ORDER BY workspace_id ASC LIMIT 1`, userID)

	var m Membership
	var role, createdAt string
	if err := row.Scan(&m.UserID, &m.WorkspaceID, &role, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoMembership
		}
		return nil, fmt.Errorf("finding membership: %w", err)
	}

	parsed, err := ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("membership for %s: %w", userID, err)
	}
	m.Role = parsed
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMembers returns the workspace members ordered by join time.
func (r *SQLiteUserRepository) ListMembers(ctx context.Context, workspaceID string) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.name, m.role, m.created_at
		 FROM memberships m JOIN users u ON u.id = m.user_id
		 WHERE m.workspace_id = ? ORDER BY m.created_at ASC, u.id ASC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var m Member
		var role, joined string
		if err := rows.Scan(&m.UserID, &m.Email, &m.Name, &role, &joined); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		if m.Role, err = ParseRole(role); err != nil {
			return nil, err
		}
		if m.JoinedAt, err = parseTime(joined); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating members: %w", err)
	}
	return members, nil
}

// AddMember adds an existing user to a workspace.
func (r *SQLiteUserRepository) AddMember(ctx context.Context, workspaceID, userID string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: invalid role %q", ErrValidation, role)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO memberships (user_id, workspace_id, role, created_at) VALUES (?, ?, ?, ?)`,
		userID, workspaceID, string(role), formatTime(r.now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: already a member", ErrConflict)
		}
		return fmt.Errorf("adding member: %w", err)
	}
	return nil
}

// UpdateMemberRole changes a member's role. Demoting the last OWNER of a
// workspace returns ErrLastOwner.
func (r *SQLiteUserRepository) UpdateMemberRole(ctx context.Context, workspaceID, userID string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: invalid role %q", ErrValidation, role)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting role update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT role FROM memberships WHERE workspace_id = ? AND user_id = ?`,
		workspaceID, userID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("reading member role: %w", err)
	}

	if Role(current) == RoleOwner && role != RoleOwner {
		var owners int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM memberships WHERE workspace_id = ? AND role = ?`,
			workspaceID, string(RoleOwner)).Scan(&owners); err != nil {
			return fmt.Errorf("counting owners: %w", err)
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE memberships SET role = ? WHERE workspace_id = ? AND user_id = ?`,
		string(role), workspaceID, userID); err != nil {
		return fmt.Errorf("updating member role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing role update: %w", err)
	}
	return nil
}

func scanUser(s scanner) (*User, error) {
	var u User
	var createdAt, updatedAt string
	if err := s.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
