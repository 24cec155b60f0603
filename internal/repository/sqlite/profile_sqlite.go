package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/civicportal/session-core/internal/models"
	"github.com/civicportal/session-core/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	principal_id      TEXT PRIMARY KEY,
	full_name         TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	role              TEXT NOT NULL DEFAULT 'citizen',
	is_active         INTEGER NOT NULL DEFAULT 1,
	created_at        TEXT NOT NULL,
	last_login        TEXT,
	last_login_device TEXT
)`

// SQLiteProfileRepository implements ProfileRepository on a SQLite database.
type SQLiteProfileRepository struct {
	db *sql.DB
}

var _ repository.ProfileRepository = (*SQLiteProfileRepository)(nil)

// OpenSQLiteProfileRepository opens (or creates) the database at path and
// ensures the profiles table exists.
func OpenSQLiteProfileRepository(ctx context.Context, path string) (*SQLiteProfileRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed opening connection to sqlite: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	repo, err := NewSQLiteProfileRepository(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func NewSQLiteProfileRepository(ctx context.Context, db *sql.DB) (*SQLiteProfileRepository, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed creating schema resources: %w", err)
	}
	return &SQLiteProfileRepository{db: db}, nil
}

func (r *SQLiteProfileRepository) Close() error {
	return r.db.Close()
}

// UpsertProfile creates or replaces the profile record. Login bookkeeping is preserved.
func (r *SQLiteProfileRepository) UpsertProfile(ctx context.Context, profile models.Profile) error {
	createdAt := profile.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (principal_id, full_name, email, role, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(principal_id) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			role = excluded.role,
			is_active = excluded.is_active`,
		profile.PrincipalID, profile.FullName, profile.Email, string(profile.Role),
		profile.IsActive, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (r *SQLiteProfileRepository) FetchProfile(ctx context.Context, principalID string) (*models.Profile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT principal_id, full_name, email, role, is_active, created_at, last_login, last_login_device
		FROM profiles WHERE principal_id = ?`, principalID)

	var (
		profile   models.Profile
		role      string
		createdAt string
		lastLogin sql.NullString
		device    sql.NullString
	)
	err := row.Scan(&profile.PrincipalID, &profile.FullName, &profile.Email, &role,
		&profile.IsActive, &createdAt, &lastLogin, &device)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	profile.Role = models.Role(role)
	if profile.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at for profile %s: %w", principalID, err)
	}
	if lastLogin.Valid {
		at, err := parseTime(lastLogin.String)
		if err != nil {
			return nil, fmt.Errorf("invalid last_login for profile %s: %w", principalID, err)
		}
		profile.LastLogin = &at
	}
	if device.Valid && device.String != "" {
		var d models.LoginDevice
		if err := json.Unmarshal([]byte(device.String), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal login device: %w", err)
		}
		profile.LastLoginDevice = &d
	}
	return &profile, nil
}

func (r *SQLiteProfileRepository) RecordLogin(ctx context.Context, principalID string, at time.Time, device models.LoginDevice) error {
	deviceJSON, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("failed to marshal login device: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET last_login = ?, last_login_device = ? WHERE principal_id = ?`,
		formatTime(at), string(deviceJSON), principalID)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	if n == 0 {
		return repository.ErrProfileNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
