// Package grant persists and verifies write-capable output directory grants.
package grant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Mode is the access level a grant is verified against.
type Mode string

const (
	ModeRead      Mode = "read"
	ModeReadWrite Mode = "readwrite"
)

// Status is the outcome of a live grant verification.
type Status string

const (
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
)

// ErrDenied reports a grant that failed its live verification probe.
var ErrDenied = errors.New("output folder access denied")

// Grant is one persisted directory capability.
type Grant struct {
	ID             string
	Path           string
	Mode           Mode
	CreatedAt      time.Time
	LastVerifiedAt time.Time
}

// Store persists grants in SQLite.
type Store struct {
	sqlDB *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS grants (
	id               TEXT PRIMARY KEY,
	path             TEXT NOT NULL,
	mode             TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	last_verified_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS grants_created_at ON grants (created_at DESC);
`

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite grant store, creating the database and schema on demand.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("grant store path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return nil, fmt.Errorf("ensure grant store dir: %w", err)
	}

	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply grant schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Set records a new grant for path, superseding any previous grant.
func (s *Store) Set(ctx context.Context, path string, mode Mode) (Grant, error) {
	if err := ctx.Err(); err != nil {
		return Grant{}, err
	}
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || path == "." {
		return Grant{}, fmt.Errorf("grant path is required")
	}
	if mode != ModeRead && mode != ModeReadWrite {
		return Grant{}, fmt.Errorf("unknown grant mode %q", mode)
	}

	now := time.Now()
	g := Grant{
		ID:             uuid.NewString(),
		Path:           path,
		Mode:           mode,
		CreatedAt:      now,
		LastVerifiedAt: time.Time{},
	}

	// Superseding is unconditional: prior grants are removed in the same
	// transaction, so ordering never depends on timestamp resolution.
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return Grant{}, fmt.Errorf("begin grant update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM grants`); err != nil {
		_ = tx.Rollback()
		return Grant{}, fmt.Errorf("clear superseded grants: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO grants (id, path, mode, created_at, last_verified_at) VALUES (?, ?, ?, ?, ?)`,
		g.ID, g.Path, string(g.Mode), toMillis(g.CreatedAt), int64(0),
	); err != nil {
		_ = tx.Rollback()
		return Grant{}, fmt.Errorf("insert grant: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Grant{}, fmt.Errorf("commit grant update: %w", err)
	}
	return g, nil
}

// Get returns the most recent grant, if any.
func (s *Store) Get(ctx context.Context) (Grant, bool, error) {
	if err := ctx.Err(); err != nil {
		return Grant{}, false, err
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, path, mode, created_at, last_verified_at
		 FROM grants ORDER BY created_at DESC, id DESC LIMIT 1`,
	)

	var (
		g          Grant
		mode       string
		createdAt  int64
		verifiedAt int64
	)
	if err := row.Scan(&g.ID, &g.Path, &mode, &createdAt, &verifiedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Grant{}, false, nil
		}
		return Grant{}, false, fmt.Errorf("read grant: %w", err)
	}

	g.Mode = Mode(mode)
	g.CreatedAt = fromMillis(createdAt)
	if verifiedAt > 0 {
		g.LastVerifiedAt = fromMillis(verifiedAt)
	}
	return g, true, nil
}

// Verify runs a live access probe against the granted directory. Grants can
// be revoked out-of-band between sessions, so the result is never cached;
// callers must re-verify immediately before every write.
func (s *Store) Verify(ctx context.Context, g Grant, mode Mode) (Status, error) {
	if err := ctx.Err(); err != nil {
		return StatusDenied, err
	}

	if probe(g.Path, mode) != nil {
		return StatusDenied, nil
	}

	if _, err := s.sqlDB.ExecContext(ctx,
		`UPDATE grants SET last_verified_at = ? WHERE id = ?`,
		toMillis(time.Now()), g.ID,
	); err != nil {
		return StatusGranted, fmt.Errorf("record verification: %w", err)
	}
	return StatusGranted, nil
}

// probe checks real filesystem access rather than trusting stored state.
func probe(path string, mode Mode) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("grant path %q is not a directory", path)
	}
	if mode != ModeReadWrite {
		return nil
	}

	probePath := filepath.Join(path, ".heycam-probe-"+uuid.NewString())
	f, err := os.OpenFile(probePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	_ = f.Close()
	return os.Remove(probePath)
}
