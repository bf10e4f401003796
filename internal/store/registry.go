package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added UNIQUE constraint on runs.path
const currentSchemaVersion = 1

// ErrNoRun is returned when no run matches a registry lookup.
var ErrNoRun = errors.New("no matching run recorded")

// Registry records pipeline runs and the most-recent-run pointer per
// invoking shell. Uses SQLite with WAL mode for concurrent read access.
type Registry struct {
	db     *sql.DB
	topdir string
}

// OpenRegistry creates or opens the registry under topdir. The topdir is
// created if absent. This function is idempotent.
func OpenRegistry(topdir string) (*Registry, error) {
	if err := os.MkdirAll(topdir, 0o755); err != nil {
		return nil, fmt.Errorf("create state topdir: %w", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(topdir, "registry.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to registry database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Registry{db: db, topdir: topdir}, nil
}

// Close closes the registry database.
func (r *Registry) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Topdir returns the directory runs are created under.
func (r *Registry) Topdir() string { return r.topdir }

// Run is one registered pipeline run.
type Run struct {
	Name       string
	Path       string
	ShellKey   string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// CreateRun allocates the first unused run-N name under the topdir,
// creates its directory and registers it for shellKey.
func (r *Registry) CreateRun(shellKey string) (*Run, error) {
	var maxID sql.NullInt64
	if err := r.db.QueryRow(`SELECT MAX(id) FROM runs`).Scan(&maxID); err != nil {
		return nil, fmt.Errorf("allocate run name: %w", err)
	}
	name := fmt.Sprintf("run-%d", maxID.Int64+1)
	path := filepath.Join(r.topdir, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	now := time.Now()
	_, err := r.db.Exec(
		`INSERT INTO runs (name, path, shell_key, created_at, last_used_at) VALUES (?, ?, ?, ?, ?)`,
		name, path, shellKey, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("register run %s: %w", name, err)
	}
	return &Run{Name: name, Path: path, ShellKey: shellKey, CreatedAt: now, LastUsedAt: now}, nil
}

// Adopt registers (or re-points) an explicitly named run directory for
// shellKey, creating the directory when missing. Used for --state-dir.
func (r *Registry) Adopt(path, shellKey string) (*Run, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve run path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	now := time.Now()
	_, err = r.db.Exec(
		`INSERT INTO runs (name, path, shell_key, created_at, last_used_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET shell_key = excluded.shell_key, last_used_at = excluded.last_used_at`,
		filepath.Base(abs), abs, shellKey, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("register run %s: %w", abs, err)
	}
	return &Run{Name: filepath.Base(abs), Path: abs, ShellKey: shellKey, CreatedAt: now, LastUsedAt: now}, nil
}

// Touch updates the most-recent-run pointer for the run at path.
func (r *Registry) Touch(path string) error {
	_, err := r.db.Exec(`UPDATE runs SET last_used_at = ? WHERE path = ?`,
		time.Now().Unix(), path)
	return err
}

// MostRecent returns the run most recently used by shellKey. This is the
// explicit pointer lookup behind the -P flag.
func (r *Registry) MostRecent(shellKey string) (*Run, error) {
	row := r.db.QueryRow(
		`SELECT name, path, shell_key, created_at, last_used_at FROM runs
		 WHERE shell_key = ? ORDER BY last_used_at DESC, id DESC LIMIT 1`, shellKey)
	return scanRun(row)
}

// ByName resolves an explicitly named run.
func (r *Registry) ByName(name string) (*Run, error) {
	row := r.db.QueryRow(
		`SELECT name, path, shell_key, created_at, last_used_at FROM runs WHERE name = ?`, name)
	return scanRun(row)
}

// List returns all registered runs, most recent first, capped at limit
// (0 means no cap).
func (r *Registry) List(limit int) ([]*Run, error) {
	q := `SELECT name, path, shell_key, created_at, last_used_at FROM runs
	      ORDER BY last_used_at DESC, id DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.Query(q+` LIMIT ?`, limit)
	} else {
		rows, err = r.db.Query(q)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var created, lastUsed int64
	err := row.Scan(&run.Name, &run.Path, &run.ShellKey, &created, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRun
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.CreatedAt = time.Unix(created, 0)
	run.LastUsedAt = time.Unix(lastUsed, 0)
	return &run, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	// migrations go here as the schema evolves; v1 ships in schema.sql
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
