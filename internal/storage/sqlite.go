package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding profiles and extraction checkpoints.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "code42cli.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Two CLI invocations may touch the same file; wait instead of failing.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Profiles ---

// SaveProfile inserts or updates a profile. The default marker is left untouched;
// use SetDefaultProfile to move it.
func (s *Store) SaveProfile(p Profile) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO profiles (name, server_url, username, ignore_ssl_errors, is_default, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(name) DO UPDATE SET
			server_url = excluded.server_url,
			username = excluded.username,
			ignore_ssl_errors = excluded.ignore_ssl_errors`,
		p.Name, p.ServerURL, p.Username, p.IgnoreSSLErrors, createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetProfile(name string) (Profile, error) {
	row := s.db.QueryRow(`
		SELECT name, server_url, username, ignore_ssl_errors, is_default, created_at
		FROM profiles WHERE name = ?`, name)
	return scanProfile(row)
}

// GetDefaultProfile returns the profile marked as default, or ErrNotFound.
func (s *Store) GetDefaultProfile() (Profile, error) {
	row := s.db.QueryRow(`
		SELECT name, server_url, username, ignore_ssl_errors, is_default, created_at
		FROM profiles WHERE is_default = 1 LIMIT 1`)
	return scanProfile(row)
}

func (s *Store) ListProfiles() ([]Profile, error) {
	rows, err := s.db.Query(`
		SELECT name, server_url, username, ignore_ssl_errors, is_default, created_at
		FROM profiles ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// SetDefaultProfile marks name as the only default profile.
func (s *Store) SetDefaultProfile(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning default transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE profiles SET is_default = 1 WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`UPDATE profiles SET is_default = 0 WHERE name != ?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteProfile removes a profile together with all of its checkpoints.
func (s *Store) DeleteProfile(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM profiles WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM checkpoints WHERE profile = ?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var p Profile
	var createdAt string
	err := row.Scan(&p.Name, &p.ServerURL, &p.Username, &p.IgnoreSSLErrors, &p.IsDefault, &createdAt)
	if err == sql.ErrNoRows {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Profile{}, fmt.Errorf("parsing created_at: %w", err)
	}
	p.CreatedAt = t
	return p, nil
}

// --- Checkpoints ---

// GetCheckpoint returns the stored value for (profile, name), or ErrNotFound.
func (s *Store) GetCheckpoint(profile, name string) (Checkpoint, error) {
	c := Checkpoint{Profile: profile, Name: name}
	var updatedAt string
	err := s.db.QueryRow(`SELECT value, updated_at FROM checkpoints WHERE profile = ? AND name = ?`, profile, name).
		Scan(&c.Value, &updatedAt)
	if err == sql.ErrNoRows {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, err
	}
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	c.UpdatedAt = t
	return c, nil
}

// ReplaceCheckpoint overwrites the value for (profile, name) in a single statement.
func (s *Store) ReplaceCheckpoint(profile, name string, value float64) error {
	_, err := s.db.Exec(`
		INSERT INTO checkpoints (profile, name, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(profile, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		profile, name, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// DeleteCheckpoint removes the value for (profile, name). Deleting a missing
// checkpoint is not an error.
func (s *Store) DeleteCheckpoint(profile, name string) error {
	_, err := s.db.Exec(`DELETE FROM checkpoints WHERE profile = ? AND name = ?`, profile, name)
	return err
}

func (s *Store) ListCheckpoints(profile string) ([]Checkpoint, error) {
	rows, err := s.db.Query(`
		SELECT name, value, updated_at FROM checkpoints WHERE profile = ? ORDER BY name ASC`, profile)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Checkpoint
	for rows.Next() {
		c := Checkpoint{Profile: profile}
		var updatedAt string
		if err := rows.Scan(&c.Name, &c.Value, &updatedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		c.UpdatedAt = t
		results = append(results, c)
	}
	return results, rows.Err()
}
