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

// Store wraps a SQLite database holding integrations, optimizer runs, and
// the applied-action audit log.
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
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "adops.db")
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

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
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

// --- Integrations ---

// SaveIntegration inserts or replaces the integration for an account.
// Reconnecting an account overwrites credentials and resets the status.
func (s *Store) SaveIntegration(i Integration) error {
	now := time.Now().UTC().Format(time.RFC3339)
	status := i.Status
	if status == "" {
		status = IntegrationActive
	}
	igs := i.InstagramIDs
	if igs == "" {
		igs = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO integrations (account_id, token_ciphertext, page_id, instagram_ids, preferred_backend, autonomous_enabled, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			token_ciphertext = excluded.token_ciphertext,
			page_id = excluded.page_id,
			instagram_ids = excluded.instagram_ids,
			preferred_backend = excluded.preferred_backend,
			autonomous_enabled = excluded.autonomous_enabled,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		i.AccountID, i.TokenCiphertext, i.PageID, igs, i.PreferredBackend, boolToInt(i.AutonomousEnabled), status, now, now,
	)
	return err
}

func (s *Store) GetIntegration(accountID string) (Integration, error) {
	var i Integration
	var autonomous int
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT account_id, token_ciphertext, page_id, instagram_ids, preferred_backend, autonomous_enabled, status, created_at, updated_at
		FROM integrations WHERE account_id = ?`, accountID,
	).Scan(&i.AccountID, &i.TokenCiphertext, &i.PageID, &i.InstagramIDs, &i.PreferredBackend, &autonomous, &i.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Integration{}, ErrNotFound
	}
	if err != nil {
		return Integration{}, err
	}
	i.AutonomousEnabled = autonomous != 0
	if i.CreatedAt, err = parseTime(createdAt); err != nil {
		return Integration{}, err
	}
	if i.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Integration{}, err
	}
	return i, nil
}

// UpdateIntegrationSettings mutates the per-account flags. Nil means leave
// the field unchanged.
func (s *Store) UpdateIntegrationSettings(accountID string, autonomous *bool, preferredBackend *string) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339)}
	if autonomous != nil {
		sets = append(sets, "autonomous_enabled = ?")
		args = append(args, boolToInt(*autonomous))
	}
	if preferredBackend != nil {
		sets = append(sets, "preferred_backend = ?")
		args = append(args, *preferredBackend)
	}
	args = append(args, accountID)

	res, err := s.db.Exec("UPDATE integrations SET "+strings.Join(sets, ", ")+" WHERE account_id = ?", args...)
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
	return nil
}

// SetIntegrationStatus soft-deletes or revives an integration.
func (s *Store) SetIntegrationStatus(accountID, status string) error {
	res, err := s.db.Exec(`UPDATE integrations SET status = ?, updated_at = ? WHERE account_id = ?`,
		status, time.Now().UTC().Format(time.RFC3339), accountID)
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
	return nil
}

// ListAutonomousIntegrations returns every active integration with
// autonomous mode enabled, for the scheduler.
func (s *Store) ListAutonomousIntegrations() ([]Integration, error) {
	rows, err := s.db.Query(`
		SELECT account_id, token_ciphertext, page_id, instagram_ids, preferred_backend, autonomous_enabled, status, created_at, updated_at
		FROM integrations WHERE status = ? AND autonomous_enabled = 1 ORDER BY account_id`, IntegrationActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Integration
	for rows.Next() {
		var i Integration
		var autonomous int
		var createdAt, updatedAt string
		if err := rows.Scan(&i.AccountID, &i.TokenCiphertext, &i.PageID, &i.InstagramIDs, &i.PreferredBackend, &autonomous, &i.Status, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		i.AutonomousEnabled = autonomous != 0
		if i.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if i.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		results = append(results, i)
	}
	return results, rows.Err()
}

// --- Optimizer runs ---

func (s *Store) SaveRun(r Run) error {
	_, err := s.db.Exec(`
		INSERT INTO optimizer_runs (id, account_id, trigger_source, status, actions_applied, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AccountID, r.Trigger, r.Status, r.ActionsApplied, r.Error,
		r.StartedAt.UTC().Format(time.RFC3339), formatTime(r.FinishedAt),
	)
	return err
}

// FinishRun records the outcome of a run started earlier.
func (s *Store) FinishRun(id, status string, actionsApplied int, errMsg string) error {
	res, err := s.db.Exec(`
		UPDATE optimizer_runs SET status = ?, actions_applied = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, actionsApplied, errMsg, time.Now().UTC().Format(time.RFC3339), id)
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
	return nil
}

func (s *Store) ListRuns(accountID string, limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, trigger_source, status, actions_applied, error, started_at, finished_at
		FROM optimizer_runs WHERE account_id = ? ORDER BY started_at DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var r Run
		var startedAt, finishedAt string
		if err := rows.Scan(&r.ID, &r.AccountID, &r.Trigger, &r.Status, &r.ActionsApplied, &r.Error, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if finishedAt != "" {
			if r.FinishedAt, err = parseTime(finishedAt); err != nil {
				return nil, err
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Actions ---

func (s *Store) SaveAction(a ActionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO actions (id, run_id, account_id, target_id, type, old_budget, new_budget, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, a.AccountID, a.TargetID, a.Type, a.OldBudget, a.NewBudget, a.Status, a.Error,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListActions(runID string) ([]ActionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, account_id, target_id, type, old_budget, new_budget, status, error, created_at
		FROM actions WHERE run_id = ? ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ActionRecord
	for rows.Next() {
		var a ActionRecord
		var createdAt string
		if err := rows.Scan(&a.ID, &a.RunID, &a.AccountID, &a.TargetID, &a.Type, &a.OldBudget, &a.NewBudget, &a.Status, &a.Error, &createdAt); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
