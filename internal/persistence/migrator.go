package persistence

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// migration is one versioned schema step discovered on disk. Files follow
// {version}_{name}.up.sql / {version}_{name}.down.sql; the version prefix
// orders application.
type migration struct {
	version string
	name    string
	upFile  string
}

func (m migration) downFile() string {
	return strings.Replace(m.upFile, ".up.sql", ".down.sql", 1)
}

// Migrator applies the guard schema in versioned steps, recording each
// applied step with a content checksum in guard_schema_history.
type Migrator struct {
	db  *sql.DB
	dir string
	log zerolog.Logger
}

func NewMigrator(db *sql.DB, dir string, log zerolog.Logger) *Migrator {
	return &Migrator{db: db, dir: dir, log: log}
}

// Up applies every pending migration in version order. Each step runs in
// its own transaction together with its history row, so a failed step
// leaves the schema at the previous version.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureHistory(ctx); err != nil {
		return fmt.Errorf("ensure schema history: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("load schema history: %w", err)
	}

	pending, err := m.discover()
	if err != nil {
		return fmt.Errorf("discover migrations: %w", err)
	}

	for _, mig := range pending {
		if applied[mig.version] {
			continue
		}
		if err := m.applyStep(ctx, mig); err != nil {
			return err
		}
		m.log.Info().
			Str("version", mig.version).
			Str("name", mig.name).
			Msg("schema step applied")
	}
	return nil
}

// Down reverts the most recently applied step using its .down.sql twin.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureHistory(ctx); err != nil {
		return fmt.Errorf("ensure schema history: %w", err)
	}

	var version, upFile string
	err := m.db.QueryRowContext(ctx,
		`SELECT version, up_file FROM guard_schema_history ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &upFile)
	if err == sql.ErrNoRows {
		m.log.Info().Msg("schema history empty, nothing to revert")
		return nil
	}
	if err != nil {
		return fmt.Errorf("latest schema step: %w", err)
	}

	mig := migration{version: version, upFile: upFile}
	script, err := os.ReadFile(filepath.Join(m.dir, mig.downFile()))
	if err != nil {
		return fmt.Errorf("read %s: %w", mig.downFile(), err)
	}

	err = m.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("revert %s: %w", mig.downFile(), err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM guard_schema_history WHERE version = $1`, version); err != nil {
			return fmt.Errorf("delete history row %s: %w", version, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.log.Info().Str("version", version).Msg("schema step reverted")
	return nil
}

func (m *Migrator) applyStep(ctx context.Context, mig migration) error {
	script, err := os.ReadFile(filepath.Join(m.dir, mig.upFile))
	if err != nil {
		return fmt.Errorf("read %s: %w", mig.upFile, err)
	}

	sum := sha256.Sum256(script)
	checksum := hex.EncodeToString(sum[:])

	return m.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("apply %s: %w", mig.upFile, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO guard_schema_history (version, name, up_file, checksum) VALUES ($1, $2, $3, $4)`,
			mig.version, mig.name, mig.upFile, checksum,
		); err != nil {
			return fmt.Errorf("record %s: %w", mig.upFile, err)
		}
		return nil
	})
}

func (m *Migrator) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (m *Migrator) ensureHistory(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS guard_schema_history (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			up_file    TEXT NOT NULL,
			checksum   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM guard_schema_history`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// discover lists the up-migrations on disk in version order.
func (m *Migrator) discover() ([]migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	var found []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		version, name := splitMigrationName(e.Name())
		found = append(found, migration{version: version, name: name, upFile: e.Name()})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].version < found[j].version })
	return found, nil
}

// splitMigrationName takes "000002_projections.up.sql" apart into
// ("000002", "projections").
func splitMigrationName(file string) (version, name string) {
	base := strings.TrimSuffix(file, ".up.sql")
	parts := strings.SplitN(base, "_", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return base, base
}
