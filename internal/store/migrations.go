package store

import (
	"context"
	"fmt"

	"lhihi/internal/logging"
)

// Schema versions:
// v1: conversations and turns
// v2: thinking column on turns
const CurrentSchemaVersion = 2

// migrations[i] upgrades the schema from version i to i+1.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			attachments TEXT NOT NULL DEFAULT '[]',
			related_queries TEXT NOT NULL DEFAULT '[]',
			sources TEXT NOT NULL DEFAULT '[]',
			created_at BIGINT NOT NULL,
			UNIQUE (conversation_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at)`,
	},
	{
		`ALTER TABLE turns ADD COLUMN thinking TEXT NOT NULL DEFAULT ''`,
	},
}

// migrate applies every migration above the recorded schema version, one
// transaction per version.
func (s *Store) migrate(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategoryStore, "migrate")
	defer timer.Stop()

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > CurrentSchemaVersion {
		return fmt.Errorf("database schema v%d is newer than supported v%d", current, CurrentSchemaVersion)
	}

	for v := current; v < CurrentSchemaVersion; v++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", v+1, err)
		}
		for _, stmt := range migrations[v] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration v%d: %w", v+1, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", v+1, err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO schema_version (version) VALUES (?)`), v+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", v+1, err)
		}
		logging.Store("Applied schema migration v%d", v+1)
	}
	return nil
}

// SchemaVersion returns the recorded schema version, 0 for a fresh database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
