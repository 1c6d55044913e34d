package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LatestSchemaVersion is the schema version new stores are upgraded to.
const LatestSchemaVersion = 2

type schemaObject struct {
	kind string
	name string
	ddl  string
}

type upgradeStep struct {
	version int
	name    string
	objects []schemaObject
}

// upgradeSteps run in order. Each step only creates the objects that are
// missing and never touches existing rows.
var upgradeSteps = []upgradeStep{
	{
		version: 1,
		name:    "history collection",
		objects: []schemaObject{
			{kind: "table", name: "history", ddl: `CREATE TABLE IF NOT EXISTS history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	description TEXT NOT NULL,
	generated_image TEXT NOT NULL,
	original_image TEXT NOT NULL,
	latitude REAL,
	longitude REAL,
	mode TEXT NOT NULL CHECK (mode IN ('realistic', 'creative', 'meta')),
	creative_element TEXT,
	user_prompt TEXT,
	character_name TEXT,
	timestamp INTEGER NOT NULL
)`},
			{kind: "index", name: "idx_history_timestamp", ddl: `CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history (timestamp)`},
			{kind: "index", name: "idx_history_mode", ddl: `CREATE INDEX IF NOT EXISTS idx_history_mode ON history (mode)`},
		},
	},
	{
		version: 2,
		name:    "characters collection",
		objects: []schemaObject{
			{kind: "table", name: "characters", ddl: `CREATE TABLE IF NOT EXISTS characters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	reference_image TEXT NOT NULL,
	description TEXT,
	created_at INTEGER NOT NULL,
	usage_count INTEGER NOT NULL DEFAULT 0,
	last_used_at INTEGER
)`},
			{kind: "index", name: "idx_characters_name", ddl: `CREATE INDEX IF NOT EXISTS idx_characters_name ON characters (name)`},
			{kind: "index", name: "idx_characters_created_at", ddl: `CREATE INDEX IF NOT EXISTS idx_characters_created_at ON characters (created_at)`},
			{kind: "index", name: "idx_characters_usage_count", ddl: `CREATE INDEX IF NOT EXISTS idx_characters_usage_count ON characters (usage_count)`},
		},
	},
}

// upgrade brings the schema to target and returns the version the store now
// operates at. A target below the stored version leaves the schema as is.
func (s *Store) upgrade(ctx context.Context, target int) (int, error) {
	if target <= 0 || target > LatestSchemaVersion {
		return 0, fmt.Errorf("unsupported schema version %d", target)
	}

	var current int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
			return fmt.Errorf("ensure schema_version: %w", err)
		}
		stored, err := readSchemaVersion(ctx, tx)
		if err != nil {
			return err
		}
		current = stored
		if target <= stored {
			return nil
		}

		for _, step := range upgradeSteps {
			if step.version <= stored || step.version > target {
				continue
			}
			if err := applyStep(ctx, tx, step); err != nil {
				return err
			}
		}
		if err := writeSchemaVersion(ctx, tx, target); err != nil {
			return err
		}
		current = target
		return nil
	})
	if err != nil {
		return 0, err
	}
	return current, nil
}

func applyStep(ctx context.Context, tx *sql.Tx, step upgradeStep) error {
	for _, obj := range step.objects {
		exists, err := schemaObjectExists(ctx, tx, obj.kind, obj.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := tx.ExecContext(ctx, obj.ddl); err != nil {
			return fmt.Errorf("apply %s (%s %s): %w", step.name, obj.kind, obj.name, err)
		}
	}
	return nil
}

func schemaObjectExists(ctx context.Context, tx *sql.Tx, kind, name string) (bool, error) {
	var count int
	row := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM sqlite_master WHERE type = ? AND name = ?`, kind, name)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("inspect %s %s: %w", kind, name, err)
	}
	return count > 0, nil
}

func readSchemaVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var version int
	err := tx.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func writeSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("reset schema version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}
