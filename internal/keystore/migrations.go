package keystore

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"time"
)

const (
	schemaVersionMetaKey = "schema_version"
	keystoreIDMetaKey    = "keystore_id"
	wrappedKeyMetaKey    = "wrapped_master_key"
)

type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

var defaultMigrations = []Migration{
	{
		Version:     1,
		Description: "create items table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS items (
				id TEXT PRIMARY KEY,
				class TEXT NOT NULL,
				account TEXT NOT NULL,
				access_group TEXT NOT NULL,
				synchronizable INTEGER NOT NULL DEFAULT 0,
				data_ciphertext BLOB NOT NULL,
				data_nonce BLOB NOT NULL,
				created_at TEXT NOT NULL,
				UNIQUE(class, account, access_group, synchronizable)
			)`)
			if err != nil {
				return fmt.Errorf("create items: %w", err)
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "index items by access group",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_items_class_access_group ON items(class, access_group)`); err != nil {
				return fmt.Errorf("create access group index: %w", err)
			}
			return nil
		},
	},
}

func DefaultMigrations() []Migration {
	out := make([]Migration, len(defaultMigrations))
	copy(out, defaultMigrations)
	return out
}

func CurrentSchemaVersion() int {
	return maxMigrationVersion(defaultMigrations)
}

// RunMigrations applies every migration newer than the recorded schema
// version, each in its own transaction.
func RunMigrations(db *sql.DB, migrations []Migration) error {
	if db == nil {
		return fmt.Errorf("run migrations: db is nil")
	}
	if err := ensureMigrationTables(db); err != nil {
		return err
	}

	ordered := make([]Migration, len(migrations))
	copy(ordered, migrations)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	current, err := readSchemaVersion(db)
	if err != nil {
		return err
	}
	if maxVersion := maxMigrationVersion(ordered); current > maxVersion {
		return fmt.Errorf("%w: db=%d code=%d", ErrSchemaTooNew, current, maxVersion)
	}

	for _, migration := range ordered {
		if migration.Version <= current {
			continue
		}
		if err := applyMigration(db, migration); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, migration Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration v%d: %w", migration.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := migration.Up(tx); err != nil {
		return fmt.Errorf("migration v%d (%s): %w", migration.Version, migration.Description, err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_migrations(version, applied_at) VALUES (?, ?)`, migration.Version, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("record schema migration v%d: %w", migration.Version, err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO keystore_meta(key, value) VALUES(?, ?)`, schemaVersionMetaKey, strconv.Itoa(migration.Version)); err != nil {
		return fmt.Errorf("update schema version v%d: %w", migration.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration v%d: %w", migration.Version, err)
	}
	return nil
}

func ensureMigrationTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS keystore_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`,
		`INSERT OR IGNORE INTO keystore_meta(key, value) VALUES('` + schemaVersionMetaKey + `', '0')`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure migration tables: %w", err)
		}
	}
	return nil
}

func readSchemaVersion(db *sql.DB) (int, error) {
	var raw string
	if err := db.QueryRow(`SELECT value FROM keystore_meta WHERE key = ?`, schemaVersionMetaKey).Scan(&raw); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", raw, err)
	}
	return version, nil
}

func maxMigrationVersion(migrations []Migration) int {
	highest := 0
	for _, migration := range migrations {
		if migration.Version > highest {
			highest = migration.Version
		}
	}
	return highest
}
