package keystore

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Info is what a keystore file reveals without a passphrase.
type Info struct {
	ID            string
	SchemaVersion int
	Items         int
	Initialized   bool
}

// Inspect reads keystore metadata over a read-only connection. Unlike
// OpenSQLite it never creates the file, runs migrations, assigns a keystore
// ID or changes file permissions.
func Inspect(path string) (Info, error) {
	if path == "" {
		return Info{}, fmt.Errorf("inspect keystore: empty path")
	}
	dsn, err := readOnlyDSN(path)
	if err != nil {
		return Info{}, fmt.Errorf("inspect keystore: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return Info{}, fmt.Errorf("inspect keystore: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	var info Info
	if info.SchemaVersion, err = readSchemaVersion(db); err != nil {
		return Info{}, fmt.Errorf("inspect keystore: %w", err)
	}
	if info.ID, _, err = readMeta(db, keystoreIDMetaKey); err != nil {
		return Info{}, fmt.Errorf("inspect keystore: %w", err)
	}
	if _, info.Initialized, err = readMeta(db, wrappedKeyMetaKey); err != nil {
		return Info{}, fmt.Errorf("inspect keystore: %w", err)
	}
	if info.Items, err = countItems(db); err != nil {
		return Info{}, fmt.Errorf("inspect keystore: %w", err)
	}
	return info, nil
}

func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p, RawQuery: "mode=ro"}
	return u.String(), nil
}

func readMeta(db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM keystore_meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read keystore meta %q: %w", key, err)
	}
	return value, true, nil
}

func countItems(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count keystore items: %w", err)
	}
	return n, nil
}
