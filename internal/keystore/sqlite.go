package keystore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/amanthanvi/keystash/internal/crypto"
	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	pragmaJournalModeWAL = `PRAGMA journal_mode=WAL`
	pragmaForeignKeysOn  = `PRAGMA foreign_keys=ON`
	pragmaBusyTimeout    = `PRAGMA busy_timeout=5000`
)

var (
	ErrSchemaTooNew      = errors.New("keystore: schema version newer than code")
	ErrInvalidPassphrase = errors.New("keystore: invalid passphrase")
)

type SQLiteOptions struct {
	// DefaultAccessGroup is stamped on items added without an access group.
	DefaultAccessGroup string
	// Argon2 parameters used when the keystore is initialized. Later unlocks
	// use the parameters recorded at initialization.
	Argon2 crypto.Argon2Params
	Logger *slog.Logger
}

// SQLite is a persistent keystore. Item payloads are encrypted at rest with
// keys derived from a master key that is only held in memory while the
// keystore is unlocked. A locked keystore refuses Add and FindOne with
// StatusInteractionNotAllowed; Delete needs no key material and keeps working.
type SQLite struct {
	db           *sql.DB
	path         string
	id           string
	defaultGroup string
	argon2       crypto.Argon2Params
	logger       *slog.Logger

	mu  sync.RWMutex
	key *crypto.MasterKey
}

func OpenSQLite(path string, opts SQLiteOptions) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("open keystore: empty path")
	}
	params := opts.Argon2.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("open keystore: create parent dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	if err := configureSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := RunMigrations(db, DefaultMigrations()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureDBPermissions(path); err != nil {
		_ = db.Close()
		return nil, err
	}

	id, err := ensureKeystoreID(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{
		db:           db,
		path:         path,
		id:           id,
		defaultGroup: accessGroupOrDefault(opts.DefaultAccessGroup, DefaultAccessGroup),
		argon2:       params,
		logger:       logger.With("component", "keystore", "path", path),
	}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.Lock()
	return s.db.Close()
}

func (s *SQLite) ID() string   { return s.id }
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) SchemaVersion() (int, error) {
	return readSchemaVersion(s.db)
}

// Count reports how many items are stored. It reads no item payloads and
// works while locked.
func (s *SQLite) Count() (int, error) {
	return countItems(s.db)
}

func (s *SQLite) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.key.Alive()
}

// Lock wipes the master key from memory.
func (s *SQLite) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key.Destroy()
	s.key = nil
}

func (s *SQLite) Add(item Item) Status {
	if st := validateItem(item); st != StatusSuccess {
		return st
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.key.Alive() {
		return StatusInteractionNotAllowed
	}

	id := uuid.NewString()
	blob, err := s.key.SealItem(id, item.Data)
	if err != nil {
		s.logger.Error("seal item failed", "account", item.Account, "error", err)
		return StatusInternal
	}

	_, err = s.db.Exec(`
		INSERT INTO items(id, class, account, access_group, synchronizable, data_ciphertext, data_nonce, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, id, string(item.Class), item.Account, accessGroupOrDefault(item.AccessGroup, s.defaultGroup),
		boolToInt(item.Synchronizable), blob.Ciphertext, blob.Nonce, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isConstraintError(err) {
			return StatusDuplicateItem
		}
		s.logger.Error("insert item failed", "account", item.Account, "error", err)
		return StatusIO
	}
	return StatusSuccess
}

func (s *SQLite) Delete(query Query) Status {
	if st := validateQuery(query); st != StatusSuccess {
		return st
	}

	where, args := query.where()
	result, err := s.db.Exec(`DELETE FROM items WHERE `+where, args...)
	if err != nil {
		s.logger.Error("delete items failed", "account", query.Account, "error", err)
		return StatusIO
	}
	count, err := result.RowsAffected()
	if err != nil {
		s.logger.Error("delete items: rows affected", "error", err)
		return StatusIO
	}
	if count == 0 {
		return StatusItemNotFound
	}
	return StatusSuccess
}

func (s *SQLite) FindOne(query Query) ([]byte, Status) {
	if st := validateQuery(query); st != StatusSuccess {
		return nil, st
	}
	if query.MatchLimit != MatchOne {
		return nil, StatusParam
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.key.Alive() {
		return nil, StatusInteractionNotAllowed
	}

	var (
		id   string
		blob crypto.EncryptedBlob
	)
	where, args := query.where()
	err := s.db.QueryRow(`
		SELECT id, data_ciphertext, data_nonce FROM items
		WHERE `+where+`
		ORDER BY rowid
		LIMIT 1
	`, args...).Scan(&id, &blob.Ciphertext, &blob.Nonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, StatusItemNotFound
		}
		s.logger.Error("find item failed", "account", query.Account, "error", err)
		return nil, StatusIO
	}
	if !query.ReturnData {
		return nil, StatusSuccess
	}

	data, err := s.key.OpenItem(id, blob)
	if err != nil {
		s.logger.Error("open item failed", "account", query.Account, "error", err)
		return nil, StatusDecode
	}
	if data == nil {
		data = []byte{}
	}
	return data, StatusSuccess
}

// where renders the query's attribute filter as a SQL predicate.
func (q Query) where() (string, []any) {
	clauses := []string{"class = ?"}
	args := []any{string(q.Class)}
	if q.Account != "" {
		clauses = append(clauses, "account = ?")
		args = append(args, q.Account)
	}
	if q.AccessGroup != "" {
		clauses = append(clauses, "access_group = ?")
		args = append(args, q.AccessGroup)
	}
	switch q.Synchronizable {
	case SyncAny:
	case SyncOn:
		clauses = append(clauses, "synchronizable = 1")
	default:
		clauses = append(clauses, "synchronizable = 0")
	}
	return strings.Join(clauses, " AND "), args
}

func configureSQLite(db *sql.DB) error {
	for _, stmt := range []string{pragmaJournalModeWAL, pragmaForeignKeysOn, pragmaBusyTimeout} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("configure sqlite %q: %w", stmt, err)
		}
	}
	return nil
}

func ensureDBPermissions(path string) error {
	for _, p := range []string{path, path + "-wal"} {
		if err := os.Chmod(p, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("set keystore file permissions: %w", err)
		}
	}
	return nil
}

func ensureKeystoreID(db *sql.DB) (string, error) {
	if _, err := db.Exec(`INSERT OR IGNORE INTO keystore_meta(key, value) VALUES(?, ?)`, keystoreIDMetaKey, uuid.NewString()); err != nil {
		return "", fmt.Errorf("ensure keystore id: %w", err)
	}
	var id string
	if err := db.QueryRow(`SELECT value FROM keystore_meta WHERE key = ?`, keystoreIDMetaKey).Scan(&id); err != nil {
		return "", fmt.Errorf("read keystore id: %w", err)
	}
	return id, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

var _ Client = (*SQLite)(nil)
