package storage

import (
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/amanthanvi/keystash/internal/codec"
	"github.com/amanthanvi/keystash/internal/keystore"
)

// SecureOptions configure a SecureStorage. They are fixed for the lifetime
// of the instance.
type SecureOptions struct {
	// Synchronizable marks written items for replication across devices.
	Synchronizable bool
	// AccessGroup scopes every item and query; empty means the keystore
	// default on write and any group on read.
	AccessGroup string
	// Codec encodes non-string values. Defaults to JSON.
	Codec  codec.Codec
	Logger *slog.Logger
}

// SecureStorage is a Backend over a secret keystore.
//
// Strings are stored as raw UTF-8 so they stay readable by other keystore
// clients. Set is a delete followed by an add because keystores reject adds
// of an existing item; if the add fails after the delete succeeded, the key
// is left absent.
type SecureStorage struct {
	client keystore.Client
	opts   SecureOptions
	codec  codec.Codec
	logger *slog.Logger

	mu         sync.Mutex
	lastStatus keystore.Status
	lastQuery  keystore.Query
}

func NewSecureStorage(client keystore.Client, opts SecureOptions) *SecureStorage {
	return &SecureStorage{
		client: client,
		opts:   opts,
		codec:  codecOrDefault(opts.Codec),
		logger: loggerOrDiscard(opts.Logger).With("backend", "secure"),
	}
}

func (s *SecureStorage) Set(key string, value any) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.encode(value)
	if err != nil {
		return err
	}

	pre := s.query(key)
	s.record(pre, s.client.Delete(pre))

	item := keystore.Item{
		Class:          keystore.ClassGenericPassword,
		Account:        key,
		AccessGroup:    s.opts.AccessGroup,
		Synchronizable: s.opts.Synchronizable,
		Data:           data,
	}
	status := s.client.Add(item)
	s.record(itemQuery(item), status)
	if status != keystore.StatusSuccess {
		s.logger.Warn("keystore add failed", "key", key, "status", status.String(), "code", int32(status))
		return &KeychainError{Status: status}
	}
	return nil
}

// Get reads key into dst. When dst is a *string the stored bytes are
// reinterpreted as text, and bytes that are not valid UTF-8 read as absent.
// Any keystore failure, not only "item not found", also reads as absent;
// LastStatus holds the raw status.
func (s *SecureStorage) Get(key string, dst any) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if err := validateDestination(dst); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.query(key)
	q.MatchLimit = keystore.MatchOne
	q.ReturnData = true

	data, status := s.client.FindOne(q)
	s.record(q, status)
	if status != keystore.StatusSuccess {
		if status != keystore.StatusItemNotFound {
			s.logger.Debug("keystore find failed", "key", key, "status", status.String(), "code", int32(status))
		}
		return false, nil
	}

	if text, ok := dst.(*string); ok {
		if !utf8.Valid(data) {
			return false, nil
		}
		*text = string(data)
		return true, nil
	}

	if err := s.codec.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("%w: key %q: %v", ErrDecodingFailed, key, err)
	}
	return true, nil
}

func (s *SecureStorage) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.query(key)
	status := s.client.Delete(q)
	s.record(q, status)
	if status != keystore.StatusSuccess && status != keystore.StatusItemNotFound {
		return &RemovalError{
			Detail: fmt.Sprintf("failed to remove value for key %q from keystore: %s", key, status),
			Status: status,
		}
	}
	return nil
}

func (s *SecureStorage) RemoveAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.query("")
	status := s.client.Delete(q)
	s.record(q, status)
	if status != keystore.StatusSuccess && status != keystore.StatusItemNotFound {
		return &RemovalError{
			Detail: fmt.Sprintf("failed to clear all data from keystore: %s", status),
			Status: status,
		}
	}
	return nil
}

// LastStatus returns the status of the most recent keystore call. It exists
// for diagnostics only.
func (s *SecureStorage) LastStatus() keystore.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus
}

// LastQuery returns the attributes sent with the most recent keystore call.
// Payloads are never part of it. For a Set this is the add, described as the
// query that would select the written item.
func (s *SecureStorage) LastQuery() keystore.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

// record must be called with mu held.
func (s *SecureStorage) record(q keystore.Query, status keystore.Status) {
	s.lastQuery = q
	s.lastStatus = status
}

func itemQuery(item keystore.Item) keystore.Query {
	q := keystore.Query{
		Class:       item.Class,
		Account:     item.Account,
		AccessGroup: item.AccessGroup,
	}
	if item.Synchronizable {
		q.Synchronizable = keystore.SyncOn
	}
	return q
}

// query builds the selector shared by reads and deletes. An empty key
// selects the whole namespace.
func (s *SecureStorage) query(key string) keystore.Query {
	q := keystore.Query{
		Class:       keystore.ClassGenericPassword,
		Account:     key,
		AccessGroup: s.opts.AccessGroup,
	}
	if s.opts.Synchronizable {
		q.Synchronizable = keystore.SyncAny
	}
	return q
}

func (s *SecureStorage) encode(value any) ([]byte, error) {
	if text, ok := value.(string); ok {
		return []byte(text), nil
	}
	data, err := s.codec.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	return data, nil
}

var _ Backend = (*SecureStorage)(nil)
