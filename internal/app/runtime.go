package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/amanthanvi/keystash/internal/codec"
	"github.com/amanthanvi/keystash/internal/config"
	"github.com/amanthanvi/keystash/internal/keystore"
	"github.com/amanthanvi/keystash/internal/prefs"
	"github.com/amanthanvi/keystash/internal/storage"
)

// Runtime opens the stores named by a Config on first use and owns them
// until Close.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	mu       sync.Mutex
	keystore *keystore.SQLite
	secure   *StoreService
	prefs    *StoreService
}

func NewRuntime(cfg config.Config, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runtime{cfg: cfg, logger: logger}
}

// Secure opens and unlocks the keystore. The passphrase buffer is only read;
// the caller keeps ownership and destroys it.
func (r *Runtime) Secure(passphrase *memguard.LockedBuffer) (*StoreService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.secure != nil {
		return r.secure, nil
	}
	if passphrase == nil || passphrase.Size() == 0 {
		return nil, fmt.Errorf("%w: keystore passphrase is required", ErrValidation)
	}

	c, err := codec.ByName(r.cfg.Secure.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	ks, err := keystore.OpenSQLite(r.cfg.Keystore.Path, keystore.SQLiteOptions{
		DefaultAccessGroup: r.cfg.Keystore.DefaultAccessGroup,
		Argon2:             r.cfg.Keystore.Argon2(),
		Logger:             r.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := ks.Unlock(passphrase.Bytes()); err != nil {
		_ = ks.Close()
		return nil, fmt.Errorf("unlock keystore: %w", err)
	}

	backend := storage.NewSecureStorage(ks, storage.SecureOptions{
		Synchronizable: r.cfg.Secure.Synchronizable,
		AccessGroup:    r.cfg.Secure.AccessGroup,
		Codec:          c,
		Logger:         r.logger,
	})
	r.keystore = ks
	r.secure = NewStoreService("secure", backend)
	r.logger.Debug("secure store ready", "keystore_id", ks.ID())
	return r.secure, nil
}

func (r *Runtime) Preferences() (*StoreService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.prefs != nil {
		return r.prefs, nil
	}

	c, err := codec.ByName(r.cfg.Preferences.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	suite, err := prefs.OpenFile(r.cfg.Preferences.Dir, r.cfg.Preferences.Suite)
	if err != nil {
		return nil, err
	}

	backend := storage.NewPreferenceStorage(suite, storage.PreferenceOptions{
		Codec:         c,
		Logger:        r.logger,
		IgnoreMissing: r.cfg.Preferences.IgnoreMissingOnRemove,
	})
	r.prefs = NewStoreService("preferences", backend)
	r.logger.Debug("preference suite ready", "path", suite.Path())
	return r.prefs, nil
}

// Close locks and closes the keystore if it was opened.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.keystore != nil {
		errs = append(errs, r.keystore.Close())
		r.keystore = nil
	}
	r.secure = nil
	r.prefs = nil
	return errors.Join(errs...)
}
