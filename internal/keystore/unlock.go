package keystore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/amanthanvi/keystash/internal/crypto"
	"github.com/awnumar/memguard"
)

// wrappedKeyBundle holds what is needed to recover the master key from a
// passphrase. Binary fields are hex-encoded for the TEXT value column.
type wrappedKeyBundle struct {
	Ciphertext    string `json:"ciphertext"`
	Nonce         string `json:"nonce"`
	Argon2Salt    string `json:"argon2_salt"`
	CommitmentTag string `json:"commitment_tag"`
	Memory        uint32 `json:"argon2_memory"`
	Iterations    uint32 `json:"argon2_iterations"`
	Parallelism   uint8  `json:"argon2_parallelism"`
	KeyLen        uint32 `json:"argon2_key_len"`
}

// Initialized reports whether a master key has been created.
func (s *SQLite) Initialized() (bool, error) {
	_, found, err := s.loadWrappedKey()
	return found, err
}

// Unlock loads the master key into memory. The first unlock of a fresh
// keystore creates the master key and wraps it under the passphrase.
func (s *SQLite) Unlock(passphrase []byte) error {
	if len(passphrase) == 0 {
		return fmt.Errorf("%w: passphrase must not be empty", ErrInvalidPassphrase)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key.Alive() {
		return nil
	}

	bundle, found, err := s.loadWrappedKey()
	if err != nil {
		return err
	}

	var key *crypto.MasterKey
	if found {
		key, err = s.unwrap(passphrase, bundle)
	} else {
		key, err = s.initialize(passphrase)
	}
	if err != nil {
		return err
	}
	s.key = key
	s.logger.Debug("keystore unlocked", "initialized", !found)
	return nil
}

func (s *SQLite) initialize(passphrase []byte) (*crypto.MasterKey, error) {
	salt, err := crypto.GenerateSalt(s.argon2.SaltLen)
	if err != nil {
		return nil, fmt.Errorf("initialize keystore: %w", err)
	}
	kek, err := crypto.DeriveKEK(passphrase, salt, s.argon2)
	if err != nil {
		return nil, fmt.Errorf("initialize keystore: %w", err)
	}
	defer memguard.WipeBytes(kek)

	key, err := crypto.GenerateMasterKey(s.id)
	if err != nil {
		return nil, fmt.Errorf("initialize keystore: %w", err)
	}
	wrapped, err := key.Wrap(kek)
	if err != nil {
		key.Destroy()
		return nil, fmt.Errorf("initialize keystore: %w", err)
	}
	tag, err := key.CommitmentTag()
	if err != nil {
		key.Destroy()
		return nil, fmt.Errorf("initialize keystore: %w", err)
	}

	bundle := wrappedKeyBundle{
		Ciphertext:    hex.EncodeToString(wrapped.Ciphertext),
		Nonce:         hex.EncodeToString(wrapped.Nonce),
		Argon2Salt:    hex.EncodeToString(salt),
		CommitmentTag: hex.EncodeToString(tag),
		Memory:        s.argon2.Memory,
		Iterations:    s.argon2.Iterations,
		Parallelism:   s.argon2.Parallelism,
		KeyLen:        s.argon2.KeyLen,
	}
	if err := s.storeWrappedKey(bundle); err != nil {
		key.Destroy()
		return nil, err
	}
	return key, nil
}

func (s *SQLite) unwrap(passphrase []byte, bundle wrappedKeyBundle) (*crypto.MasterKey, error) {
	var (
		wrapped crypto.EncryptedBlob
		salt    []byte
		tag     []byte
		err     error
	)
	for _, field := range []struct {
		name string
		raw  string
		dst  *[]byte
	}{
		{"ciphertext", bundle.Ciphertext, &wrapped.Ciphertext},
		{"nonce", bundle.Nonce, &wrapped.Nonce},
		{"argon2 salt", bundle.Argon2Salt, &salt},
		{"commitment tag", bundle.CommitmentTag, &tag},
	} {
		if *field.dst, err = hex.DecodeString(field.raw); err != nil {
			return nil, fmt.Errorf("unlock keystore: decode %s: %w", field.name, err)
		}
	}

	params := crypto.Argon2Params{
		Memory:      bundle.Memory,
		Iterations:  bundle.Iterations,
		Parallelism: bundle.Parallelism,
		SaltLen:     len(salt),
		KeyLen:      bundle.KeyLen,
	}
	kek, err := crypto.DeriveKEK(passphrase, salt, params)
	if err != nil {
		return nil, fmt.Errorf("unlock keystore: %w", err)
	}
	defer memguard.WipeBytes(kek)

	key, err := crypto.UnwrapMasterKey(kek, s.id, wrapped, tag)
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidKEK) || errors.Is(err, crypto.ErrCommitmentMismatch) {
			return nil, ErrInvalidPassphrase
		}
		return nil, fmt.Errorf("unlock keystore: %w", err)
	}
	return key, nil
}

func (s *SQLite) loadWrappedKey() (wrappedKeyBundle, bool, error) {
	raw, found, err := readMeta(s.db, wrappedKeyMetaKey)
	if err != nil || !found {
		return wrappedKeyBundle{}, false, err
	}
	var bundle wrappedKeyBundle
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return wrappedKeyBundle{}, false, fmt.Errorf("load wrapped master key: unmarshal: %w", err)
	}
	return bundle, true, nil
}

func (s *SQLite) storeWrappedKey(bundle wrappedKeyBundle) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("store wrapped master key: marshal: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO keystore_meta(key, value) VALUES(?, ?)`, wrappedKeyMetaKey, string(data)); err != nil {
		return fmt.Errorf("store wrapped master key: %w", err)
	}
	return nil
}
