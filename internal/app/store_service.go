package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/amanthanvi/keystash/internal/storage"
)

// StoreService exposes a storage backend to the command line: text values,
// arbitrary JSON documents, removal and clearing.
type StoreService struct {
	name    string
	backend storage.Backend
}

func NewStoreService(name string, backend storage.Backend) *StoreService {
	return &StoreService{name: name, backend: backend}
}

func (s *StoreService) Name() string { return s.name }

func (s *StoreService) SetText(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := storage.Set(s.backend, key, value); err != nil {
		return fmt.Errorf("%s set %q: %w", s.name, key, err)
	}
	return nil
}

// SetJSON stores a JSON document, decoded first so the backend codec
// decides the stored representation. A document that is a bare string is
// stored as text, which GetJSON reads back as the same string.
func (s *StoreService) SetJSON(key string, document []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	var value any
	if err := json.Unmarshal(document, &value); err != nil {
		return fmt.Errorf("%w: value is not valid JSON: %v", ErrValidation, err)
	}
	if text, ok := value.(string); ok {
		return s.SetText(key, text)
	}
	if err := storage.Set(s.backend, key, value); err != nil {
		return fmt.Errorf("%s set %q: %w", s.name, key, err)
	}
	return nil
}

func (s *StoreService) GetText(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	value, found, err := storage.Get[string](s.backend, key)
	if err != nil {
		return "", fmt.Errorf("%s get %q: %w", s.name, key, err)
	}
	if !found {
		return "", fmt.Errorf("%w: %s %q", ErrNotFound, s.name, key)
	}
	return value, nil
}

func (s *StoreService) GetJSON(key string) (any, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	value, found, err := storage.Get[any](s.backend, key)
	if errors.Is(err, storage.ErrDecodingFailed) {
		// The secure store keeps strings as raw text, which no codec decodes.
		if text, ok, textErr := storage.Get[string](s.backend, key); textErr == nil && ok {
			return text, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s get %q: %w", s.name, key, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s %q", ErrNotFound, s.name, key)
	}
	return value, nil
}

func (s *StoreService) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.backend.Remove(key); err != nil {
		return fmt.Errorf("%s remove %q: %w", s.name, key, err)
	}
	return nil
}

func (s *StoreService) Clear() error {
	if err := s.backend.RemoveAll(); err != nil {
		return fmt.Errorf("%s clear: %w", s.name, err)
	}
	return nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: key is required", ErrValidation)
	}
	return nil
}
