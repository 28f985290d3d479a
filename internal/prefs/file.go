package prefs

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
)

// File is a suite persisted as <dir>/<suite>.toml. The whole suite is held in
// memory and the file is rewritten atomically on every mutation.
type File struct {
	path string

	mu     sync.RWMutex
	values map[string][]byte
}

type suiteDocument struct {
	Values map[string]string `toml:"values"`
}

func OpenFile(dir, suite string) (*File, error) {
	if err := ValidateSuite(suite); err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, fmt.Errorf("open preference suite: empty directory")
	}

	f := &File{
		path:   filepath.Join(dir, suite+".toml"),
		values: map[string][]byte{},
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Path() string { return f.path }

func (f *File) Get(key string) ([]byte, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

func (f *File) Set(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.values[key]
	f.values[key] = bytes.Clone(value)
	if err := f.flush(); err != nil {
		if existed {
			f.values[key] = prev
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.values[key]
	if !existed {
		return nil
	}
	delete(f.values, key)
	if err := f.flush(); err != nil {
		f.values[key] = prev
		return err
	}
	return nil
}

// Clear empties the suite with a single rewrite of the file.
func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.values
	f.values = map[string][]byte{}
	if err := f.flush(); err != nil {
		f.values = prev
		return err
	}
	return nil
}

func (f *File) AllKeys() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.values))
}

func (f *File) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read preference suite %q: %w", f.path, err)
	}

	var doc suiteDocument
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse preference suite %q: %w", f.path, err)
	}
	for key, encoded := range doc.Values {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("parse preference suite %q: key %q: %w", f.path, key, err)
		}
		f.values[key] = raw
	}
	return nil
}

// flush must be called with mu held for writing.
func (f *File) flush() error {
	doc := suiteDocument{Values: make(map[string]string, len(f.values))}
	for key, raw := range f.values {
		doc.Values[key] = base64.StdEncoding.EncodeToString(raw)
	}
	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode preference suite: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("write preference suite: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write preference suite: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write preference suite: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write preference suite: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write preference suite: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("write preference suite: %w", err)
	}
	return nil
}

var _ Client = (*File)(nil)
