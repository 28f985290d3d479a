package storage

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/amanthanvi/keystash/internal/codec"
	"github.com/amanthanvi/keystash/internal/prefs"
)

type PreferenceOptions struct {
	// Codec encodes every value, strings included. Defaults to JSON.
	Codec  codec.Codec
	Logger *slog.Logger
	// IgnoreMissing makes Remove of an absent key and RemoveAll of an empty
	// suite succeed instead of returning ErrRemovalFailed.
	IgnoreMissing bool
}

// PreferenceStorage is a Backend over a preference suite.
type PreferenceStorage struct {
	client prefs.Client
	opts   PreferenceOptions
	codec  codec.Codec
	logger *slog.Logger

	mu sync.Mutex
}

func NewPreferenceStorage(client prefs.Client, opts PreferenceOptions) *PreferenceStorage {
	return &PreferenceStorage{
		client: client,
		opts:   opts,
		codec:  codecOrDefault(opts.Codec),
		logger: loggerOrDiscard(opts.Logger).With("backend", "preferences"),
	}
}

func (p *PreferenceStorage) Set(key string, value any) error {
	if err := validateKey(key); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := p.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	if err := p.client.Set(key, data); err != nil {
		return fmt.Errorf("set preference %q: %w", key, err)
	}
	return nil
}

func (p *PreferenceStorage) Get(key string, dst any) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if err := validateDestination(dst); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	data, ok := p.client.Get(key)
	if !ok {
		return false, nil
	}
	if err := p.codec.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("%w: key %q: %v", ErrDecodingFailed, key, err)
	}
	return true, nil
}

func (p *PreferenceStorage) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.client.Get(key); !ok {
		if p.opts.IgnoreMissing {
			return nil
		}
		return &RemovalError{Detail: fmt.Sprintf("key %q not found in preference suite", key)}
	}
	if err := p.client.Remove(key); err != nil {
		return &RemovalError{Detail: fmt.Sprintf("remove key %q: %v", key, err)}
	}
	return nil
}

func (p *PreferenceStorage) RemoveAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := p.client.AllKeys()
	if len(keys) == 0 {
		if p.opts.IgnoreMissing {
			return nil
		}
		return &RemovalError{Detail: "preference suite is already empty"}
	}
	if err := p.client.Clear(); err != nil {
		return &RemovalError{Detail: fmt.Sprintf("clear preference suite: %v", err)}
	}
	p.logger.Debug("preference suite cleared", "count", len(keys))
	return nil
}

var _ Backend = (*PreferenceStorage)(nil)
