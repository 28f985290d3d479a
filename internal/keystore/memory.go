package keystore

import (
	"bytes"
	"slices"
	"sync"
)

const DefaultAccessGroup = "default"

// Memory is an in-process keystore. Items are kept in insertion order so
// FindOne answers deterministically when several items match.
type Memory struct {
	mu           sync.Mutex
	defaultGroup string
	items        []memoryItem
}

type memoryItem struct {
	record
	data []byte
}

func NewMemory(defaultAccessGroup string) *Memory {
	return &Memory{defaultGroup: accessGroupOrDefault(defaultAccessGroup, DefaultAccessGroup)}
}

func (m *Memory) Add(item Item) Status {
	if st := validateItem(item); st != StatusSuccess {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec := record{
		class:          item.Class,
		account:        item.Account,
		accessGroup:    accessGroupOrDefault(item.AccessGroup, m.defaultGroup),
		synchronizable: item.Synchronizable,
	}
	for _, existing := range m.items {
		if existing.record == rec {
			return StatusDuplicateItem
		}
	}
	m.items = append(m.items, memoryItem{record: rec, data: bytes.Clone(item.Data)})
	return StatusSuccess
}

func (m *Memory) Delete(query Query) Status {
	if st := validateQuery(query); st != StatusSuccess {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.items)
	m.items = slices.DeleteFunc(m.items, func(it memoryItem) bool {
		return query.matches(it.record)
	})
	if len(m.items) == before {
		return StatusItemNotFound
	}
	return StatusSuccess
}

func (m *Memory) FindOne(query Query) ([]byte, Status) {
	if st := validateQuery(query); st != StatusSuccess {
		return nil, st
	}
	if query.MatchLimit != MatchOne {
		return nil, StatusParam
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, it := range m.items {
		if !query.matches(it.record) {
			continue
		}
		if !query.ReturnData {
			return nil, StatusSuccess
		}
		return bytes.Clone(it.data), StatusSuccess
	}
	return nil, StatusItemNotFound
}

// Len reports how many items are stored.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

var _ Client = (*Memory)(nil)
