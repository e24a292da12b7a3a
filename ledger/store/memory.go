// Package store provides Store implementations that need no database.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/smartpasal/pos-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	docs      map[key]ledger.Document
	sequences map[string]int64
	closed    bool
}

type key struct {
	Kind ledger.Kind
	ID   string
}

func NewMemory() *Memory {
	return &Memory{
		docs:      make(map[key]ledger.Document),
		sequences: make(map[string]int64),
	}
}

func (m *Memory) Get(_ context.Context, kind ledger.Kind, id string) (ledger.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ledger.Document{}, ledger.ErrStoreUnavailable
	}
	doc, ok := m.docs[key{Kind: kind, ID: id}]
	if !ok {
		return ledger.Document{}, ledger.ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (m *Memory) Query(_ context.Context, q ledger.Query) ([]ledger.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ledger.ErrStoreUnavailable
	}
	var result []ledger.Document
	for _, doc := range m.docs {
		if q.Matches(doc) {
			result = append(result, cloneDoc(doc))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	return result, nil
}

// Commit applies writes atomically.
// Every write is checked against a staged view first; nothing is stored
// unless the whole batch passes.
func (m *Memory) Commit(_ context.Context, writes []ledger.Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ledger.ErrStoreUnavailable
	}

	staged := make(map[key]ledger.Document, len(writes))
	for _, w := range writes {
		k := key{Kind: w.Doc.Kind, ID: w.Doc.ID}

		var current *ledger.Document
		if doc, ok := staged[k]; ok {
			current = &doc
		} else if doc, ok := m.docs[k]; ok {
			current = &doc
		}

		next, changed, err := ledger.ApplyWrite(current, w)
		if err != nil {
			return err
		}
		if changed {
			staged[k] = next
		}
	}

	for k, doc := range staged {
		m.docs[k] = cloneDoc(doc)
	}
	return nil
}

func (m *Memory) NextSequence(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ledger.ErrStoreUnavailable
	}
	m.sequences[name]++
	return m.sequences[name], nil
}

// Ping fails once the store is closed.
func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ledger.ErrStoreUnavailable
	}
	return nil
}

// Close marks the store closed; later calls fail with ErrStoreUnavailable.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of stored documents of a kind.
func (m *Memory) Len(kind ledger.Kind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for k := range m.docs {
		if k.Kind == kind {
			n++
		}
	}
	return n
}

func cloneDoc(d ledger.Document) ledger.Document {
	d.Data = append([]byte(nil), d.Data...)
	if d.SyncedAt != nil {
		t := *d.SyncedAt
		d.SyncedAt = &t
	}
	return d
}
