package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/lychee-technology/formedit"
)

// Memory keeps collections in process. It backs tests and the CLI.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]formedit.Record
	meta        map[string]formedit.Record
}

// NewMemory creates an empty in-memory transport.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string][]formedit.Record),
		meta:        make(map[string]formedit.Record),
	}
}

// Seed appends records to collection.
func (m *Memory) Seed(collection string, records ...formedit.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.collections[collection] = append(m.collections[collection], r.Clone())
	}
}

// SetMeta sets the page fields returned next to the items of collection.
func (m *Memory) SetMeta(collection string, meta formedit.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[collection] = meta.Clone()
}

func (m *Memory) FetchCollection(_ context.Context, name string) (*formedit.CollectionPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.collections[name]
	items := make([]formedit.Record, len(stored))
	for i, r := range stored {
		items[i] = r.Clone()
	}
	return &formedit.CollectionPage{Meta: m.meta[name].Clone(), Items: items}, nil
}

func (m *Memory) CreateRecord(_ context.Context, name string, raw formedit.Record) (formedit.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := withID(raw, newRecordID())
	m.collections[name] = append(m.collections[name], created)
	return created.Clone(), nil
}

func (m *Memory) UpdateRecord(_ context.Context, name, id string, raw formedit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.collections[name] {
		if r.ID() != id {
			continue
		}
		for _, k := range raw.Keys() {
			if k == formedit.IDKey {
				continue
			}
			r.Set(k, raw.Value(k))
		}
		m.collections[name][i] = r
		return nil
	}
	return formedit.NewRecordNotFoundError(name, id)
}

func (m *Memory) DeleteRecord(_ context.Context, name, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.collections[name]
	for i, r := range records {
		if r.ID() == id {
			m.collections[name] = append(records[:i:i], records[i+1:]...)
			return nil
		}
	}
	return formedit.NewRecordNotFoundError(name, id)
}

func newRecordID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// withID returns raw with id as its first key, replacing any id it carries.
func withID(raw formedit.Record, id string) formedit.Record {
	out := formedit.NewRecord(formedit.IDKey, id)
	for _, k := range raw.Keys() {
		if k == formedit.IDKey {
			continue
		}
		out.Set(k, raw.Value(k))
	}
	return out
}
