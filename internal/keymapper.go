package internal

import (
	"sort"
	"sync"

	"github.com/lychee-technology/formedit"
	"go.uber.org/zap"
)

// keyTable is the merged mapping of one collection.
type keyTable struct {
	forward map[string]string // wire -> canonical
	reverse map[string]string // canonical -> wire
}

// KeyMapper renames record keys between wire and canonical form. The base
// table applies to every collection; a collection table overrides it.
type KeyMapper struct {
	base      map[string]string
	overrides map[string]map[string]string

	mu     sync.RWMutex
	tables map[string]*keyTable
}

// NewKeyMapper builds a mapper and checks every configured table is injective.
func NewKeyMapper(cfg formedit.MappingConfig) (*KeyMapper, error) {
	m := &KeyMapper{
		base:      copyTable(cfg.Base),
		overrides: make(map[string]map[string]string, len(cfg.Collections)),
		tables:    make(map[string]*keyTable),
	}
	for name, table := range cfg.Collections {
		m.overrides[name] = copyTable(table)
	}

	if _, err := m.build(""); err != nil {
		return nil, err
	}
	for name := range m.overrides {
		t, err := m.build(name)
		if err != nil {
			return nil, err
		}
		m.tables[name] = t
	}
	return m, nil
}

// Known reports whether the collection has its own table.
func (m *KeyMapper) Known(collection string) bool {
	_, ok := m.overrides[collection]
	return ok
}

// Collections returns the names of collections with their own table, sorted.
func (m *KeyMapper) Collections() []string {
	names := make([]string, 0, len(m.overrides))
	for name := range m.overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize renames wire keys to canonical keys. Unmapped keys pass through.
func (m *KeyMapper) Normalize(collection string, raw formedit.Record) formedit.Record {
	return rename(raw, m.table(collection).forward)
}

// Denormalize renames canonical keys back to wire keys. Unmapped keys pass through.
func (m *KeyMapper) Denormalize(collection string, rec formedit.Record) formedit.Record {
	return rename(rec, m.table(collection).reverse)
}

// NormalizeMeta normalizes page metadata with the base table only.
func (m *KeyMapper) NormalizeMeta(raw formedit.Record) formedit.Record {
	return rename(raw, m.table("").forward)
}

func (m *KeyMapper) table(collection string) *keyTable {
	m.mu.RLock()
	t, ok := m.tables[collection]
	m.mu.RUnlock()
	if ok {
		return t
	}

	// collections without their own table share the base table, which was
	// validated at construction
	t, err := m.build(collection)
	if err != nil {
		zap.S().Warnw("key mapping rejected, using base table", "collection", collection, "error", err)
		t, _ = m.build("")
	}

	m.mu.Lock()
	m.tables[collection] = t
	m.mu.Unlock()
	return t
}

func (m *KeyMapper) build(collection string) (*keyTable, error) {
	forward := copyTable(m.base)
	for wire, canonical := range m.overrides[collection] {
		forward[wire] = canonical
	}

	reverse := make(map[string]string, len(forward))
	for wire, canonical := range forward {
		if other, dup := reverse[canonical]; dup {
			keys := []string{other, wire}
			sort.Strings(keys)
			return nil, formedit.NewMappingConflictError(collection, canonical, keys...)
		}
		reverse[canonical] = wire
	}
	return &keyTable{forward: forward, reverse: reverse}, nil
}

// rename applies a key table keeping key order and null marks. A key produced
// by the table wins over a pass-through key of the same name.
func rename(in formedit.Record, table map[string]string) formedit.Record {
	out := formedit.NewRecord()
	mapped := make(map[string]bool, len(table))
	for _, k := range in.Keys() {
		dst := k
		if target, ok := table[k]; ok {
			dst = target
			mapped[target] = true
		} else if mapped[k] {
			zap.S().Debugw("pass-through key shadowed by mapped key", "key", k)
			continue
		}
		if in.IsNull(k) {
			out.SetNull(dst)
		} else {
			out.Set(dst, in.Value(k))
		}
	}
	return out
}

func copyTable(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
