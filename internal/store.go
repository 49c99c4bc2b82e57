package internal

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/lychee-technology/formedit"
	"go.uber.org/zap"
)

// StoreEntry is one record of the active collection with its stable row key.
type StoreEntry struct {
	Key    uuid.UUID
	Record formedit.Record
}

// Draft reports whether the entry has never been persisted.
func (e StoreEntry) Draft() bool { return !e.Record.HasID() }

// RecordStore holds the normalized records of the active collection.
type RecordStore struct {
	transport formedit.Transport

	mu         sync.RWMutex
	collection string
	entries    []*StoreEntry
	selected   uuid.UUID
}

// NewRecordStore creates an empty store that deletes persisted records through transport.
func NewRecordStore(transport formedit.Transport) *RecordStore {
	return &RecordStore{transport: transport}
}

// Load replaces the active set and clears the selection. Repeated ids abort
// the load and leave the previous collection untouched.
func (s *RecordStore) Load(collection string, records []formedit.Record) error {
	if dups := duplicateIDs(records); len(dups) > 0 {
		zap.S().Warnw("duplicate ids in collection, load aborted", "collection", collection, "ids", dups)
		return formedit.NewDuplicateIDsError(collection, dups)
	}

	entries := make([]*StoreEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, &StoreEntry{Key: newRowKey(), Record: rec.Clone()})
	}

	s.mu.Lock()
	s.collection = collection
	s.entries = entries
	s.selected = uuid.Nil
	s.mu.Unlock()

	zap.S().Debugw("collection loaded", "collection", collection, "records", len(entries))
	return nil
}

// duplicateIDs returns every non-blank id seen more than once, each once, in first-seen order.
func duplicateIDs(records []formedit.Record) []string {
	seen := make(map[string]bool, len(records))
	dups := NewOrderedSet[string]()
	for _, rec := range records {
		id := rec.ID()
		if id == "" {
			continue
		}
		if seen[id] {
			dups.Add(id)
			continue
		}
		seen[id] = true
	}
	return dups.ToSlice()
}

func newRowKey() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Collection returns the name of the active collection.
func (s *RecordStore) Collection() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection
}

// Entries returns copies of the entries in list order.
func (s *RecordStore) Entries() []StoreEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StoreEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = StoreEntry{Key: e.Key, Record: e.Record.Clone()}
	}
	return out
}

// Records returns copies of the records in list order.
func (s *RecordStore) Records() []formedit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]formedit.Record, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Record.Clone()
	}
	return out
}

// Len returns the number of records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Get returns a copy of the record at key.
func (s *RecordStore) Get(key uuid.UUID) (formedit.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.find(key); e != nil {
		return e.Record.Clone(), true
	}
	return formedit.Record{}, false
}

// Find returns the row key of the record with the given id.
func (s *RecordStore) Find(id string) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if id != "" && e.Record.ID() == id {
			return e.Key, true
		}
	}
	return uuid.Nil, false
}

func (s *RecordStore) find(key uuid.UUID) *StoreEntry {
	for _, e := range s.entries {
		if e.Key == key {
			return e
		}
	}
	return nil
}

// Select sets the active selection. uuid.Nil clears it.
func (s *RecordStore) Select(key uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == uuid.Nil {
		s.selected = uuid.Nil
		return nil
	}
	if s.find(key) == nil {
		return formedit.NewRecordNotFoundError(s.collection, key.String())
	}
	s.selected = key
	return nil
}

// Selected returns the selected entry, if any.
func (s *RecordStore) Selected() (StoreEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == uuid.Nil {
		return StoreEntry{}, false
	}
	e := s.find(s.selected)
	if e == nil {
		return StoreEntry{}, false
	}
	return StoreEntry{Key: e.Key, Record: e.Record.Clone()}, true
}

// TemplateKeys returns the key list a new draft is seeded with: the first
// record's keys, or fallback when the collection is empty.
func (s *RecordStore) TemplateKeys(fallback []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) > 0 {
		return s.entries[0].Record.Keys()
	}
	out := make([]string, len(fallback))
	copy(out, fallback)
	return out
}

// CreateDraft prepends a blank record with templateKeys and selects it.
func (s *RecordStore) CreateDraft(templateKeys []string) uuid.UUID {
	draft := formedit.NewRecord()
	for _, k := range templateKeys {
		draft.Set(k, "")
	}
	entry := &StoreEntry{Key: newRowKey(), Record: draft}

	s.mu.Lock()
	s.entries = append([]*StoreEntry{entry}, s.entries...)
	s.selected = entry.Key
	collection := s.collection
	s.mu.Unlock()

	zap.S().Debugw("draft created", "collection", collection, "key", entry.Key)
	return entry.Key
}

// Update applies patch to the selected record in place.
func (s *RecordStore) Update(key uuid.UUID, patch formedit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == uuid.Nil || key != s.selected {
		return formedit.NewConflictError(formedit.ErrCodeNoSelection, "only the selected record can be updated")
	}
	e := s.find(key)
	if e == nil {
		return formedit.NewRecordNotFoundError(s.collection, key.String())
	}
	for _, k := range patch.Keys() {
		e.Record.Set(k, patch.Value(k))
	}
	return nil
}

// Remove deletes the record at key. Drafts are dropped locally; persisted
// records are deleted through the transport first and dropped only on success.
func (s *RecordStore) Remove(ctx context.Context, key uuid.UUID) error {
	s.mu.RLock()
	collection := s.collection
	e := s.find(key)
	var id string
	if e != nil {
		id = e.Record.ID()
	}
	s.mu.RUnlock()

	if key == uuid.Nil {
		return formedit.NewConflictError(formedit.ErrCodeNoSelection, "no record to remove")
	}
	if e == nil {
		return formedit.NewRecordNotFoundError(collection, key.String())
	}

	if id != "" {
		if s.transport == nil {
			return formedit.NewInternalError("no transport configured", nil)
		}
		if err := s.transport.DeleteRecord(ctx, collection, id); err != nil {
			zap.S().Warnw("delete failed", "collection", collection, "id", id, "error", err)
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.entries {
		if cur.Key == key {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	if s.selected == key {
		s.selected = uuid.Nil
	}
	zap.S().Debugw("record removed", "collection", collection, "id", id, "draft", id == "")
	return nil
}
