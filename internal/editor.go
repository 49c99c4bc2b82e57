package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/lychee-technology/formedit"
	"go.uber.org/zap"
)

// Status texts shown to the user.
const (
	NoticeNothingToSave   = "Nothing to save or reset."
	NoticeCompleteFields  = "Please complete required fields."
	NoticeSaveFailed      = "Error saving record."
	NoticeDeleteFailed    = "Error deleting record."
	NoticeUnsavedChanges  = "Unsaved changes. Repeat to discard."
	NoticeBusy            = "Please wait for the current operation to finish."
	NoticeRecordDeleted   = "Record deleted."
	noticeSavedFormat     = "Saved %s"
	noticeLoadFailed      = "Error loading %s."
	noticeDuplicateFormat = "Duplicate IDs: %s"
)

// Session is one editing session: the active collection, its records and the
// projections drawn from them. Every exported method is one event and runs to
// completion; network calls happen outside the session lock while the
// in-flight guard refuses other mutating events.
type Session struct {
	cfg       *formedit.Config
	transport formedit.Transport
	mapper    *KeyMapper
	rules     *RuleCache
	store     *RecordStore
	sync      *ViewSynchronizer
	gate      *ConfirmGate
	emitter   EventEmitter
	inflight  inflightGuard

	mu     sync.Mutex
	page   formedit.PageMeta
	notice formedit.Notice
	now    func() time.Time
}

// NewSession wires a session over transport.
func NewSession(cfg *formedit.Config, transport formedit.Transport, emitter EventEmitter) (*Session, error) {
	if cfg == nil {
		cfg = formedit.DefaultConfig()
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if emitter == nil {
		emitter = LogEmitter{}
	}
	mapper, err := NewKeyMapper(cfg.Mapping)
	if err != nil {
		return nil, err
	}
	store := NewRecordStore(transport)
	return &Session{
		cfg:       cfg,
		transport: transport,
		mapper:    mapper,
		rules:     NewRuleCache(NewRuleInferencer(cfg.Inference)),
		store:     store,
		sync:      NewViewSynchronizer(store, emitter),
		gate:      NewConfirmGate(),
		emitter:   emitter,
		now:       time.Now,
	}, nil
}

// Mapper returns the key mapper of the session.
func (s *Session) Mapper() *KeyMapper { return s.mapper }

// Collections returns the navigable collection names.
func (s *Session) Collections() []string {
	if len(s.cfg.Mapping.Endpoints) > 0 {
		out := make([]string, len(s.cfg.Mapping.Endpoints))
		copy(out, s.cfg.Mapping.Endpoints)
		return out
	}
	return s.mapper.Collections()
}

func (s *Session) knownCollection(name string) bool {
	if s.mapper.Known(name) {
		return true
	}
	for _, ep := range s.cfg.Mapping.Endpoints {
		if ep == name {
			return true
		}
	}
	return false
}

// Open switches to collection, fetching and loading its records.
func (s *Session) Open(ctx context.Context, collection string) formedit.Outcome {
	s.mu.Lock()
	if !s.knownCollection(collection) {
		defer s.mu.Unlock()
		return s.blocked(formedit.NewUnknownCollectionError(collection), formedit.NoticeWarning, fmt.Sprintf(noticeLoadFailed, collection))
	}
	if out, busy := s.refuseIfBusy(); busy {
		s.mu.Unlock()
		return out
	}
	if !s.gate.Admit(formedit.ActionSave, s.sync.Dirty()) {
		defer s.mu.Unlock()
		return s.confirmRequired(formedit.ActionSave)
	}
	opKey := "collection:" + collection
	s.inflight.TryLock(opKey)
	s.mu.Unlock()
	defer s.inflight.Unlock(opKey)

	meta, records, err := s.fetch(ctx, collection)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return s.failed(err, fmt.Sprintf(noticeLoadFailed, collection))
	}
	if err := s.apply(collection, meta, records); err != nil {
		return s.loadFailure(collection, err)
	}
	s.notice = formedit.Notice{}
	return formedit.Outcome{Status: formedit.OutcomeApplied}
}

// fetch reads a collection and normalizes it. It does not touch session state.
func (s *Session) fetch(ctx context.Context, collection string) (formedit.Record, []formedit.Record, error) {
	page, err := s.transport.FetchCollection(ctx, collection)
	if err != nil {
		return formedit.Record{}, nil, asTransportError(collection, "fetch collection", err)
	}
	records := make([]formedit.Record, 0, len(page.Items))
	for _, raw := range page.Items {
		records = append(records, s.mapper.Normalize(collection, raw))
	}
	return s.mapper.NormalizeMeta(page.Meta), records, nil
}

// apply loads normalized records into the store and rebuilds the projections.
// Caller holds s.mu.
func (s *Session) apply(collection string, meta formedit.Record, records []formedit.Record) error {
	if err := s.store.Load(collection, records); err != nil {
		return err
	}
	rules := s.rules.Rules(collection, records)
	if err := s.sync.Rebuild(rules); err != nil {
		return err
	}
	s.page = formedit.PageMeta{
		Title:       meta.Value("title"),
		Description: meta.Value("description"),
	}
	zap.S().Infow("collection opened", "collection", collection, "records", len(records), "fields", len(rules))
	return nil
}

func (s *Session) loadFailure(collection string, err error) formedit.Outcome {
	if ids := formedit.DuplicateIDs(err); len(ids) > 0 {
		return s.failed(err, fmt.Sprintf(noticeDuplicateFormat, strings.Join(ids, ", ")))
	}
	return s.failed(err, fmt.Sprintf(noticeLoadFailed, collection))
}

// Select shows the record at key in the detail.
func (s *Session) Select(key uuid.UUID) formedit.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out, busy := s.refuseIfBusy(); busy {
		return out
	}
	if err := s.sync.Select(key); err != nil {
		return s.blocked(err, formedit.NoticeNone, "")
	}
	return formedit.Outcome{Status: formedit.OutcomeApplied}
}

// SelectID selects the record with the given id.
func (s *Session) SelectID(id string) formedit.Outcome {
	key, ok := s.store.Find(id)
	if !ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.blocked(formedit.NewRecordNotFoundError(s.store.Collection(), id), formedit.NoticeNone, "")
	}
	return s.Select(key)
}

// ClearSelection deselects without any confirmation.
func (s *Session) ClearSelection() formedit.Outcome {
	return s.Select(uuid.Nil)
}

// ToggleRow selects key, or deselects it when it is already selected.
func (s *Session) ToggleRow(key uuid.UUID) formedit.Outcome {
	s.mu.Lock()
	selected := s.sync.SelectedKey()
	s.mu.Unlock()
	if key == selected {
		return s.Select(uuid.Nil)
	}
	return s.Select(key)
}

// Edit changes one field of the selected record.
func (s *Session) Edit(field, value string) formedit.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out, busy := s.refuseIfBusy(); busy {
		return out
	}
	if err := s.sync.Edit(field, value); err != nil {
		return s.blocked(err, formedit.NoticeNone, "")
	}
	return formedit.Outcome{Status: formedit.OutcomeApplied}
}

// NewDraft starts a blank record at the top of the list and selects it.
func (s *Session) NewDraft() formedit.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out, busy := s.refuseIfBusy(); busy {
		return out
	}
	if !s.gate.Admit(formedit.ActionSave, s.sync.Dirty()) {
		return s.confirmRequired(formedit.ActionSave)
	}
	keys := s.store.TemplateKeys(s.cfg.Editor.DraftFallbackKeys)
	if err := s.sync.EnsureColumns(keys); err != nil {
		return s.failed(err, "")
	}
	key := s.store.CreateDraft(keys)
	if err := s.sync.Select(key); err != nil {
		return s.failed(err, "")
	}
	s.notice = formedit.Notice{}
	return formedit.Outcome{Status: formedit.OutcomeApplied}
}

// Save persists the selected record: an update when it has an id, a create otherwise.
func (s *Session) Save(ctx context.Context) formedit.Outcome {
	s.mu.Lock()
	if out, busy := s.refuseIfBusy(); busy {
		s.mu.Unlock()
		return out
	}
	entry, selected := s.store.Selected()
	if !selected || !s.sync.Dirty() {
		defer s.mu.Unlock()
		return s.blocked(nil, formedit.NoticeInfo, NoticeNothingToSave)
	}
	if invalid := s.sync.InvalidFields(); len(invalid) > 0 {
		defer s.mu.Unlock()
		err := formedit.NewValidationError(formedit.ErrCodeRequiredFieldMissing, invalid[0], "fields need attention").
			WithDetail("fields", invalid)
		return s.blocked(err, formedit.NoticeWarning, NoticeCompleteFields)
	}

	collection := s.store.Collection()
	raw := s.mapper.Denormalize(collection, s.sync.Payload())
	id := entry.Record.ID()
	opKey := entry.Key.String()
	s.inflight.TryLock(opKey)
	s.mu.Unlock()
	defer s.inflight.Unlock(opKey)

	var err error
	savedID := id
	if id != "" {
		err = s.transport.UpdateRecord(ctx, collection, id, raw)
	} else {
		var created formedit.Record
		created, err = s.transport.CreateRecord(ctx, collection, raw)
		if err == nil {
			savedID = s.mapper.Normalize(collection, created).ID()
		}
	}
	if err != nil {
		zap.S().Warnw("save failed", "collection", collection, "id", id, "error", err)
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.failed(asTransportError(collection, "save record", err), NoticeSaveFailed)
	}
	zap.S().Infow("record saved", "collection", collection, "id", savedID, "created", id == "")

	if s.cfg.Editor.ReloadAfterWrite {
		meta, records, ferr := s.fetch(ctx, collection)
		s.mu.Lock()
		defer s.mu.Unlock()
		if ferr == nil {
			ferr = s.apply(collection, meta, records)
		}
		if ferr == nil {
			if key, ok := s.store.Find(savedID); ok {
				_ = s.sync.Select(key)
			}
			return s.applied(formedit.NoticeSuccess, fmt.Sprintf(noticeSavedFormat, s.now().Format("15:04:05")))
		}
		zap.S().Warnw("reload after save failed, keeping local state", "collection", collection, "error", ferr)
		s.commitLocally(entry.Key, savedID)
		return s.applied(formedit.NoticeSuccess, fmt.Sprintf(noticeSavedFormat, s.now().Format("15:04:05")))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitLocally(entry.Key, savedID)
	return s.applied(formedit.NoticeSuccess, fmt.Sprintf(noticeSavedFormat, s.now().Format("15:04:05")))
}

// commitLocally records a successful save without a reload. Caller holds s.mu.
func (s *Session) commitLocally(key uuid.UUID, savedID string) {
	if s.sync.SelectedKey() != key {
		return
	}
	if rec, ok := s.store.Get(key); ok && !rec.HasID() && savedID != "" {
		if err := s.store.Update(key, formedit.NewRecord(formedit.IDKey, savedID)); err == nil {
			_ = s.sync.Select(key)
		}
	}
	s.sync.TakeSnapshot()
}

// Reset discards the edits of the selected record.
func (s *Session) Reset() formedit.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out, busy := s.refuseIfBusy(); busy {
		return out
	}
	if !s.sync.Dirty() {
		return s.blocked(nil, formedit.NoticeInfo, NoticeNothingToSave)
	}
	if !s.gate.Admit(formedit.ActionReset, true) {
		return s.confirmRequired(formedit.ActionReset)
	}
	s.sync.Reset()
	return s.applied(formedit.NoticeNone, "")
}

// Delete removes the selected record. Drafts are dropped locally.
func (s *Session) Delete(ctx context.Context) formedit.Outcome {
	s.mu.Lock()
	if out, busy := s.refuseIfBusy(); busy {
		s.mu.Unlock()
		return out
	}
	entry, ok := s.store.Selected()
	if !ok {
		defer s.mu.Unlock()
		return s.blocked(formedit.NewConflictError(formedit.ErrCodeNoSelection, "no record selected"), formedit.NoticeNone, "")
	}
	if !s.gate.Admit(formedit.ActionDelete, s.sync.Dirty()) {
		defer s.mu.Unlock()
		return s.confirmRequired(formedit.ActionDelete)
	}

	if entry.Draft() {
		defer s.mu.Unlock()
		if err := s.store.Remove(ctx, entry.Key); err != nil {
			return s.failed(err, NoticeDeleteFailed)
		}
		s.sync.Clear()
		return s.applied(formedit.NoticeNone, "")
	}

	collection := s.store.Collection()
	opKey := entry.Key.String()
	s.inflight.TryLock(opKey)
	s.mu.Unlock()
	defer s.inflight.Unlock(opKey)

	if err := s.store.Remove(ctx, entry.Key); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.failed(asTransportError(collection, "delete record", err), NoticeDeleteFailed)
	}
	zap.S().Infow("record deleted", "collection", collection, "id", entry.Record.ID())

	var meta formedit.Record
	var records []formedit.Record
	var ferr error
	if s.cfg.Editor.ReloadAfterWrite {
		meta, records, ferr = s.fetch(ctx, collection)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sync.Clear()
	if s.cfg.Editor.ReloadAfterWrite {
		if ferr == nil {
			ferr = s.apply(collection, meta, records)
		}
		if ferr != nil {
			zap.S().Warnw("reload after delete failed, keeping local state", "collection", collection, "error", ferr)
		}
	}
	return s.applied(formedit.NoticeInfo, NoticeRecordDeleted)
}

// Close clears the detail after confirmation when there are unsaved changes.
func (s *Session) Close() formedit.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out, busy := s.refuseIfBusy(); busy {
		return out
	}
	if !s.gate.Admit(formedit.ActionClose, s.sync.Dirty()) {
		return s.confirmRequired(formedit.ActionClose)
	}
	s.sync.Clear()
	return s.applied(formedit.NoticeNone, "")
}

// View returns every projection of the session.
func (s *Session) View() formedit.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return formedit.View{
		Collection: s.store.Collection(),
		Page:       s.page,
		Columns:    s.sync.Columns(),
		Rows:       s.sync.Rows(),
		Detail:     s.sync.Detail(),
		Notice:     s.notice,
	}
}

// Rules returns the rule set of the active collection.
func (s *Session) Rules() formedit.RuleSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync.Rules()
}

// Schema exports the active collection's rules as a JSON Schema.
func (s *Session) Schema() *jsonschema.Schema {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildJSONSchema(s.store.Collection(), s.sync.Columns(), s.sync.Rules())
}

// HasUnsavedChanges reports whether the detail differs from its snapshot.
func (s *Session) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync.Dirty()
}

// Drain waits for in-flight network operations to finish.
func (s *Session) Drain(ctx context.Context) {
	s.inflight.WaitAll(ctx)
}

// refuseIfBusy refuses a mutating event while a network operation is in flight. Caller holds s.mu.
func (s *Session) refuseIfBusy() (formedit.Outcome, bool) {
	if !s.inflight.Busy() {
		return formedit.Outcome{}, false
	}
	err := formedit.NewConflictError(formedit.ErrCodeOperationInFlight, "an operation is already in flight")
	return s.blocked(err, formedit.NoticeWarning, NoticeBusy), true
}

func (s *Session) setNotice(n formedit.Notice) {
	s.notice = n
	if n.Text != "" {
		s.emitter.Emit(context.Background(), EventNotice, n)
	}
}

func (s *Session) applied(level formedit.NoticeLevel, text string) formedit.Outcome {
	s.setNotice(formedit.Notice{Level: level, Text: text})
	return formedit.Outcome{Status: formedit.OutcomeApplied, Notice: s.notice}
}

func (s *Session) blocked(err error, level formedit.NoticeLevel, text string) formedit.Outcome {
	notice := formedit.Notice{Level: level, Text: text}
	if text != "" {
		s.setNotice(notice)
	}
	return formedit.Outcome{Status: formedit.OutcomeBlocked, Notice: notice, Err: err}
}

func (s *Session) failed(err error, text string) formedit.Outcome {
	notice := formedit.Notice{Level: formedit.NoticeWarning, Text: text}
	if text != "" {
		s.setNotice(notice)
	}
	return formedit.Outcome{Status: formedit.OutcomeFailed, Notice: notice, Err: err}
}

func (s *Session) confirmRequired(kind formedit.ActionKind) formedit.Outcome {
	s.setNotice(formedit.Notice{Level: formedit.NoticeWarning, Text: NoticeUnsavedChanges})
	err := formedit.NewConflictError(formedit.ErrCodeUnsavedChanges, "unsaved changes").WithDetail("action", string(kind))
	return formedit.Outcome{Status: formedit.OutcomeConfirmRequired, Notice: s.notice, Err: err}
}

func asTransportError(collection, message string, err error) error {
	var ee *formedit.EditorError
	if errors.As(err, &ee) {
		return err
	}
	return formedit.NewTransportError(collection, message, err)
}
