package internal

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/formedit"
	"go.uber.org/zap"
)

// ViewSynchronizer keeps the list rows and the detail form of the selected
// record consistent. It owns the column registry of the loaded collection,
// the detail values and the snapshot they are compared against.
type ViewSynchronizer struct {
	store   *RecordStore
	emitter EventEmitter

	columns   []formedit.Column
	index     map[string]int
	rules     formedit.RuleSet
	validator *FieldValidator

	detailKey uuid.UUID
	form      formedit.Record
	snapshot  formedit.Record
}

// NewViewSynchronizer creates a synchronizer over store. A nil emitter logs events.
func NewViewSynchronizer(store *RecordStore, emitter EventEmitter) *ViewSynchronizer {
	if emitter == nil {
		emitter = LogEmitter{}
	}
	return &ViewSynchronizer{
		store:   store,
		emitter: emitter,
		index:   map[string]int{},
		rules:   formedit.RuleSet{},
	}
}

// Rebuild builds the column registry from the first record of the store and
// clears the detail. Called once per collection load.
func (v *ViewSynchronizer) Rebuild(rules formedit.RuleSet) error {
	if rules == nil {
		rules = formedit.RuleSet{}
	}
	v.rules = rules
	var keys []string
	if entries := v.store.Entries(); len(entries) > 0 {
		keys = entries[0].Record.Keys()
	}
	if err := v.setColumns(keys); err != nil {
		return err
	}
	v.clearDetail()
	v.emit(EventCollectionLoaded, v.store.Collection())
	return nil
}

// EnsureColumns adopts keys as the column registry when the collection has none.
func (v *ViewSynchronizer) EnsureColumns(keys []string) error {
	if len(v.columns) > 0 {
		return nil
	}
	return v.setColumns(keys)
}

func (v *ViewSynchronizer) setColumns(keys []string) error {
	columns := make([]formedit.Column, 0, len(keys))
	index := make(map[string]int, len(keys))
	for _, k := range keys {
		if _, dup := index[k]; dup {
			continue
		}
		index[k] = len(columns)
		columns = append(columns, formedit.Column{Key: k, Label: FieldLabel(k)})
	}
	validator, err := NewFieldValidator(columns, v.rules)
	if err != nil {
		return formedit.NewInternalError("build field validator", err)
	}
	v.columns = columns
	v.index = index
	v.validator = validator
	return nil
}

// Columns returns the column registry.
func (v *ViewSynchronizer) Columns() []formedit.Column {
	out := make([]formedit.Column, len(v.columns))
	copy(out, v.columns)
	return out
}

// Rules returns the rule set the projections are rendered with.
func (v *ViewSynchronizer) Rules() formedit.RuleSet {
	return v.rules
}

// Validator returns the field validator of the current column registry.
func (v *ViewSynchronizer) Validator() *FieldValidator {
	return v.validator
}

// Rows projects every record of the store in list order.
func (v *ViewSynchronizer) Rows() []formedit.RowProjection {
	selected, _ := v.store.Selected()
	entries := v.store.Entries()
	rows := make([]formedit.RowProjection, 0, len(entries))
	for _, e := range entries {
		values := make([]string, len(v.columns))
		for i, col := range v.columns {
			values[i] = e.Record.Value(col.Key)
		}
		rows = append(rows, formedit.RowProjection{
			Key:      e.Key,
			ID:       e.Record.ID(),
			Values:   values,
			Selected: e.Key == selected.Key && selected.Key != uuid.Nil,
			Draft:    e.Draft(),
		})
	}
	return rows
}

// Select makes key the single selected record and populates the detail from
// it. uuid.Nil clears both.
func (v *ViewSynchronizer) Select(key uuid.UUID) error {
	if key == uuid.Nil {
		if err := v.store.Select(uuid.Nil); err != nil {
			return err
		}
		v.clearDetail()
		v.emit(EventSelectionChanged, uuid.Nil)
		return nil
	}

	if err := v.store.Select(key); err != nil {
		return err
	}
	entry, ok := v.store.Selected()
	if !ok {
		return formedit.NewRecordNotFoundError(v.store.Collection(), key.String())
	}

	form := formedit.NewRecord()
	for _, col := range v.columns {
		form.Set(col.Key, entry.Record.Value(col.Key))
	}
	v.detailKey = key
	v.form = form
	v.snapshot = form.Clone()
	v.emit(EventSelectionChanged, key)
	return nil
}

// SelectedKey returns the row key shown in the detail, or uuid.Nil.
func (v *ViewSynchronizer) SelectedKey() uuid.UUID {
	return v.detailKey
}

// Edit changes one field of the detail and mirrors it into the selected list
// row. Read-only fields are refused before anything is mirrored.
func (v *ViewSynchronizer) Edit(field, value string) error {
	if v.detailKey == uuid.Nil {
		return formedit.NewConflictError(formedit.ErrCodeNoSelection, "no record selected")
	}
	if _, ok := v.index[field]; !ok {
		return formedit.NewValidationError(formedit.ErrCodeInvalidFieldValue, field, "unknown field")
	}
	if RuleFor(v.rules, field).ReadOnly {
		return formedit.NewValidationError(formedit.ErrCodeReadOnlyField, field, "field is read-only")
	}

	v.form.Set(field, value)
	v.mirror(field, value)
	return nil
}

func (v *ViewSynchronizer) mirror(field, value string) {
	if err := v.store.Update(v.detailKey, formedit.NewRecord(field, value)); err != nil {
		zap.S().Warnw("mirror into list row failed", "field", field, "error", err)
		return
	}
	v.emit(EventRowUpdated, RowUpdate{Key: v.detailKey, Field: field, Value: value})
}

// Reset puts the snapshot values back into the detail and the list row.
func (v *ViewSynchronizer) Reset() {
	if v.detailKey == uuid.Nil {
		return
	}
	for _, k := range v.snapshot.Keys() {
		old := v.snapshot.Value(k)
		if v.form.Value(k) == old {
			continue
		}
		v.form.Set(k, old)
		v.mirror(k, old)
	}
	v.TakeSnapshot()
}

// TakeSnapshot captures the current detail values.
func (v *ViewSynchronizer) TakeSnapshot() {
	v.snapshot = v.form.Clone()
}

// Clear empties the detail and the selection.
func (v *ViewSynchronizer) Clear() {
	_ = v.store.Select(uuid.Nil)
	v.clearDetail()
	v.emit(EventSelectionChanged, uuid.Nil)
}

func (v *ViewSynchronizer) clearDetail() {
	v.detailKey = uuid.Nil
	v.form = formedit.NewRecord()
	v.snapshot = formedit.NewRecord()
}

// Dirty reports whether any detail value differs from the snapshot.
func (v *ViewSynchronizer) Dirty() bool {
	if v.detailKey == uuid.Nil {
		return false
	}
	for _, k := range v.form.Keys() {
		if v.form.Value(k) != v.snapshot.Value(k) {
			return true
		}
	}
	return v.form.Len() != v.snapshot.Len()
}

// InvalidFields lists editable detail fields whose values break their rule.
func (v *ViewSynchronizer) InvalidFields() []string {
	if v.detailKey == uuid.Nil || v.validator == nil {
		return nil
	}
	return v.validator.InvalidFields(v.form)
}

// Valid reports whether the detail can be saved as far as field rules go.
func (v *ViewSynchronizer) Valid() bool {
	return len(v.InvalidFields()) == 0
}

// FormValues returns a copy of the detail values.
func (v *ViewSynchronizer) FormValues() formedit.Record {
	return v.form.Clone()
}

// Payload returns the editable detail values, trimmed, in column order.
func (v *ViewSynchronizer) Payload() formedit.Record {
	payload := formedit.NewRecord()
	for _, col := range v.columns {
		if RuleFor(v.rules, col.Key).ReadOnly {
			continue
		}
		if val, ok := v.form.Get(col.Key); ok {
			payload.Set(col.Key, strings.TrimSpace(val))
		}
	}
	return payload
}

// Detail projects the detail form.
func (v *ViewSynchronizer) Detail() formedit.DetailProjection {
	detail := formedit.DetailProjection{RowKey: v.detailKey, Fields: []formedit.FieldProjection{}, Valid: true}
	if v.detailKey == uuid.Nil {
		return detail
	}

	invalid := make(map[string]bool)
	for _, k := range v.InvalidFields() {
		invalid[k] = true
	}
	for _, col := range v.columns {
		rule := RuleFor(v.rules, col.Key)
		value := v.form.Value(col.Key)
		if rule.Type == formedit.WidgetDatetime {
			value = formatDatetimeInput(value)
		}
		var options []string
		if rule.Type == formedit.WidgetSelect {
			options = append(options, rule.Options...)
		}
		detail.Fields = append(detail.Fields, formedit.FieldProjection{
			Label:    col.Label,
			Key:      col.Key,
			Widget:   rule.Type,
			Value:    value,
			ReadOnly: rule.ReadOnly,
			Required: rule.Required,
			Options:  options,
			Invalid:  invalid[col.Key],
		})
	}
	detail.Dirty = v.Dirty()
	detail.Valid = len(invalid) == 0
	return detail
}

// formatDatetimeInput renders a timestamp the way a datetime input expects it.
// Unparseable values are returned unchanged.
func formatDatetimeInput(value string) string {
	if value == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.UTC().Format("2006-01-02T15:04")
}

func (v *ViewSynchronizer) emit(event string, data any) {
	v.emitter.Emit(context.Background(), event, data)
}
