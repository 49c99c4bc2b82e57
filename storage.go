package formedit

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
)

// Transport moves wire-format records between the editor and a backing store.
// Records passed in and out use wire key names.
type Transport interface {
	FetchCollection(ctx context.Context, name string) (*CollectionPage, error)
	// CreateRecord returns the stored record when the backend echoes it, or an empty record.
	CreateRecord(ctx context.Context, name string, raw Record) (Record, error)
	UpdateRecord(ctx context.Context, name, id string, raw Record) error
	DeleteRecord(ctx context.Context, name, id string) error
}

// Editor is one editing session over a single active collection. Every
// method is a discrete event that runs to completion.
type Editor interface {
	Open(ctx context.Context, collection string) Outcome
	Select(key uuid.UUID) Outcome
	SelectID(id string) Outcome
	ClearSelection() Outcome
	ToggleRow(key uuid.UUID) Outcome
	Edit(field, value string) Outcome
	NewDraft() Outcome
	Save(ctx context.Context) Outcome
	Reset() Outcome
	Delete(ctx context.Context) Outcome
	Close() Outcome

	View() View
	Rules() RuleSet
	Schema() *jsonschema.Schema
	HasUnsavedChanges() bool
	Collections() []string

	// Drain blocks until in-flight network operations finish or ctx is done.
	Drain(ctx context.Context)
}
