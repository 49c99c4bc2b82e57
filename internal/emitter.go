package internal

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Events emitted to the rendering side.
const (
	EventCollectionLoaded = "collection:loaded"
	EventSelectionChanged = "selection:changed"
	EventRowUpdated       = "row:updated"
	EventNotice           = "notice"
)

// EventEmitter delivers view events to whatever draws the projections.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// RowUpdate is the payload of EventRowUpdated: one column of one list row changed.
type RowUpdate struct {
	Key   uuid.UUID `json:"key"`
	Field string    `json:"field"`
	Value string    `json:"value"`
}

// LogEmitter writes every event to the global logger at debug level.
type LogEmitter struct{}

func (LogEmitter) Emit(_ context.Context, event string, data any) {
	zap.S().Debugw("view event", "event", event, "data", data)
}
