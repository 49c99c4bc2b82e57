package formedit

import (
	"github.com/google/uuid"
)

// WidgetKind is the editing widget inferred for a field.
type WidgetKind string

const (
	WidgetText     WidgetKind = "text"
	WidgetNumber   WidgetKind = "number"
	WidgetToggle   WidgetKind = "toggle"
	WidgetDatetime WidgetKind = "datetime"
	WidgetSelect   WidgetKind = "select"
	WidgetTextarea WidgetKind = "textarea"
)

// FieldRule describes how one field of a collection is displayed and edited.
type FieldRule struct {
	Type     WidgetKind `json:"type"`
	ReadOnly bool       `json:"readOnly,omitempty"`
	Required bool       `json:"required,omitempty"`
	Options  []string   `json:"options,omitempty"`
}

// RuleSet maps canonical field names to their rules.
type RuleSet map[string]FieldRule

// Column is one slot of the column registry built when a collection loads.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// RowProjection is one list row, values in column order.
type RowProjection struct {
	Key      uuid.UUID `json:"key"`
	ID       string    `json:"id,omitempty"`
	Values   []string  `json:"values"`
	Selected bool      `json:"selected"`
	Draft    bool      `json:"draft,omitempty"`
}

// FieldProjection describes one field of the detail form.
type FieldProjection struct {
	Label    string     `json:"label"`
	Key      string     `json:"key"`
	Widget   WidgetKind `json:"widget"`
	Value    string     `json:"value"`
	ReadOnly bool       `json:"readOnly"`
	Required bool       `json:"required"`
	Options  []string   `json:"options,omitempty"`
	Invalid  bool       `json:"invalid,omitempty"`
}

// DetailProjection is the detail form of the selected record. Fields is empty
// when nothing is selected.
type DetailProjection struct {
	RowKey uuid.UUID         `json:"rowKey"`
	Fields []FieldProjection `json:"fields"`
	Dirty  bool              `json:"dirty"`
	Valid  bool              `json:"valid"`
}

// PageMeta carries the page-level metadata of a collection.
type PageMeta struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// NoticeLevel classifies a status message shown to the user.
type NoticeLevel string

const (
	NoticeNone    NoticeLevel = ""
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
)

// Notice is the status line of the editor.
type Notice struct {
	Level NoticeLevel `json:"level,omitempty"`
	Text  string      `json:"text,omitempty"`
}

// View bundles every projection the rendering side needs.
type View struct {
	Collection string           `json:"collection"`
	Page       PageMeta         `json:"page"`
	Columns    []Column         `json:"columns"`
	Rows       []RowProjection  `json:"rows"`
	Detail     DetailProjection `json:"detail"`
	Notice     Notice           `json:"notice"`
}

// ActionKind names the discard-causing actions guarded by a confirmation step.
type ActionKind string

const (
	ActionSave   ActionKind = "save"
	ActionDelete ActionKind = "delete"
	ActionReset  ActionKind = "reset"
	ActionClose  ActionKind = "close"
)

// OutcomeStatus is the result class of one editor event.
type OutcomeStatus string

const (
	// OutcomeApplied means the event ran to completion.
	OutcomeApplied OutcomeStatus = "applied"
	// OutcomeConfirmRequired means the event was held back by the unsaved-changes gate.
	OutcomeConfirmRequired OutcomeStatus = "confirm_required"
	// OutcomeBlocked means the event was refused without side effects.
	OutcomeBlocked OutcomeStatus = "blocked"
	// OutcomeFailed means a transport or integrity failure left the previous state in place.
	OutcomeFailed OutcomeStatus = "failed"
)

// Outcome reports how an editor event was handled.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Notice Notice        `json:"notice"`
	Err    error         `json:"-"`
}

// OK reports whether the event was applied.
func (o Outcome) OK() bool { return o.Status == OutcomeApplied }
