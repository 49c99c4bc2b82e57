package internal

import (
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/formedit"
)

// RuleFor returns the inferred rule of key, or a fallback for keys the
// inference never saw: identity and audit-stamp keys are read-only text,
// everything else is plain text.
func RuleFor(rules formedit.RuleSet, key string) formedit.FieldRule {
	if rule, ok := rules[key]; ok {
		return rule
	}
	if key == formedit.IDKey || stampKeyPattern.MatchString(key) {
		return formedit.FieldRule{Type: formedit.WidgetText, ReadOnly: true}
	}
	return formedit.FieldRule{Type: formedit.WidgetText}
}

// BuildJSONSchema exports the rules of a collection as an object schema with
// one string property per column.
func BuildJSONSchema(collection string, columns []formedit.Column, rules formedit.RuleSet) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Title:      collection,
		Properties: make(map[string]*jsonschema.Schema, len(columns)),
	}
	for _, col := range columns {
		rule := RuleFor(rules, col.Key)
		schema.Properties[col.Key] = propertySchema(col.Label, rule)
		if rule.Required && !rule.ReadOnly {
			schema.Required = append(schema.Required, col.Key)
		}
	}
	return schema
}

func propertySchema(label string, rule formedit.FieldRule) *jsonschema.Schema {
	prop := &jsonschema.Schema{Type: "string", Title: label}
	if rule.ReadOnly {
		prop.ReadOnly = true
		if rule.Type == formedit.WidgetDatetime {
			prop.Format = "date-time"
		}
		return prop
	}

	switch rule.Type {
	case formedit.WidgetToggle:
		prop.Enum = enumValues([]string{"true", "false"}, rule.Required)
	case formedit.WidgetSelect:
		prop.Enum = enumValues(rule.Options, rule.Required)
	case formedit.WidgetNumber:
		if rule.Required {
			prop.Pattern = numericPattern
		} else {
			prop.Pattern = `^$|` + numericPattern
		}
	case formedit.WidgetDatetime:
		prop.Format = "date-time"
		if rule.Required {
			prop.Pattern = `\S`
		}
	default:
		if rule.Required {
			prop.Pattern = `\S`
		}
	}
	return prop
}

func enumValues(options []string, required bool) []any {
	out := make([]any, 0, len(options)+1)
	seenBlank := false
	for _, o := range options {
		if o == "" {
			seenBlank = true
		}
		out = append(out, o)
	}
	if !required && !seenBlank {
		out = append(out, "")
	}
	return out
}

// FieldValidator checks field values against the exported schema of a collection.
type FieldValidator struct {
	record *jsonschema.Resolved
	fields map[string]*jsonschema.Resolved
}

// NewFieldValidator resolves the collection schema and one schema per editable field.
func NewFieldValidator(columns []formedit.Column, rules formedit.RuleSet) (*FieldValidator, error) {
	root := BuildJSONSchema("", columns, rules)
	resolved, err := root.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve JSON schema: %w", err)
	}

	v := &FieldValidator{record: resolved, fields: make(map[string]*jsonschema.Resolved, len(columns))}
	for _, col := range columns {
		rule := RuleFor(rules, col.Key)
		if rule.ReadOnly {
			continue
		}
		fieldResolved, err := propertySchema(col.Label, rule).Resolve(&jsonschema.ResolveOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve schema of field %s: %w", col.Key, err)
		}
		v.fields[col.Key] = fieldResolved
	}
	return v, nil
}

// ValidField reports whether value satisfies the rule of key. Read-only and
// unknown keys are always valid.
func (v *FieldValidator) ValidField(key, value string) bool {
	resolved, ok := v.fields[key]
	if !ok {
		return true
	}
	return resolved.Validate(strings.TrimSpace(value)) == nil
}

// InvalidFields returns the editable keys of rec whose values fail validation, in record order.
func (v *FieldValidator) InvalidFields(rec formedit.Record) []string {
	var invalid []string
	for _, k := range rec.Keys() {
		if !v.ValidField(k, rec.Value(k)) {
			invalid = append(invalid, k)
		}
	}
	return invalid
}

// ValidateRecord validates a whole record, including missing required keys.
func (v *FieldValidator) ValidateRecord(rec formedit.Record) error {
	instance := make(map[string]any, rec.Len())
	for _, k := range rec.Keys() {
		instance[k] = strings.TrimSpace(rec.Value(k))
	}
	if err := v.record.Validate(instance); err != nil {
		return formedit.NewValidationError(formedit.ErrCodeInvalidFieldValue, "", "record does not match collection schema").WithCause(err)
	}
	return nil
}
