package formedit

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeTransport     ErrorType = "transport"
	ErrorTypeIntegrity     ErrorType = "integrity"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
)

// EditorError is the error value returned by every component of the editor core.
type EditorError struct {
	Type       ErrorType      `json:"type"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Collection string         `json:"collection,omitempty"`
	RecordID   string         `json:"recordId,omitempty"`
	Field      string         `json:"field,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

func (e *EditorError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	if e.Collection != "" && e.RecordID != "" {
		return fmt.Sprintf("[%s:%s] record %s/%s: %s", e.Type, e.Code, e.Collection, e.RecordID, msg)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, msg)
	}
	if e.Collection != "" {
		return fmt.Sprintf("[%s:%s] collection %s: %s", e.Type, e.Code, e.Collection, msg)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, msg)
}

func (e *EditorError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to an EditorError
func (e *EditorError) WithDetails(details map[string]any) *EditorError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to an EditorError
func (e *EditorError) WithDetail(key string, value any) *EditorError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to an EditorError
func (e *EditorError) WithCause(cause error) *EditorError {
	e.Cause = cause
	return e
}

// WithField adds field context to an EditorError
func (e *EditorError) WithField(field string) *EditorError {
	e.Field = field
	return e
}

// WithRecord adds collection and record context to an EditorError
func (e *EditorError) WithRecord(collection, id string) *EditorError {
	e.Collection = collection
	e.RecordID = id
	return e
}

// Error codes
const (
	ErrCodeTransportFailed      = "TRANSPORT_FAILED"
	ErrCodeUnexpectedStatus     = "UNEXPECTED_STATUS"
	ErrCodeCircuitOpen          = "CIRCUIT_OPEN"
	ErrCodeDuplicateIDs         = "DUPLICATE_IDS"
	ErrCodeRequiredFieldMissing = "REQUIRED_FIELD_MISSING"
	ErrCodeInvalidFieldValue    = "INVALID_FIELD_VALUE"
	ErrCodeReadOnlyField        = "READ_ONLY_FIELD"
	ErrCodeNoSelection          = "NO_SELECTION"
	ErrCodeRecordNotFound       = "RECORD_NOT_FOUND"
	ErrCodeUnsavedChanges       = "UNSAVED_CHANGES"
	ErrCodeOperationInFlight    = "OPERATION_IN_FLIGHT"
	ErrCodeUnknownCollection    = "UNKNOWN_COLLECTION"
	ErrCodeMappingConflict      = "MAPPING_CONFLICT"
	ErrCodeInvalidPayload       = "INVALID_PAYLOAD"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// NewEditorError creates a new EditorError
func NewEditorError(errorType ErrorType, code, message string) *EditorError {
	return &EditorError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewTransportError wraps a failure reported by a transport.
func NewTransportError(collection, message string, cause error) *EditorError {
	return &EditorError{
		Type:       ErrorTypeTransport,
		Code:       ErrCodeTransportFailed,
		Message:    message,
		Collection: collection,
		Cause:      cause,
		Details:    make(map[string]any),
	}
}

// NewStatusError reports a non-success response from a remote collection.
func NewStatusError(collection string, status int) *EditorError {
	return &EditorError{
		Type:       ErrorTypeTransport,
		Code:       ErrCodeUnexpectedStatus,
		Message:    fmt.Sprintf("STATUS %d", status),
		Collection: collection,
		Details: map[string]any{
			"status": status,
		},
	}
}

// NewDuplicateIDsError reports a load aborted because identity keys repeat.
func NewDuplicateIDsError(collection string, ids []string) *EditorError {
	return &EditorError{
		Type:       ErrorTypeIntegrity,
		Code:       ErrCodeDuplicateIDs,
		Message:    fmt.Sprintf("duplicate ids: %d", len(ids)),
		Collection: collection,
		Details: map[string]any{
			"ids": ids,
		},
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, field, message string) *EditorError {
	return &EditorError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Field:   field,
		Details: make(map[string]any),
	}
}

// NewConflictError creates a flow-control conflict, such as unsaved changes or an operation in flight.
func NewConflictError(code, message string) *EditorError {
	return &EditorError{
		Type:    ErrorTypeConflict,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewRecordNotFoundError creates a record not found error
func NewRecordNotFoundError(collection, id string) *EditorError {
	return &EditorError{
		Type:       ErrorTypeNotFound,
		Code:       ErrCodeRecordNotFound,
		Message:    "record not found",
		Collection: collection,
		RecordID:   id,
		Details:    make(map[string]any),
	}
}

// NewUnknownCollectionError creates an error for a collection that is not configured.
func NewUnknownCollectionError(collection string) *EditorError {
	return &EditorError{
		Type:       ErrorTypeNotFound,
		Code:       ErrCodeUnknownCollection,
		Message:    fmt.Sprintf("collection '%s' is not configured", collection),
		Collection: collection,
		Details:    make(map[string]any),
	}
}

// NewMappingConflictError reports two wire keys normalizing to the same canonical key.
func NewMappingConflictError(collection, canonical string, wireKeys ...string) *EditorError {
	return &EditorError{
		Type:       ErrorTypeConfiguration,
		Code:       ErrCodeMappingConflict,
		Message:    fmt.Sprintf("canonical key '%s' is mapped from more than one wire key", canonical),
		Collection: collection,
		Field:      canonical,
		Details: map[string]any{
			"wireKeys": wireKeys,
		},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *EditorError {
	return &EditorError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

func hasType(err error, t ErrorType) bool {
	var ee *EditorError
	if errors.As(err, &ee) {
		return ee.Type == t
	}
	return false
}

// HasCode reports whether err is an EditorError with the given code.
func HasCode(err error, code string) bool {
	var ee *EditorError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsTransportError checks if an error is a transport failure
func IsTransportError(err error) bool {
	return hasType(err, ErrorTypeTransport)
}

// IsIntegrityError checks if an error is an integrity failure
func IsIntegrityError(err error) bool {
	return hasType(err, ErrorTypeIntegrity)
}

// IsValidationError checks if an error is a validation failure
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsConflictError checks if an error is a flow-control conflict
func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// DuplicateIDs returns the offending ids carried by a duplicate-id integrity error.
func DuplicateIDs(err error) []string {
	var ee *EditorError
	if !errors.As(err, &ee) || ee.Code != ErrCodeDuplicateIDs {
		return nil
	}
	ids, _ := ee.Details["ids"].([]string)
	return ids
}
