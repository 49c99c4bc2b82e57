package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lychee-technology/formedit"
)

// APIResponse is the standard response format
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// EventResponse reports the outcome of one editor event together with the
// projections it left behind.
type EventResponse struct {
	Outcome formedit.Outcome      `json:"outcome"`
	Error   *formedit.EditorError `json:"error,omitempty"`
	View    formedit.View         `json:"view"`
}

// selectRequest picks a row by row key or record id. Both empty clears the selection.
type selectRequest struct {
	Key string `json:"key"`
	ID  string `json:"id"`
}

type editRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data any) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeOutcome writes an event outcome with the status code matching it.
func writeOutcome(w http.ResponseWriter, out formedit.Outcome, view formedit.View) error {
	resp := EventResponse{Outcome: out, View: view}
	var ee *formedit.EditorError
	if errors.As(out.Err, &ee) {
		resp.Error = ee
	}
	return writeJSON(w, statusForOutcome(out), resp)
}

// statusForOutcome maps an outcome to an HTTP status.
func statusForOutcome(out formedit.Outcome) int {
	switch out.Status {
	case formedit.OutcomeApplied:
		return http.StatusOK
	case formedit.OutcomeConfirmRequired:
		return http.StatusConflict
	}

	switch {
	case out.Err == nil:
		return http.StatusUnprocessableEntity
	case formedit.IsValidationError(out.Err):
		return http.StatusUnprocessableEntity
	case formedit.IsNotFoundError(out.Err):
		return http.StatusNotFound
	case formedit.IsConflictError(out.Err), formedit.IsIntegrityError(out.Err):
		return http.StatusConflict
	case formedit.IsTransportError(out.Err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseRowKey parses a row key, treating an empty string as no row.
func parseRowKey(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, nil
	}
	key, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid row key: %w", err)
	}
	return key, nil
}

// readJSONBody reads and decodes JSON from request body. An empty body leaves v untouched.
func readJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
