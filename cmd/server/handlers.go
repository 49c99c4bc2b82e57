package main

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/lychee-technology/formedit"
	"go.uber.org/zap"
)

// handleCollections handles GET /api/v1/collections
func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"collections": s.editor.Collections(),
		"active":      s.editor.View().Collection,
	})
}

// handleOpen handles POST /api/v1/collections/{name}
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	out := s.editor.Open(r.Context(), name)
	s.respond(w, "open", out)
}

// handleSchema handles GET /api/v1/collections/{name}/schema
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if active := s.editor.View().Collection; active != name {
		writeError(w, http.StatusNotFound, fmt.Sprintf("collection %q is not open", name))
		return
	}
	writeSuccess(w, http.StatusOK, s.editor.Schema())
}

// handleView handles GET /api/v1/view
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, s.editor.View())
}

// handleSelect handles POST /api/v1/view/select with {"key": ...} or {"id": ...}
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	if req.ID != "" {
		s.respond(w, "select", s.editor.SelectID(req.ID))
		return
	}
	key, err := parseRowKey(req.Key)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respond(w, "select", s.editor.Select(key))
}

// handleToggle handles POST /api/v1/view/toggle with {"key": ...}
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	key, err := parseRowKey(req.Key)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if key == uuid.Nil {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	s.respond(w, "toggle", s.editor.ToggleRow(key))
}

// handleEdit handles POST /api/v1/view/edit with {"field": ..., "value": ...}
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	if req.Field == "" {
		writeError(w, http.StatusBadRequest, "field is required")
		return
	}
	s.respond(w, "edit", s.editor.Edit(req.Field, req.Value))
}

// handleDraft handles POST /api/v1/view/draft
func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	s.respond(w, "draft", s.editor.NewDraft())
}

// handleSave handles POST /api/v1/view/save
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.respond(w, "save", s.editor.Save(r.Context()))
}

// handleReset handles POST /api/v1/view/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.respond(w, "reset", s.editor.Reset())
}

// handleDelete handles POST /api/v1/view/delete
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.respond(w, "delete", s.editor.Delete(r.Context()))
}

// handleClose handles POST /api/v1/view/close
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.respond(w, "close", s.editor.Close())
}

func (s *Server) respond(w http.ResponseWriter, event string, out formedit.Outcome) {
	if out.Err != nil && out.Status == formedit.OutcomeFailed {
		zap.S().Warnw("editor event failed", "event", event, "error", out.Err)
	} else {
		zap.S().Debugw("editor event", "event", event, "status", out.Status)
	}
	if err := writeOutcome(w, out, s.editor.View()); err != nil {
		zap.S().Errorw("failed to write response", "event", event, "error", err)
	}
}
