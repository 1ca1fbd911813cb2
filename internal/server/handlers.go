package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/storage"
	"github.com/hyperjump/bunmyaku/internal/vector"
	"github.com/hyperjump/bunmyaku/internal/window"
)

type windowRequest struct {
	// Model falls back to the conversation's model when omitted.
	Model string `json:"model"`
	// ReservedOutputTokens falls back to the configured default when omitted.
	ReservedOutputTokens *int `json:"reserved_output_tokens,omitempty"`
}

type appendRequest struct {
	Identifiers []models.Identifier `json:"identifiers"`
}

type addItemRequest struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector,omitempty"`
	Text   string    `json:"text,omitempty"`
	Tokens int       `json:"tokens"`
}

func (s *Server) handleBuildWindow(w http.ResponseWriter, r *http.Request) {
	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reserved := s.config.Window.ReservedOutputTokens
	if req.ReservedOutputTokens != nil {
		reserved = *req.ReservedOutputTokens
	}
	a, err := s.assemblers(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	model := req.Model
	if model == "" {
		if model, err = a.DefaultModel(r.Context()); err != nil {
			s.respondErr(w, err)
			return
		}
	}
	// experience injection searches the indices
	s.indexMu.RLock()
	win, err := a.Build(r.Context(), model, reserved)
	s.indexMu.RUnlock()
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, win)
}

func (s *Server) handleAppendLog(w http.ResponseWriter, r *http.Request) {
	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := s.assemblers(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if err := a.Append(r.Context(), req.Identifiers); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]int{"appended": len(req.Identifiers)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondErr(w, err)
		return
	}
	start := time.Now()
	query := req.Vector
	if len(query) == 0 {
		var err error
		if query, err = s.embedder.Embed(r.Context(), req.Text); err != nil {
			s.respondErr(w, err)
			return
		}
	}
	searchers, err := s.registry.Searchers(req.Scopes)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.indexMu.RLock()
	results, err := vector.Search(r.Context(), searchers, query, req.Threshold, req.Limit, req.GlobalLimit)
	s.indexMu.RUnlock()
	if err != nil {
		s.respondErr(w, err)
		return
	}
	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = s.registry.Scopes()
	}
	s.logger.Debug("search request", zap.Strings("scopes", scopes), zap.Int("results", len(results)))
	s.respondJSON(w, http.StatusOK, &models.QueryResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
		Scopes:    scopes,
	})
}

// handleAddItem upserts into the live index only. Items stay unpersisted until the
// persist endpoint is called; while any are pending, snapshot reloads for the scope
// are refused so they are not lost.
func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	scope := chi.URLParam(r, "scope")
	x, err := s.registry.Index(scope)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	vec := req.Vector
	if len(vec) == 0 && req.Text != "" {
		if vec, err = s.embedder.Embed(r.Context(), req.Text); err != nil {
			s.respondErr(w, err)
			return
		}
	}
	s.indexMu.Lock()
	err = x.AddItem(r.Context(), req.ID, vec, req.Tokens, scope)
	s.indexMu.Unlock()
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": req.ID, "scope": scope, "status": "added"})
}

func (s *Server) handlePersist(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")
	x, err := s.registry.Index(scope)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.indexMu.Lock()
	err = x.Persist(r.Context())
	items := x.Len()
	s.indexMu.Unlock()
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"scope": scope, "items": items, "status": "persisted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.indexMu.RLock()
	stats := s.registry.Stats()
	s.indexMu.RUnlock()
	resp := map[string]any{
		"scopes": stats,
	}
	if s.counter != nil {
		n, err := s.counter.CountConversations(r.Context())
		if err != nil {
			s.logger.Error("status: count conversations failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["conversations"] = n
	}
	if s.config != nil {
		resp["config"] = map[string]any{
			"data_dir":               s.config.Storage.DataDir,
			"database_path":          s.config.Storage.DatabasePath,
			"embedding_dimensions":   s.config.Embedding.Dimensions,
			"reserved_output_tokens": s.config.Window.ReservedOutputTokens,
			"experience_enabled":     s.config.Experience.Enabled,
		}
		if diskBytes, err := storage.DiskUsageBytes(s.config.Storage.DataDir, s.config.Storage.DatabasePath); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps an error to its HTTP status: contract violations are 400,
// missing resources 404, anything else 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, window.ErrConversationNotFound),
		errors.Is(err, window.ErrAgentNotFound),
		errors.Is(err, window.ErrToolNotFound),
		errors.Is(err, vector.ErrUnknownScope):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidQuery),
		errors.Is(err, window.ErrMissingArgument),
		errors.Is(err, window.ErrInvalidRequest),
		errors.Is(err, window.ErrUnknownModel),
		errors.Is(err, window.ErrMissingTokens),
		errors.Is(err, vector.ErrZeroVector),
		errors.Is(err, vector.ErrDimensionMismatch),
		errors.Is(err, vector.ErrInvalidItem):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
