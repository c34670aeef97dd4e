package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/ragprobe/internal/errdefs"
)

type modelRequest struct {
	Model string `json:"model"`
	Seed  int64  `json:"seed"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	modelID, ok := s.modelID(w, r.URL.Query().Get("model"))
	if !ok {
		return
	}
	titles, err := s.ledger.ListTracked(r.Context(), modelID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if titles == nil {
		titles = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"model": modelID, "documents": titles})
}

func (s *Server) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	modelID, ok := s.modelID(w, r.URL.Query().Get("model"))
	if !ok {
		return
	}
	title := r.URL.Query().Get("title")
	if title == "" {
		s.respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	s.logger.Debug("remove tracked document request", zap.String("title", title), zap.String("model", modelID))
	if err := s.ledger.RemoveTracked(r.Context(), title, modelID); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"title": title, "status": "removed"})
}

func (s *Server) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	docID, err := url.PathUnescape(chi.URLParam(r, "docID"))
	if err != nil || docID == "" {
		s.respondError(w, http.StatusBadRequest, "invalid doc id")
		return
	}
	tc, err := s.ledger.LoadQuestion(r.Context(), docID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, tc)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	modelID, ok := s.modelID(w, req.Model)
	if !ok {
		return
	}
	n, err := s.ingester.Ingest(r.Context(), s.config.Data.Dir, modelID)
	if err != nil {
		s.logger.Error("ingestion failed", zap.String("model", modelID), zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"indexed": n})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	modelID, ok := s.modelID(w, req.Model)
	if !ok {
		return
	}
	s.logger.Debug("evaluate request", zap.String("model", modelID), zap.Int64("seed", req.Seed))
	ev, err := s.evaluator.Evaluate(r.Context(), modelID, req.Seed)
	if err != nil {
		s.logger.Error("evaluation failed", zap.String("model", modelID), zap.Error(err))
		s.respondErr(w, err)
		return
	}
	if ev.Sources == nil {
		ev.Sources = []string{}
	}
	s.respondJSON(w, http.StatusOK, ev)
}

// modelID resolves an embedding name to its model identity, answering 400 on failure.
func (s *Server) modelID(w http.ResponseWriter, name string) (string, bool) {
	if name == "" {
		s.respondError(w, http.StatusBadRequest, "model is required")
		return "", false
	}
	m, err := s.config.EmbeddingModelByName(name)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return m.Model, true
}

// statusFor maps an error class to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errdefs.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, errdefs.ErrInvalidInput), errors.Is(err, errdefs.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, errdefs.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errdefs.ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	s.respondError(w, statusFor(err), err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
