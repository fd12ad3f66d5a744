package server

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/vietddude/eventsync/internal/core/apperr"
	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/generation"
	"github.com/vietddude/eventsync/internal/infra/storage"
	"github.com/vietddude/eventsync/internal/syncing/bulk"
	"github.com/vietddude/eventsync/internal/syncing/identity"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type identityRequest struct {
	Email            string      `json:"email"`
	DisplayName      string      `json:"display_name"`
	ExternalCallerID string      `json:"external_caller_id"`
	OwnerID          string      `json:"owner_id"`
	SessionID        string      `json:"session_id"`
	Tags             []string    `json:"tags"`
	Role             domain.Role `json:"role"`
}

type batchRequest struct {
	OwnerID   string              `json:"owner_id"`
	SessionID string              `json:"session_id"`
	Tags      []string            `json:"tags"`
	Targets   []domain.SyncTarget `json:"targets"`
}

type syncRequest struct {
	OwnerID  string              `json:"owner_id"`
	ConfigID string              `json:"config_id"`
	Config   *domain.EventConfig `json:"config"`
}

type syncResponse struct {
	Report domain.SyncReport   `json:"report"`
	Config *domain.EventConfig `json:"config"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generation.Request
	if !decode(w, r, &req) {
		return
	}
	res, err := s.deps.Generator.GenerateWithResilience(r.Context(), req, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEnsureIdentity(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !decode(w, r, &req) {
		return
	}
	rec := s.deps.Resolver.EnsureIdentity(r.Context(), identity.Hints{
		Email:            req.Email,
		DisplayName:      req.DisplayName,
		ExternalCallerID: req.ExternalCallerID,
		OwnerID:          req.OwnerID,
		SessionID:        req.SessionID,
		Tags:             req.Tags,
		Role:             req.Role,
	})
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Targets) > generation.MaxAttendees {
		writeError(w, &apperr.ValidationError{Field: "targets", Value: strconv.Itoa(len(req.Targets))})
		return
	}
	result := s.deps.Ingester.IngestBatch(r.Context(), bulk.Request{
		OwnerID:   req.OwnerID,
		SessionID: req.SessionID,
		Tags:      req.Tags,
		Targets:   req.Targets,
	})
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !decode(w, r, &req) {
		return
	}

	cfg := req.Config
	if cfg == nil {
		if req.ConfigID == "" || s.deps.Configs == nil {
			writeError(w, &apperr.ValidationError{Field: "config"})
			return
		}
		stored, err := s.deps.Configs.Get(r.Context(), req.ConfigID)
		if errors.Is(err, storage.ErrNotFound) {
			writeNotFound(w)
			return
		}
		if err != nil {
			writeError(w, apperr.Classify(err))
			return
		}
		cfg = stored
	}

	report := s.deps.Syncer.SyncGeneratedConfig(r.Context(), req.OwnerID, cfg)
	if s.deps.Configs != nil && cfg.ID != "" {
		if _, err := s.deps.Configs.Save(r.Context(), req.OwnerID, cfg); err != nil {
			s.log.Warn("Failed to persist synced config", "config_id", cfg.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, syncResponse{Report: report, Config: cfg})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Configs == nil {
		writeNotFound(w)
		return
	}
	cfg, err := s.deps.Configs.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeNotFound(w)
		return
	}
	if err != nil {
		writeError(w, apperr.Classify(err))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeNotFound(w)
		return
	}
	report, err := s.deps.Runs.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeNotFound(w)
		return
	}
	if err != nil {
		writeError(w, apperr.Classify(err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// decode reads a JSON body into v, writing a validation error on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		value := ""
		if errors.Is(err, io.EOF) {
			value = "empty"
		}
		writeError(w, &apperr.ValidationError{Field: "request body", Value: value})
		return false
	}
	return true
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindRateLimit:
		return http.StatusTooManyRequests
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	var rl *apperr.RateLimitError
	if errors.As(err, &rl) {
		secs := int(math.Ceil(rl.RetryAfter(time.Now()).Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, StatusFor(err), errorResponse{
		Error: apperr.UserMessage(err),
		Kind:  apperr.KindOf(err).String(),
	})
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "The requested resource was not found.", Kind: "not_found"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
