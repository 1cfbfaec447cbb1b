package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/google/uuid"

	"github.com/prok20/faulty-server-poller/internal/logger"
	"github.com/prok20/faulty-server-poller/internal/service"
)

const maxRequestBody = 1 << 20

type handlers struct {
	svc    PollingService
	logger *slog.Logger
}

type startRunBody struct {
	Seconds *uint64 `json:"seconds"`
}

// startRun handles POST /runs.
func (h *handlers) startRun(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		respondJSON(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	var body startRunBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&body); err != nil || body.Seconds == nil {
		respondJSON(w, http.StatusBadRequest, "Request body must be {\"seconds\": <non-negative integer>}")
		return
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		respondJSON(w, http.StatusBadRequest, "Request body must contain a single JSON object")
		return
	}

	id, err := h.svc.StartRun(r.Context(), *body.Seconds)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, service.StartRunResponse{ID: id})
}

// getRun handles GET /runs/{id}.
func (h *handlers) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, "Invalid run id")
		return
	}

	result, err := h.svc.GetRun(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// healthCheck handles GET /health_check.
func (h *handlers) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	code := service.StatusCode(err)
	if code >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), h.logger).Debug("request failed", "error", err)
	}
	respondJSON(w, code, service.Message(err))
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
