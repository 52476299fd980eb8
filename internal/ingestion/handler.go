package ingestion

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/shard"
	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/kafka"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/resilience"
)

// Handler exposes the upload API.
type Handler struct {
	publisher *Publisher
	rebuilds  *kafka.Producer
	logger    *slog.Logger
}

// NewHandler returns the ingestion HTTP handler. rebuilds publishes on the
// shard-rebuild topic; nil disables the rebuild endpoint.
func NewHandler(publisher *Publisher, rebuilds *kafka.Producer) *Handler {
	return &Handler{
		publisher: publisher,
		rebuilds:  rebuilds,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Register mounts the ingestion routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	// Method-qualified ServeMux patterns need Go 1.22+; guard the method
	// explicitly so the routes work on the Go 1.21 toolchain.
	mux.HandleFunc("/upload", requireMethod(http.MethodPost, h.handleUpload))
	mux.HandleFunc("/admin/rebuild", requireMethod(http.MethodPost, h.handleRebuild))
}

func requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "request body is not valid JSON"))
		return
	}

	resp, err := h.publisher.Accept(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if h.rebuilds == nil {
		h.writeError(w, apperrors.New(apperrors.ErrInternal, http.StatusNotImplemented, "rebuild publishing is not configured"))
		return
	}

	raw := r.URL.Query().Get("shard")
	id, err := shard.Parse(raw)
	if err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "shard %q is not MM-YYYY", raw))
		return
	}

	event := RebuildEvent{Shard: id.String()}
	err = resilience.Retry(r.Context(), "publish-rebuild", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		return h.rebuilds.Publish(r.Context(), kafka.Event{Key: id.String(), Value: event})
	})
	if err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInternal, http.StatusBadGateway, "publishing rebuild for %s: %v", id, err))
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"shard": id.String(), "status": "rebuild requested"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
