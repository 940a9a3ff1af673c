package performance

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/studybuddy-platform/studybuddy/internal/api"
	"github.com/studybuddy-platform/studybuddy/internal/auth"
)

const maxRecentLimit = 100

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *Handler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req RecordAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	attempt, err := h.svc.RecordAttempt(r.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			api.HandleError(w, api.ErrDocumentNotFound)
			return
		}
		slog.Error("recording quiz attempt", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, attempt)
}

func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	docID, err := documentFilter(r)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid document_id"))
		return
	}

	limit := defaultRecentLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= maxRecentLimit {
			limit = v
		}
	}

	attempts, err := h.svc.RecentAttempts(r.Context(), userID, docID, limit)
	if err != nil {
		slog.Error("listing quiz attempts", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, attempts)
}

func (h *Handler) ListTopics(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	docID, err := documentFilter(r)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid document_id"))
		return
	}

	perf, err := h.svc.TopicPerformance(r.Context(), userID, docID)
	if err != nil {
		slog.Error("aggregating topic performance", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, perf)
}

func documentFilter(r *http.Request) (*uuid.UUID, error) {
	raw := r.URL.Query().Get("document_id")
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
