package assistant

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/studybuddy-platform/studybuddy/internal/api"
	"github.com/studybuddy-platform/studybuddy/internal/chat"
)

type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

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

// Send answers a message in the session loaded by chat's ownership middleware.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	session := chat.GetSessionFromContext(r.Context())
	if session == nil {
		api.HandleError(w, api.ErrSessionNotFound)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	reply, err := h.svc.HandleMessage(r.Context(), session, req.Content, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	api.JSON(w, http.StatusCreated, reply)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		api.HandleError(w, api.NewValidationError(err.Error()))
	case errors.Is(err, ErrDocumentNotFound):
		api.HandleError(w, api.ErrDocumentNotFound)
	default:
		slog.Error("handling chat message", "error", err)
		api.HandleError(w, api.ErrInternalServer)
	}
}
