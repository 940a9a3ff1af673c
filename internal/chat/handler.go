package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/studybuddy-platform/studybuddy/internal/api"
	"github.com/studybuddy-platform/studybuddy/internal/auth"
)

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

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	session, err := h.svc.CreateSession(r.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			api.HandleError(w, api.ErrDocumentNotFound)
			return
		}
		slog.Error("creating chat session", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, session)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params := DefaultListParams()
	params.Page, params.PageSize = api.PageParams(r, params.Page, params.PageSize)

	sessions, total, err := h.svc.ListSessions(r.Context(), userID, params)
	if err != nil {
		slog.Error("listing chat sessions", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, sessions, total, params.Page, params.PageSize)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	session := GetSessionFromContext(r.Context())
	if session == nil {
		api.HandleError(w, api.ErrSessionNotFound)
		return
	}

	api.JSON(w, http.StatusOK, session)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	session := GetSessionFromContext(r.Context())
	if session == nil {
		api.HandleError(w, api.ErrSessionNotFound)
		return
	}

	if err := h.svc.DeleteSession(r.Context(), session); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			api.HandleError(w, api.ErrSessionNotFound)
			return
		}
		slog.Error("deleting chat session", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "session deleted successfully")
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	session := GetSessionFromContext(r.Context())
	if session == nil {
		api.HandleError(w, api.ErrSessionNotFound)
		return
	}

	params := ListParams{Page: 1, PageSize: 50}
	params.Page, params.PageSize = api.PageParams(r, params.Page, params.PageSize)

	messages, err := h.svc.ListMessages(r.Context(), session, params)
	if err != nil {
		slog.Error("listing chat messages", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, messages, int64(session.MessageCount), params.Page, params.PageSize)
}

func (h *Handler) ClearMemory(w http.ResponseWriter, r *http.Request) {
	session := GetSessionFromContext(r.Context())
	if session == nil {
		api.HandleError(w, api.ErrSessionNotFound)
		return
	}

	if err := h.svc.ClearMemory(r.Context(), session); err != nil {
		slog.Error("clearing conversation memory", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "conversation memory cleared")
}

// OwnershipMiddleware loads the session named in the URL and rejects
// requests for sessions the caller does not own.
func (h *Handler) OwnershipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserID(r.Context())
		if !ok {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}

		sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid session ID"))
			return
		}

		session, err := h.svc.GetSession(r.Context(), userID, sessionID)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				api.HandleError(w, api.ErrSessionNotFound)
				return
			}
			slog.Error("fetching chat session for ownership check", "error", err)
			api.HandleError(w, api.ErrInternalServer)
			return
		}

		ctx := SetSessionInContext(r.Context(), session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
