package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/studybuddy-platform/studybuddy/internal/api"
	"github.com/studybuddy-platform/studybuddy/internal/users"
)

// maxAuthBody caps credential payloads; nothing legitimate comes close.
const maxAuthBody = 4 << 10

type Handler struct {
	tokens   *Service
	accounts *users.Service
	validate *validator.Validate
}

func NewHandler(tokens *Service, accounts *users.Service) *Handler {
	return &Handler{
		tokens:   tokens,
		accounts: accounts,
		validate: validator.New(),
	}
}

type credentials struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type registerRequest struct {
	credentials
	Name string `json:"name" validate:"max=100"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Session is returned by register and login. The token fields sit next to
// the user so clients can read either shape.
type Session struct {
	*TokenPair
	User *users.User `json:"user"`
}

// decode reads a small JSON body into dst and validates it, writing the
// error response itself when it returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBody)).Decode(dst); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return false
	}
	return true
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Email, req.Name, req.Password)
	switch {
	case errors.Is(err, users.ErrEmailTaken):
		api.HandleError(w, api.ErrEmailAlreadyExists)
		return
	case errors.Is(err, users.ErrPasswordTooShort):
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	case err != nil:
		slog.Error("registering user", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.startSession(w, r, user, http.StatusCreated)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, users.ErrInvalidCredentials):
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	case err != nil:
		slog.Error("authenticating user", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.startSession(w, r, user, http.StatusOK)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *users.User, status int) {
	pair, err := h.tokens.GenerateTokens(r.Context(), user.ID.String(), user.Email)
	if err != nil {
		slog.Error("issuing tokens", "error", err, "user_id", user.ID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, status, Session{TokenPair: pair, User: user})
}

// Refresh trades a live refresh token for a new pair. A token that was
// already used or revoked by logout is rejected.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.tokens.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		slog.Warn("refresh rejected", "error", err)
		api.HandleError(w, api.ErrInvalidToken)
		return
	}
	api.JSON(w, http.StatusOK, pair)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.tokens.Logout(r.Context(), userID.String()); err != nil {
		slog.Error("revoking refresh tokens", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSONMessage(w, http.StatusOK, "logged out")
}
