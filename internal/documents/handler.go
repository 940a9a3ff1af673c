package documents

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studybuddy-platform/studybuddy/internal/api"
	"github.com/studybuddy-platform/studybuddy/internal/auth"
)

const uploadField = "file"

type Handler struct {
	svc            *Service
	maxUploadBytes int64
}

func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 << 20
	}
	return &Handler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// Upload accepts a multipart PDF under the "file" field.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.HandleError(w, api.ErrPayloadTooLarge)
			return
		}
		api.HandleError(w, api.NewBadRequestError("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		api.HandleError(w, api.ErrPayloadTooLarge)
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		api.HandleError(w, api.NewValidationError("only PDF files are supported"))
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	doc, err := h.svc.Ingest(r.Context(), userID, header.Filename, content)
	if err != nil {
		if errors.Is(err, ErrUnreadablePDF) || errors.Is(err, ErrNoText) {
			api.HandleError(w, api.NewValidationError(err.Error()))
			return
		}
		slog.Error("ingesting document", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params := DefaultListParams()
	params.Page, params.PageSize = api.PageParams(r, params.Page, params.PageSize)

	docs, total, err := h.svc.ListByOwner(r.Context(), userID, params)
	if err != nil {
		slog.Error("listing documents", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, docs, total, params.Page, params.PageSize)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	doc := GetDocumentFromContext(r.Context())
	if doc == nil {
		api.HandleError(w, api.ErrDocumentNotFound)
		return
	}

	api.JSON(w, http.StatusOK, doc)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	doc := GetDocumentFromContext(r.Context())
	if doc == nil {
		api.HandleError(w, api.ErrDocumentNotFound)
		return
	}

	if err := h.svc.Delete(r.Context(), doc); err != nil {
		if errors.Is(err, ErrNotFound) {
			api.HandleError(w, api.ErrDocumentNotFound)
			return
		}
		slog.Error("deleting document", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "document deleted successfully")
}

// OwnershipMiddleware loads the document named in the URL for its owner.
func (h *Handler) OwnershipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserID(r.Context())
		if !ok {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}

		docID, err := uuid.Parse(chi.URLParam(r, "documentID"))
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid document ID"))
			return
		}

		doc, err := h.svc.GetOwned(r.Context(), userID, docID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				api.HandleError(w, api.ErrDocumentNotFound)
				return
			}
			slog.Error("fetching document for ownership check", "error", err)
			api.HandleError(w, api.ErrInternalServer)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetDocumentInContext(r.Context(), doc)))
	})
}
