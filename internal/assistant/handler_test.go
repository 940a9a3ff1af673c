package assistant

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy-platform/studybuddy/internal/auth"
	"github.com/studybuddy-platform/studybuddy/internal/chat"
)

func newRouter(f *fixture, user uuid.UUID) http.Handler {
	sessions := chat.NewHandler(f.chat)
	messages := NewHandler(f.svc)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithClaims(r.Context(), &auth.AccessClaims{UserID: user.String()})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Use(sessions.OwnershipMiddleware)
		r.Post("/messages", messages.Send)
		r.Get("/messages", sessions.ListMessages)
	})
	return r
}

func TestHandler_Send(t *testing.T) {
	f := newFixture(t)
	session := f.session(t, chat.SessionPDF)
	router := newRouter(f, f.user)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"answered", `{"content":"What is chlorophyll?"}`, http.StatusCreated},
		{"deflected", `{"content":"Explain this in detail please"}`, http.StatusCreated},
		{"empty content", `{"content":""}`, http.StatusBadRequest},
		{"whitespace content", `{"content":"   "}`, http.StatusBadRequest},
		{"malformed json", `{"content":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/sessions/"+session.ID.String()+"/messages", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+session.ID.String()+"/messages", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Data []chat.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Data, 4)
	assert.Equal(t, DeflectionReply, listed.Data[3].Content)
}

func TestHandler_SendForeignSession(t *testing.T) {
	f := newFixture(t)
	session := f.session(t, chat.SessionGeneral)
	router := newRouter(f, uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+session.ID.String()+"/messages", strings.NewReader(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, f.gen.calls)
}
