package performance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy-platform/studybuddy/internal/auth"
	inats "github.com/studybuddy-platform/studybuddy/internal/nats"
	"github.com/studybuddy-platform/studybuddy/internal/vectorstore"
)

type memRepo struct {
	mu       sync.Mutex
	attempts []*QuizAttempt
}

func (m *memRepo) RecordAttempt(_ context.Context, a *QuizAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attempts = append(m.attempts, &cp)
	return nil
}

func (m *memRepo) matching(userID uuid.UUID, documentID *uuid.UUID) []*QuizAttempt {
	var out []*QuizAttempt
	for _, a := range m.attempts {
		if a.UserID != userID {
			continue
		}
		if documentID != nil && (a.DocumentID == nil || *a.DocumentID != *documentID) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (m *memRepo) RecentAttempts(_ context.Context, userID uuid.UUID, documentID *uuid.UUID, limit int) ([]*QuizAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.matching(userID, documentID)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) TopicPerformance(_ context.Context, userID uuid.UUID, documentID *uuid.UUID) ([]*TopicPerformance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byTopic := map[string]*TopicPerformance{}
	var order []string
	for _, a := range m.matching(userID, documentID) {
		p, ok := byTopic[a.Topic]
		if !ok {
			p = &TopicPerformance{Topic: a.Topic}
			byTopic[a.Topic] = p
			order = append(order, a.Topic)
		}
		p.AveragePct = (p.AveragePct*float64(p.Attempts) + a.Percent()) / float64(p.Attempts+1)
		p.Attempts++
		p.BestPct = max(p.BestPct, a.Percent())
	}
	var out []*TopicPerformance
	for _, t := range order {
		out = append(out, byTopic[t])
	}
	return out, nil
}

type fakeDocs map[uuid.UUID]uuid.UUID

func (f fakeDocs) FindOwned(_ context.Context, userID, documentID uuid.UUID) (string, bool, error) {
	owner, ok := f[documentID]
	if !ok || owner != userID {
		return "", false, nil
	}
	return "Organic Chemistry", true, nil
}

type stubEmbedder struct{ err error }

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0.5, 0}, nil
}

type captureRecorder struct{ events []inats.ActivityEvent }

func (c *captureRecorder) Record(_ context.Context, e inats.ActivityEvent) {
	c.events = append(c.events, e)
}

func newTestService(t *testing.T, emb stubEmbedder) (*Service, *memRepo, *vectorstore.ChromemStore, *captureRecorder, uuid.UUID, uuid.UUID) {
	t.Helper()
	vectors, err := vectorstore.NewChromemStore("")
	require.NoError(t, err)

	user, doc := uuid.New(), uuid.New()
	repo := &memRepo{}
	rec := &captureRecorder{}
	svc := NewService(repo, fakeDocs{doc: user}, emb, vectors, rec)
	svc.now = func() time.Time { return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC) }
	return svc, repo, vectors, rec, user, doc
}

func TestService_RecordAttempt(t *testing.T) {
	ctx := context.Background()

	t.Run("indexes the attempt into the performance namespace", func(t *testing.T) {
		svc, repo, vectors, rec, user, doc := newTestService(t, stubEmbedder{})

		attempt, err := svc.RecordAttempt(ctx, user, &RecordAttemptRequest{DocumentID: &doc, Topic: "Alkenes", Correct: 6, Total: 8})
		require.NoError(t, err)
		assert.Equal(t, 75.0, attempt.Percent())
		assert.Len(t, repo.attempts, 1)

		matches, err := vectors.Query(ctx, vectorstore.PerformanceNamespace(user), []float32{1, 0.5, 0}, 5)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, `Quiz on Alkenes from "Organic Chemistry": scored 6/8 (75%) on 2026-05-04.`, matches[0].Text)
		assert.Equal(t, doc.String(), matches[0].Metadata["document_id"])

		require.Len(t, rec.events, 1)
		assert.Equal(t, "quiz_recorded", rec.events[0].EventType)
		assert.Equal(t, "6/8", rec.events[0].Details["score"])
	})

	t.Run("embedding failure does not fail the request", func(t *testing.T) {
		svc, repo, vectors, _, user, _ := newTestService(t, stubEmbedder{err: errors.New("quota")})

		_, err := svc.RecordAttempt(ctx, user, &RecordAttemptRequest{Topic: "Esters", Correct: 1, Total: 2})
		require.NoError(t, err)
		assert.Len(t, repo.attempts, 1)

		matches, err := vectors.Query(ctx, vectorstore.PerformanceNamespace(user), []float32{1, 0.5, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("foreign document", func(t *testing.T) {
		svc, repo, _, _, _, doc := newTestService(t, stubEmbedder{})

		_, err := svc.RecordAttempt(ctx, uuid.New(), &RecordAttemptRequest{DocumentID: &doc, Topic: "x", Correct: 1, Total: 1})
		assert.ErrorIs(t, err, ErrDocumentNotFound)
		assert.Empty(t, repo.attempts)
	})
}

func TestService_Queries(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, user, doc := newTestService(t, stubEmbedder{})

	clock := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, req := range []RecordAttemptRequest{
		{DocumentID: &doc, Topic: "Alkenes", Correct: 2, Total: 10},
		{DocumentID: &doc, Topic: "Alkenes", Correct: 6, Total: 10},
		{Topic: "Kinetics", Correct: 9, Total: 10},
	} {
		svc.now = func() time.Time { return clock.Add(time.Duration(i) * time.Hour) }
		_, err := svc.RecordAttempt(ctx, user, &req)
		require.NoError(t, err)
	}

	recent, err := svc.RecentAttempts(ctx, user, nil, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "Kinetics", recent[0].Topic)

	scoped, err := svc.RecentAttempts(ctx, user, &doc, 10)
	require.NoError(t, err)
	assert.Len(t, scoped, 2)

	perf, err := svc.TopicPerformance(ctx, user, &doc)
	require.NoError(t, err)
	require.Len(t, perf, 1)
	assert.Equal(t, 2, perf[0].Attempts)
	assert.InDelta(t, 40.0, perf[0].AveragePct, 0.001)
	assert.InDelta(t, 60.0, perf[0].BestPct, 0.001)

	none, err := svc.TopicPerformance(ctx, uuid.New(), nil)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestHandler(t *testing.T) {
	svc, _, _, _, user, doc := newTestService(t, stubEmbedder{})
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithClaims(r.Context(), &auth.AccessClaims{UserID: user.String()})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Post("/attempts", h.RecordAttempt)
	r.Get("/attempts", h.ListAttempts)
	r.Get("/topics", h.ListTopics)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"record", http.MethodPost, "/attempts", `{"topic":"Alkenes","correct":3,"total":5,"document_id":"` + doc.String() + `"}`, http.StatusCreated},
		{"correct above total", http.MethodPost, "/attempts", `{"topic":"Alkenes","correct":6,"total":5}`, http.StatusBadRequest},
		{"missing topic", http.MethodPost, "/attempts", `{"correct":1,"total":5}`, http.StatusBadRequest},
		{"zero total", http.MethodPost, "/attempts", `{"topic":"x","correct":0,"total":0}`, http.StatusBadRequest},
		{"unknown document", http.MethodPost, "/attempts", `{"topic":"x","correct":1,"total":2,"document_id":"` + uuid.NewString() + `"}`, http.StatusNotFound},
		{"list", http.MethodGet, "/attempts?limit=5", "", http.StatusOK},
		{"list by document", http.MethodGet, "/attempts?document_id=" + doc.String(), "", http.StatusOK},
		{"bad document filter", http.MethodGet, "/topics?document_id=nope", "", http.StatusBadRequest},
		{"topics", http.MethodGet, "/topics", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}
