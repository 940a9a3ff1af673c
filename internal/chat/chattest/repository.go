// Package chattest provides an in-memory chat.Repository for tests.
package chattest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studybuddy-platform/studybuddy/internal/chat"
)

type resetKey struct {
	user  uuid.UUID
	topic string
}

// Repository keeps sessions and messages in memory. Set FailAppend to make
// AppendMessage fail.
type Repository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*chat.Session
	messages []*chat.Message
	resets   map[resetKey]time.Time

	FailAppend error
}

func NewRepository() *Repository {
	return &Repository{
		sessions: map[uuid.UUID]*chat.Session{},
		resets:   map[resetKey]time.Time{},
	}
}

func (r *Repository) CreateSession(_ context.Context, s *chat.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *Repository) GetSession(_ context.Context, id uuid.UUID) (*chat.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *Repository) ListSessions(_ context.Context, userID uuid.UUID, limit, offset int) ([]*chat.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*chat.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return page(out, limit, offset), nil
}

func (r *Repository) CountSessions(_ context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *Repository) DeleteSession(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return chat.ErrSessionNotFound
	}
	delete(r.sessions, id)
	kept := r.messages[:0]
	for _, m := range r.messages {
		if m.SessionID != id {
			kept = append(kept, m)
		}
	}
	r.messages = kept
	return nil
}

func (r *Repository) AppendMessage(_ context.Context, m *chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAppend != nil {
		return r.FailAppend
	}
	s, ok := r.sessions[m.SessionID]
	if !ok {
		return chat.ErrSessionNotFound
	}
	s.MessageCount++
	s.LastActivityAt = m.CreatedAt
	cp := *m
	r.messages = append(r.messages, &cp)
	return nil
}

func (r *Repository) RecentMessages(_ context.Context, userID uuid.UUID, topic string, limit int) ([]*chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resetAt, hasReset := r.resets[resetKey{userID, topic}]
	var out []*chat.Message
	for _, m := range r.messages {
		if m.UserID != userID || m.Topic != topic {
			continue
		}
		if hasReset && !m.CreatedAt.After(resetAt) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *Repository) ListMessages(_ context.Context, sessionID uuid.UUID, limit, offset int) ([]*chat.Message, error) {
	return page(r.Messages(sessionID), limit, offset), nil
}

func (r *Repository) ResetMemory(_ context.Context, userID uuid.UUID, topic string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets[resetKey{userID, topic}] = at
	return nil
}

// Messages returns every stored message of the session in insertion order.
func (r *Repository) Messages(sessionID uuid.UUID) []*chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*chat.Message
	for _, m := range r.messages {
		if m.SessionID == sessionID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out
}

// ErrInjected is a convenient error for FailAppend.
var ErrInjected = errors.New("injected store failure")

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
