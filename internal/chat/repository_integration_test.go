//go:build integration

package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy-platform/studybuddy/internal/chat"
	"github.com/studybuddy-platform/studybuddy/internal/database/dbtest"
	"github.com/studybuddy-platform/studybuddy/internal/memory"
)

func newSession(t *testing.T, repo chat.Repository, userID uuid.UUID, docID *uuid.UUID) *chat.Session {
	t.Helper()
	now := time.Now().UTC()
	s := &chat.Session{
		ID:             uuid.New(),
		UserID:         userID,
		Type:           chat.SessionGeneral,
		Title:          "General",
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if docID != nil {
		s.Type = chat.SessionPDF
		s.DocumentID = docID
	}
	require.NoError(t, repo.CreateSession(context.Background(), s))
	return s
}

func appendMessage(t *testing.T, repo chat.Repository, s *chat.Session, role, content string, at time.Time) {
	t.Helper()
	require.NoError(t, repo.AppendMessage(context.Background(), &chat.Message{
		ID:        uuid.New(),
		SessionID: s.ID,
		UserID:    s.UserID,
		Topic:     s.Topic(),
		Role:      role,
		Content:   content,
		Metadata:  chat.MessageMetadata{AIGenerated: role == memory.RoleAssistant},
		CreatedAt: at,
	}))
}

func TestPostgresRepository(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := chat.NewRepository(pool)
	ctx := context.Background()

	user := dbtest.CreateUser(t, pool)
	doc := dbtest.CreateDocument(t, pool, user, "Cell Biology")

	t.Run("messages keep insertion order within a tick", func(t *testing.T) {
		s := newSession(t, repo, user, nil)
		at := time.Now().UTC()
		appendMessage(t, repo, s, memory.RoleUser, "first", at)
		appendMessage(t, repo, s, memory.RoleAssistant, "second", at)
		appendMessage(t, repo, s, memory.RoleUser, "third", at)

		msgs, err := repo.ListMessages(ctx, s.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "first", msgs[0].Content)
		assert.Equal(t, "third", msgs[2].Content)
		assert.True(t, msgs[1].Metadata.AIGenerated)

		got, err := repo.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.MessageCount)
	})

	t.Run("recent messages span sessions of the same topic", func(t *testing.T) {
		a := newSession(t, repo, user, &doc)
		b := newSession(t, repo, user, &doc)
		at := time.Now().UTC()
		appendMessage(t, repo, a, memory.RoleUser, "from tab a", at)
		appendMessage(t, repo, b, memory.RoleUser, "from tab b", at.Add(time.Millisecond))

		msgs, err := repo.RecentMessages(ctx, user, doc.String(), 10)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "from tab a", msgs[0].Content)
		assert.Equal(t, "from tab b", msgs[1].Content)
	})

	t.Run("reset hides older messages", func(t *testing.T) {
		other := dbtest.CreateUser(t, pool)
		s := newSession(t, repo, other, nil)
		before := time.Now().UTC().Add(-time.Minute)
		appendMessage(t, repo, s, memory.RoleUser, "old", before)

		require.NoError(t, repo.ResetMemory(ctx, other, memory.GeneralTopic, time.Now().UTC()))
		appendMessage(t, repo, s, memory.RoleUser, "new", time.Now().UTC().Add(time.Second))

		msgs, err := repo.RecentMessages(ctx, other, memory.GeneralTopic, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "new", msgs[0].Content)
	})

	t.Run("missing session is nil", func(t *testing.T) {
		got, err := repo.GetSession(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("deleting a session removes its messages", func(t *testing.T) {
		s := newSession(t, repo, user, nil)
		appendMessage(t, repo, s, memory.RoleUser, "bye", time.Now().UTC())

		require.NoError(t, repo.DeleteSession(ctx, s.ID))
		msgs, err := repo.ListMessages(ctx, s.ID, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)
		assert.ErrorIs(t, repo.DeleteSession(ctx, s.ID), chat.ErrSessionNotFound)
	})
}
