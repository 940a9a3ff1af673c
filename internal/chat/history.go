package chat

import (
	"context"

	"github.com/google/uuid"

	"github.com/studybuddy-platform/studybuddy/internal/memory"
)

// History adapts the message store to memory.HistorySource.
type History struct {
	repo Repository
}

func NewHistory(repo Repository) *History {
	return &History{repo: repo}
}

func (h *History) RecentHistory(ctx context.Context, userID uuid.UUID, topic string, limit int) ([]memory.HistoryMessage, error) {
	messages, err := h.repo.RecentMessages(ctx, userID, topic, limit)
	if err != nil {
		return nil, err
	}
	out := make([]memory.HistoryMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, memory.HistoryMessage{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}
