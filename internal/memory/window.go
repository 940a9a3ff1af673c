package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GeneralTopic is the topic of the cross-document mentor conversation.
const GeneralTopic = "general"

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Key identifies one conversation window. Topic is a document ID or GeneralTopic.
type Key struct {
	UserID uuid.UUID
	Topic  string
}

func (k Key) String() string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, k.UserID.String(), k.Topic)
}

// Turn is a single exchange entry held in a window.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	WordCount int       `json:"word_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Window is the bounded recent history for one (user, topic) pair.
type Window struct {
	UserID         uuid.UUID `json:"user_id"`
	Topic          string    `json:"topic"`
	Turns          []Turn    `json:"turns"`
	TotalWordCount int       `json:"total_word_count"`
	LastActivity   time.Time `json:"last_activity"`
}

func newWindow(key Key, now time.Time) *Window {
	return &Window{UserID: key.UserID, Topic: key.Topic, LastActivity: now}
}

// Key returns the window's cache key.
func (w *Window) Key() Key {
	return Key{UserID: w.UserID, Topic: w.Topic}
}

func (w *Window) clone() *Window {
	if w == nil {
		return nil
	}
	cp := *w
	cp.Turns = append([]Turn(nil), w.Turns...)
	return &cp
}

func (w *Window) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(w.LastActivity) > timeout
}

func (w *Window) push(t Turn) {
	w.Turns = append(w.Turns, t)
	w.TotalWordCount += t.WordCount
}

// trim drops the oldest turns until the window satisfies both bounds.
// The word bound never shrinks the window below cfg.MinTurns.
func (w *Window) trim(cfg Config) {
	drop := 0
	words := w.TotalWordCount
	for len(w.Turns)-drop > cfg.MaxTurns {
		words -= w.Turns[drop].WordCount
		drop++
	}
	for words > cfg.MaxWords && len(w.Turns)-drop > cfg.MinTurns {
		words -= w.Turns[drop].WordCount
		drop++
	}
	if drop == 0 {
		return
	}
	w.Turns = append([]Turn(nil), w.Turns[drop:]...)
	w.TotalWordCount = words
}

// CountWords counts whitespace-delimited tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// HistoryMessage is a persisted message used to seed a window.
type HistoryMessage struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// HistorySource loads the most recent persisted messages for a key, oldest first.
type HistorySource interface {
	RecentHistory(ctx context.Context, userID uuid.UUID, topic string, limit int) ([]HistoryMessage, error)
}
