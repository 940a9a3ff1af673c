package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

const StreamActivity = "STUDYBUDDY_ACTIVITY"

// Activity subjects are studybuddy.activity.<event type>.
const SubjectActivityPrefix = "studybuddy.activity"

// ActivityEvent records something a user did: a message answered or
// deflected, a document uploaded, a quiz result recorded.
type ActivityEvent struct {
	ID           uuid.UUID         `json:"id"`
	UserID       uuid.UUID         `json:"user_id"`
	EventType    string            `json:"event_type"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}
