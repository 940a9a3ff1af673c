package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/studybuddy-platform/studybuddy/internal/assistant"
	"github.com/studybuddy-platform/studybuddy/internal/chat"
	"github.com/studybuddy-platform/studybuddy/internal/memory"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 256

	// pendingPerSession bounds messages waiting behind the one being answered.
	pendingPerSession = 16
)

type pendingMessage struct {
	session *chat.Session
	text    string
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID
	cancel context.CancelFunc

	send      chan Event
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	sessions map[uuid.UUID]*chat.Session
	queues   map[uuid.UUID]chan pendingMessage
	inflight sync.WaitGroup
}

func newClient(h *Hub, conn *websocket.Conn, userID uuid.UUID, cancel context.CancelFunc) *client {
	conn.SetReadLimit(maxMessageSize)
	return &client{
		hub:      h,
		conn:     conn,
		userID:   userID,
		cancel:   cancel,
		send:     make(chan Event, sendBuffer),
		done:     make(chan struct{}),
		sessions: make(map[uuid.UUID]*chat.Session),
		queues:   make(map[uuid.UUID]chan pendingMessage),
	}
}

func (c *client) close(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		_ = c.conn.Close(status, reason)
	})
}

// enqueue never blocks; a client that cannot keep up is disconnected.
func (c *client) enqueue(ev Event) {
	select {
	case <-c.done:
	case c.send <- ev:
	default:
		slog.Warn("websocket send buffer full, dropping client", "user_id", c.userID)
		c.close(websocket.StatusPolicyViolation, "slow consumer")
	}
}

func (c *client) joined(sessionID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[sessionID]
	return ok
}

func (c *client) session(sessionID uuid.UUID) *chat.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[sessionID]
}

func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := wsjson.Write(wctx, c.conn, ev)
			cancel()
			if err != nil {
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

func (c *client) readPump(ctx context.Context) error {
	for {
		var ev Event
		if err := wsjson.Read(ctx, c.conn, &ev); err != nil {
			return err
		}
		c.dispatch(ctx, ev)
	}
}

func (c *client) dispatch(ctx context.Context, ev Event) {
	sessionID, err := uuid.Parse(ev.SessionID)
	if err != nil {
		c.enqueue(errorEvent(ev.SessionID, "invalid session ID"))
		return
	}

	switch ev.Type {
	case EventJoin:
		c.join(ctx, sessionID)
	case EventLeave:
		c.mu.Lock()
		delete(c.sessions, sessionID)
		c.mu.Unlock()
		c.enqueue(Event{Type: EventLeft, SessionID: ev.SessionID})
	case EventTyping:
		if c.joined(sessionID) {
			c.hub.publish(c.userID, sessionID, Event{Type: EventTyping, SessionID: ev.SessionID, Role: memory.RoleUser}, c)
		}
	case EventMessage:
		session := c.session(sessionID)
		if session == nil {
			c.enqueue(errorEvent(ev.SessionID, "join the session before sending messages"))
			return
		}
		c.submit(ctx, pendingMessage{session: session, text: ev.Content})
	default:
		c.enqueue(errorEvent(ev.SessionID, "unknown event type"))
	}
}

// submit queues a message behind earlier ones for the same session. Each
// session has a single worker, so turns are answered and stored in the
// order they were read off the connection.
func (c *client) submit(ctx context.Context, msg pendingMessage) {
	c.mu.Lock()
	queue, ok := c.queues[msg.session.ID]
	if !ok {
		queue = make(chan pendingMessage, pendingPerSession)
		c.queues[msg.session.ID] = queue
		c.inflight.Add(1)
		go c.work(ctx, queue)
	}
	c.mu.Unlock()

	select {
	case queue <- msg:
	default:
		c.enqueue(errorEvent(msg.session.ID.String(), "too many pending messages"))
	}
}

func (c *client) work(ctx context.Context, queue <-chan pendingMessage) {
	defer c.inflight.Done()
	for {
		select {
		case <-c.done:
			return
		case msg := <-queue:
			c.answer(ctx, msg.session, msg.text)
		}
	}
}

func (c *client) join(ctx context.Context, sessionID uuid.UUID) {
	session, err := c.hub.sessions.GetSession(ctx, c.userID, sessionID)
	if err != nil {
		if !errors.Is(err, chat.ErrSessionNotFound) {
			slog.Error("resolving websocket session", "error", err, "session_id", sessionID)
		}
		c.enqueue(errorEvent(sessionID.String(), "session not found"))
		return
	}

	c.mu.Lock()
	c.sessions[sessionID] = session
	c.mu.Unlock()
	c.enqueue(Event{Type: EventJoined, SessionID: sessionID.String(), Data: session})
}

func (c *client) answer(ctx context.Context, session *chat.Session, text string) {
	sid := session.ID.String()
	c.hub.publish(c.userID, session.ID, Event{Type: EventTyping, SessionID: sid, Role: memory.RoleAssistant}, nil)

	reply, err := c.hub.responder.HandleMessage(ctx, session, text, func(chunk string) {
		c.hub.publish(c.userID, session.ID, Event{Type: EventChunk, SessionID: sid, Content: chunk}, nil)
	})
	if err != nil {
		switch {
		case errors.Is(err, assistant.ErrValidation):
			c.enqueue(errorEvent(sid, err.Error()))
		case errors.Is(err, assistant.ErrDocumentNotFound):
			c.enqueue(errorEvent(sid, "document not found"))
		default:
			slog.Error("handling websocket message", "error", err, "session_id", sid)
			c.enqueue(errorEvent(sid, "internal server error"))
		}
		return
	}

	c.hub.publish(c.userID, session.ID, Event{Type: EventReply, SessionID: sid, Data: reply}, nil)
}
