package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/studybuddy-platform/studybuddy/internal/api"
	"github.com/studybuddy-platform/studybuddy/internal/assistant"
	"github.com/studybuddy-platform/studybuddy/internal/auth"
	"github.com/studybuddy-platform/studybuddy/internal/chat"
	"github.com/studybuddy-platform/studybuddy/internal/metrics"
)

// SessionResolver returns a session owned by the user or chat.ErrSessionNotFound.
type SessionResolver interface {
	GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*chat.Session, error)
}

type Responder interface {
	HandleMessage(ctx context.Context, session *chat.Session, text string, onChunk func(string)) (*assistant.Reply, error)
}

// Hub tracks every open connection by user so that all of a user's tabs
// joined to a session see the same stream.
type Hub struct {
	tokens    auth.TokenValidator
	sessions  SessionResolver
	responder Responder
	origins   []string

	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{}
}

func NewHub(tokens auth.TokenValidator, sessions SessionResolver, responder Responder, allowedOrigins []string) *Hub {
	return &Hub{
		tokens:    tokens,
		sessions:  sessions,
		responder: responder,
		origins:   originPatterns(allowedOrigins),
		clients:   make(map[uuid.UUID]map[*client]struct{}),
	}
}

// originPatterns strips schemes; websocket.Accept matches on host only.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// ServeHTTP authenticates with the token query parameter (browsers cannot
// set headers on websocket requests) or a bearer header, then upgrades.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r)
	}
	if token == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		api.HandleError(w, api.ErrInvalidToken)
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	// The server's read and write timeouts would otherwise cut long-lived connections.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("accepting websocket", "error", err, "user_id", userID)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newClient(h, conn, userID, cancel)
	h.register(c)
	defer h.unregister(c)

	go c.writePump(ctx)
	err = c.readPump(ctx)

	status := websocket.CloseStatus(err)
	if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
		slog.Debug("websocket closed", "error", err, "user_id", userID)
	}
	c.close(websocket.StatusNormalClosure, "")
	c.inflight.Wait()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	metrics.WebsocketConnections.Inc()
	slog.Debug("websocket client registered", "user_id", c.userID)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	metrics.WebsocketConnections.Dec()
}

// publish delivers ev to every connection of userID joined to sessionID,
// except skip.
func (h *Hub) publish(userID, sessionID uuid.UUID, ev Event, skip *client) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		if c != skip && c.joined(sessionID) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(ev)
	}
}

// Close drops every connection. Used at shutdown since hijacked
// connections outlive http.Server.Shutdown.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}
}
