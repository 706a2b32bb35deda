// Package ws pushes real-time portal events over WebSockets. Clients
// subscribe to topics such as a telemedicine session or their own user
// feed and receive events broadcast to those topics.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/auth"
)

// SessionTopic returns the topic for a telemedicine session.
func SessionTopic(sessionID uuid.UUID) string {
	return "telemedicine/" + sessionID.String()
}

// UserTopic returns the per-user event topic.
func UserTopic(userID uuid.UUID) string {
	return "user/" + userID.String()
}

// Event represents a real-time event pushed to subscribed clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an Event with the current timestamp, marshaling payload
// into the Data field. A nil payload leaves Data empty.
func NewEvent(eventType, topic string, payload any) Event {
	ev := Event{
		Type:      eventType,
		Topic:     topic,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Data = data
		}
	}
	return ev
}

// ClientMessage represents an inbound message from a WebSocket client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Publisher defines the interface domain services use to emit events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client represents a single WebSocket connection. UserID and Roles
// come from the authenticated upgrade request and gate which topics the
// client may follow.
type Client struct {
	ID     string
	UserID string
	Roles  []string
	Topics []string
	Send   chan []byte
}

// TopicAuthorizer reports whether a user may subscribe to a topic the
// hub cannot vet on its own, such as a telemedicine room.
type TopicAuthorizer func(ctx context.Context, userID, topic string) bool

// Hub is the central connection manager that tracks clients and their
// topic subscriptions. All operations are safe for concurrent use.
type Hub struct {
	logger     zerolog.Logger
	authorizer TopicAuthorizer

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
}

// NewHub creates a Hub ready to manage WebSocket clients.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger.With().Str("component", "ws").Logger(),
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

// SetTopicAuthorizer wires the check consulted for topics outside the
// client's own user feed.
func (h *Hub) SetTopicAuthorizer(a TopicAuthorizer) { h.authorizer = a }

// allowed reports whether the client may follow the topic. A user/
// topic is only open to its owner; everything else goes through the
// authorizer. Admins may follow anything.
func (h *Hub) allowed(client *Client, topic string) bool {
	if auth.HasRole(client.Roles, auth.RoleAdmin) {
		return true
	}
	if strings.HasPrefix(topic, "user/") {
		return topic == "user/"+client.UserID
	}
	if h.authorizer != nil {
		return h.authorizer(context.Background(), client.UserID, topic)
	}
	return false
}

// Register adds a client to the hub and subscribes it to its initial
// topics. Topics the client may not follow are dropped.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	kept := client.Topics[:0]
	for _, topic := range client.Topics {
		if !h.allowed(client, topic) {
			h.logger.Warn().Str("user_id", client.UserID).Str("topic", topic).Msg("subscription denied")
			continue
		}
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
		kept = append(kept, topic)
	}
	client.Topics = kept
}

// Unregister removes a client from the hub and all topic subscriptions,
// and closes the client's Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for _, topic := range client.Topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}

	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds topics to an already-registered client. Topics the
// client may not follow are dropped.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if !h.allowed(client, topic) {
			h.logger.Warn().Str("user_id", client.UserID).Str("topic", topic).Msg("subscription denied")
			continue
		}
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
		client.Topics = append(client.Topics, topic)
	}
}

// Unsubscribe removes topics from an already-registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		removeSet[t] = struct{}{}
	}

	for _, topic := range topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage handles an inbound ClientMessage.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Broadcast sends an event to all clients subscribed to the given topic.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	subscribers, ok := h.clients[topic]
	if !ok {
		return
	}

	for client := range subscribers {
		select {
		case client.Send <- data:
		default:
			// Client buffer full; skip to avoid blocking.
		}
	}
}

// Publish implements Publisher by broadcasting to the event's topic.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Topic, event)
	return nil
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to a topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler handles HTTP-to-WebSocket upgrades and message routing.
type Handler struct {
	hub *Hub
}

// NewHandler creates a handler bound to the given Hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes registers the WebSocket endpoint on the provided group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
}

// HandleConnect upgrades an HTTP connection to WebSocket, registers the
// client with the hub, and starts read/write pumps. The request must
// already carry an authenticated identity.
func (h *Handler) HandleConnect(c echo.Context) error {
	ctx := c.Request().Context()
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Roles:  auth.RolesFromContext(ctx),
		Topics: []string{},
		Send:   make(chan []byte, 256),
	}

	h.hub.Register(client)

	go h.writePump(client, conn)
	go h.readPump(client, conn)

	return nil
}

func (h *Handler) readPump(client *Client, conn *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed messages.
		}

		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, conn *gorillawebsocket.Conn) {
	defer conn.Close()

	for message := range client.Send {
		if err := conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}
