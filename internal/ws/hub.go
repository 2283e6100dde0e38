package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/procura/api/internal/notify"
	"github.com/sirupsen/logrus"
)

// EventNotification carries a notify.Notification payload.
const EventNotification = "notification"

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// sessionEvent routes an event to the watchers of one editing session
type sessionEvent struct {
	SessionID uuid.UUID
	Event     Event
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients by session ID
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Outbound messages to broadcast
	broadcast chan *sessionEvent

	// Closed once Run has returned
	done chan struct{}

	log logrus.FieldLogger
	mu  sync.RWMutex
}

// NewHub creates a new Hub instance. A nil logger uses the logrus
// standard logger.
func NewHub(logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *sessionEvent, 256),
		done:       make(chan struct{}),
		log:        logger,
	}
}

// Run starts the hub's main loop and returns when ctx is done.
// This should be called as a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.sessionID] == nil {
				h.rooms[client.sessionID] = make(map[*Client]bool)
			}
			h.rooms[client.sessionID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.log.WithError(err).WithField("session", event.SessionID.String()).Error("marshal websocket event")
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[event.SessionID] {
				select {
				case client.send <- message:
				default:
					// Send buffer full; drop the client.
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Watchers returns the number of clients subscribed to a session.
func (h *Hub) Watchers(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// BroadcastToSession queues an event for every client watching a session.
// It never blocks: the event is dropped when the queue is full or the hub
// has stopped. It reports whether the event was queued.
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, event Event) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.broadcast <- &sessionEvent{SessionID: sessionID, Event: event}:
		return true
	default:
		h.log.WithFields(logrus.Fields{
			"session": sessionID.String(),
			"type":    event.Type,
		}).Warn("websocket broadcast queue full, event dropped")
		return false
	}
}

// Notify implements notify.Sink.
func (h *Hub) Notify(_ context.Context, sessionID uuid.UUID, n notify.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		h.log.WithError(err).WithField("session", sessionID.String()).Error("marshal notification")
		return
	}
	h.BroadcastToSession(sessionID, Event{Type: EventNotification, Payload: payload})
}

// join registers a client unless the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters a client. It is a no-op once the hub has stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.rooms[client.sessionID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.sessionID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for client := range clients {
			h.removeLocked(client)
		}
	}
}
