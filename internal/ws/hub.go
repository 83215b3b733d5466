package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"whatsapp-agent/backend/internal/models"
	"whatsapp-agent/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// subscribers only send keepalives
	maxMessageSize = 4 * 1024

	sendBuffer      = 64
	broadcastBuffer = 256
)

// Message is the envelope written to subscribers
type Message struct {
	Type    string `json:"type"`
	Content any    `json:"content,omitempty"`
}

var pongFrame, _ = json.Marshal(Message{Type: "pong"})

type subscriber struct {
	id      string
	subject string
	types   []string
	conn    *websocket.Conn
	send    chan []byte
	pong    chan struct{}
}

func (s *subscriber) wants(eventType string) bool {
	return len(s.types) == 0 || slices.Contains(s.types, eventType)
}

type broadcast struct {
	eventType string
	data      []byte
}

// Hub fans pipeline events out to connected subscribers.
// Subscribers may narrow the feed with ?types=approval.created,reply.sent.
type Hub struct {
	subscribers map[*subscriber]struct{}
	broadcast   chan broadcast
	register    chan *subscriber
	unregister  chan *subscriber
	done        chan struct{}
	stopOnce    sync.Once
	mu          sync.RWMutex
	upgrader    websocket.Upgrader
	log         *logger.Logger
}

// NewHub creates an idle hub; call Run to start delivering.
// Browser connections must come from one of origins; "*" or no origins allows any.
func NewHub(log *logger.Logger, origins ...string) *Hub {
	h := &Hub{
		subscribers: make(map[*subscriber]struct{}),
		broadcast:   make(chan broadcast, broadcastBuffer),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		done:        make(chan struct{}),
		log:         log,
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      originChecker(origins),
	}
	return h
}

func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}

// Run delivers broadcasts until ctx is cancelled, then disconnects every subscriber
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.subscribers {
				h.drop(s)
			}
			h.mu.Unlock()
			return

		case s := <-h.register:
			h.mu.Lock()
			h.subscribers[s] = struct{}{}
			h.mu.Unlock()
			h.log.Info("Event subscriber registered", "client_id", s.id, "subject", s.subject, "types", s.types)

		case s := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subscribers[s]; ok {
				h.drop(s)
				h.log.Info("Event subscriber unregistered", "client_id", s.id)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for s := range h.subscribers {
				if !s.wants(msg.eventType) {
					continue
				}
				select {
				case s.send <- msg.data:
				default:
					h.drop(s)
					h.log.Warn("Slow event subscriber disconnected", "client_id", s.id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with mu held
func (h *Hub) drop(s *subscriber) {
	delete(h.subscribers, s)
	close(s.send)
}

// Publish queues an event for subscribers. A full queue drops the event rather than block the caller.
func (h *Hub) Publish(event models.Event) {
	data, err := json.Marshal(Message{Type: "event", Content: event})
	if err != nil {
		h.log.LogError(err, "Failed to encode event", "type", event.Type)
		return
	}
	select {
	case h.broadcast <- broadcast{eventType: event.Type, data: data}:
	default:
		h.log.Warn("Event queue full, dropping event", "type", event.Type)
	}
}

// Clients returns the number of connected subscribers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// ServeWs upgrades the request and subscribes the connection to the event feed
func (h *Hub) ServeWs(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.LogError(err, "Error upgrading connection")
		return
	}

	s := &subscriber{
		id:      c.DefaultQuery("clientId", uuid.NewString()),
		subject: c.GetString("subject"),
		types:   splitTypes(c.Query("types")),
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		pong:    make(chan struct{}, 1),
	}

	select {
	case h.register <- s:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(s)
	go h.readPump(s)
}

func splitTypes(raw string) []string {
	var types []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}

// readPump processes control frames and answers application pings until the peer goes away
func (h *Hub) readPump(s *subscriber) {
	defer func() {
		select {
		case h.unregister <- s:
		case <-h.done:
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("Unexpected websocket close", "client_id", s.id, "error", err)
			}
			return
		}

		var msg Message
		if json.Unmarshal(data, &msg) == nil && msg.Type == "ping" {
			select {
			case s.pong <- struct{}{}:
			default:
			}
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		var (
			kind = websocket.TextMessage
			data []byte
		)
		select {
		case msg, ok := <-s.send:
			if !ok {
				s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data = msg
		case <-s.pong:
			data = pongFrame
		case <-ticker.C:
			kind = websocket.PingMessage
		}

		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}
