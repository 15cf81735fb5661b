package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// EventType represents the type of real-time event
type EventType string

const (
	EventCatalogSnapshot EventType = "catalog.snapshot"
	EventCommandError    EventType = "command.error"
	EventPong            EventType = "pong"
)

// Event represents a real-time event. Seq orders catalog snapshots so clients
// can drop frames older than the last one seen.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Seq       uint64      `json:"seq,omitempty"`
	Data      interface{} `json:"data"`
}

// CommandHandler handles an inbound client message such as setTopic or setPage
type CommandHandler func(msgType string, data json.RawMessage) error

// Client represents a WebSocket client
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
	log        logrus.FieldLogger

	// Greeting builds the event sent to a client right after it connects
	Greeting func() *Event
	// Commands handles inbound messages other than ping
	Commands CommandHandler
}

// NewHub creates a new WebSocket hub
func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run starts the hub's main loop; it returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.WithField("clients", total).Debug("WebSocket client connected")
			// after registering, so no broadcast can slip between greeting and membership
			h.greet(client)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.WithField("clients", total).Debug("WebSocket client disconnected")

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Broadcast sends an event to all connected clients
func (h *Hub) Broadcast(event Event) {
	data, err := encode(event)
	if err != nil {
		h.log.WithError(err).Warn("Failed to marshal event")
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// WebSocketHandler handles WebSocket connections
func (h *Hub) WebSocketHandler(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return nil
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()

	return nil
}

// greet queues the Greeting event for a newly registered client. Only Run calls it.
func (h *Hub) greet(client *Client) {
	if h.Greeting == nil {
		return
	}
	ev := h.Greeting()
	if ev == nil {
		return
	}
	data, err := encode(*ev)
	if err != nil {
		h.log.WithError(err).Warn("Failed to marshal greeting")
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func encode(event Event) ([]byte, error) {
	event.Timestamp = time.Now().Unix()
	return json.Marshal(event)
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Debug("WebSocket error")
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// one event per frame so clients can decode each message on its own
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply queues a message for this client only, dropping it if the buffer is full
func (c *Client) reply(event Event) {
	data, err := encode(event)
	if err != nil {
		return
	}
	c.hub.mutex.RLock()
	defer c.hub.mutex.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// handleMessage processes incoming WebSocket messages
func (c *Client) handleMessage(message []byte) {
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	if msg.Type == "ping" {
		c.reply(Event{Type: EventPong})
		return
	}

	if c.hub.Commands == nil {
		return
	}
	if err := c.hub.Commands(msg.Type, msg.Data); err != nil {
		c.reply(Event{Type: EventCommandError, Data: map[string]string{
			"command": msg.Type,
			"error":   err.Error(),
		}})
	}
}
