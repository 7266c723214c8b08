// Package realtime fans row-level change events out to websocket subscribers.
//
// Each connection subscribes to one table, optionally narrowed by event type
// and a "column=eq.value" row filter. An event is only delivered to
// connections whose identity is in the event's audience.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/mschirtzinger/goalkeeper/internal/schema"
)

// MessageType identifies a frame on the realtime feed.
type MessageType string

const (
	// MessageTypeSubscribed acknowledges that the subscription is live.
	MessageTypeSubscribed MessageType = "subscribed"

	// MessageTypeChange carries a schema.ChangeEvent.
	MessageTypeChange MessageType = "change"
)

// Message is one frame sent to a subscriber.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Subscription is what a connection asked to receive.
type Subscription struct {
	Identity string
	Table    string
	Event    schema.EventType
	Filter   schema.RowFilter
}

// Matches reports whether ev should be delivered under s.
func (s Subscription) Matches(ev schema.ChangeEvent) bool {
	return ev.Table == s.Table &&
		s.Event.Matches(ev.Event) &&
		ev.VisibleTo(s.Identity) &&
		s.Filter.Matches(ev)
}

// Config holds hub configuration.
type Config struct {
	// BufferSize is the capacity of the publish queue (default: 100)
	BufferSize int

	// WriteTimeout bounds each frame write (default: 5s)
	WriteTimeout time.Duration

	// Logger for hub activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BufferSize:   100,
		WriteTimeout: 5 * time.Second,
		Logger:       log.New(os.Stderr, "[realtime] ", log.LstdFlags),
	}
}

type client struct {
	id   string
	conn *websocket.Conn
	sub  Subscription
}

// Hub manages subscriber connections and delivers published events.
type Hub struct {
	config *Config

	clients   map[*client]struct{}
	clientsMu sync.RWMutex

	broadcast chan schema.ChangeEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a hub. Call Start before publishing.
func NewHub(config *Config) *Hub {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		config:    config,
		clients:   make(map[*client]struct{}),
		broadcast: make(chan schema.ChangeEvent, config.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the delivery loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.broadcastLoop()
}

// Stop closes every connection and waits for the hub goroutines.
func (h *Hub) Stop() {
	h.cancel()

	h.clientsMu.Lock()
	for c := range h.clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, c)
	}
	h.clientsMu.Unlock()

	h.wg.Wait()
}

// Publish queues events for delivery. Events are dropped with a warning
// when the queue is full.
func (h *Hub) Publish(events ...schema.ChangeEvent) {
	for _, ev := range events {
		select {
		case <-h.ctx.Done():
			return
		default:
		}
		select {
		case h.broadcast <- ev:
		default:
			h.config.Logger.Printf("Warning: broadcast channel full, dropping %s on %s", ev.Event, ev.Table)
		}
	}
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case ev := <-h.broadcast:
			payload, err := json.Marshal(ev)
			if err != nil {
				h.config.Logger.Printf("Failed to marshal event: %v", err)
				continue
			}
			data, err := json.Marshal(Message{
				Type:      MessageTypeChange,
				Timestamp: time.Now(),
				Data:      payload,
			})
			if err != nil {
				h.config.Logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			h.clientsMu.RLock()
			targets := make([]*client, 0, len(h.clients))
			for c := range h.clients {
				if c.sub.Matches(ev) {
					targets = append(targets, c)
				}
			}
			h.clientsMu.RUnlock()

			for _, c := range targets {
				if err := h.write(c, data); err != nil {
					h.config.Logger.Printf("Failed to send to client %s: %v", c.id, err)
					h.removeClient(c)
				}
			}
		}
	}
}

func (h *Hub) write(c *client, data []byte) error {
	ctx, cancel := context.WithTimeout(h.ctx, h.config.WriteTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Serve upgrades the request to a websocket and registers the subscription.
// The connection stays registered until the peer goes away or Stop is called.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sub Subscription) {
	if h.ctx.Err() != nil {
		http.Error(w, "realtime hub stopped", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.config.Logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, sub: sub}

	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.clientsMu.Unlock()

	h.config.Logger.Printf("Client %s subscribed to %s as %s (total: %d)", c.id, sub.Table, sub.Identity, count)

	ack, err := json.Marshal(Message{Type: MessageTypeSubscribed, Timestamp: time.Now()})
	if err == nil {
		err = h.write(c, ack)
	}
	if err != nil {
		h.config.Logger.Printf("Failed to acknowledge client %s: %v", c.id, err)
		h.removeClient(c)
		return
	}

	h.wg.Add(1)
	go h.readLoop(c)
}

// readLoop detects disconnects. Subscribers never send data.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.removeClient(c)

	for {
		if _, _, err := c.conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(c *client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.clientsMu.Unlock()

	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	h.config.Logger.Printf("Client %s disconnected (total: %d)", c.id, count)
}

// ClientCount returns the number of live subscriptions.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
