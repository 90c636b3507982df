// Package stream pushes live monitoring events to websocket subscribers.
package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"sitewatch/internal/logger"
	"sitewatch/internal/models"
	"sitewatch/internal/monitor"
)

// Event types carried in Event.Type.
const (
	EventIncident = "incident"
	EventCycle    = "cycle"
)

// Event is one message on the stream.
type Event struct {
	Type string          `json:"type"`
	At   int64           `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

const broadcastBuffer = 64

// Hub fans events out to every subscriber. Publishing never blocks: when
// the hub falls behind, events are dropped.
type Hub struct {
	mu        sync.RWMutex
	clients   map[Subscriber]struct{}
	register  chan Subscriber
	unreg     chan Subscriber
	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

var _ monitor.Observer = (*Hub)(nil)

// NewHub creates a running Hub.
func NewHub(log *slog.Logger) *Hub {
	h := &Hub{
		clients:   make(map[Subscriber]struct{}),
		register:  make(chan Subscriber),
		unreg:     make(chan Subscriber),
		broadcast: make(chan []byte, broadcastBuffer),
		done:      make(chan struct{}),
		log:       logger.OrDefault(log).With("component", "stream"),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unreg:
			h.drop(c)
		case payload := <-h.broadcast:
			h.mu.RLock()
			clients := make([]Subscriber, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()
			for _, c := range clients {
				if err := c.Send(payload); err != nil {
					h.drop(c)
				}
			}
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				c.Close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) drop(c Subscriber) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Register adds a subscriber.
func (h *Hub) Register(c Subscriber) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister removes a subscriber and closes it.
func (h *Hub) Unregister(c Subscriber) {
	select {
	case h.unreg <- c:
	case <-h.done:
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues an event for every subscriber.
func (h *Hub) Publish(eventType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.Error("failed to encode stream event", "type", eventType, "error", err)
		return
	}
	payload, err := json.Marshal(Event{Type: eventType, At: time.Now().UnixMilli(), Data: raw})
	if err != nil {
		h.log.Error("failed to encode stream event", "type", eventType, "error", err)
		return
	}
	select {
	case <-h.done:
	case h.broadcast <- payload:
	default:
		h.log.Warn("stream backlog full, dropping event", "type", eventType)
	}
}

// IncidentRecorded publishes inc.
func (h *Hub) IncidentRecorded(inc models.Incident) {
	h.Publish(EventIncident, inc)
}

// CycleCompleted publishes the cycle report.
func (h *Hub) CycleCompleted(r monitor.Report) {
	h.Publish(EventCycle, r)
}

// Close disconnects every subscriber and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
