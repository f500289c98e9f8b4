package broadcast

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// DefaultQueueSize is the number of outbound messages buffered per client.
const DefaultQueueSize = 32

// Client is one connected peer. Messages are queued on its send channel and
// written to the wire by the transport.
type Client struct {
	ID   string
	send chan []byte
}

// NewClient creates a client with a buffered send queue.
func NewClient(id string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Client{ID: id, send: make(chan []byte, queueSize)}
}

// Queue returns the channel the transport drains. It is closed when the
// client is unregistered.
func (c *Client) Queue() <-chan []byte {
	return c.send
}

// Hub routes messages to connected clients by connection id.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewHub creates a new broadcast hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Unregister removes a client and closes its queue.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.send)
	}
}

// Connected reports whether id is registered.
func (h *Hub) Connected(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send queues msg for one client. It reports false when the client is gone
// or its queue is full.
func (h *Hub) Send(id string, msg any) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode message", zap.Error(err))
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.enqueue(id, data)
}

// Broadcast queues msg for every listed client. Unknown ids are skipped.
func (h *Hub) Broadcast(ids []string, msg any) {
	if len(ids) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode message", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range ids {
		h.enqueue(id, data)
	}
}

// enqueue never blocks; a slow consumer loses messages instead of stalling
// the game. Caller holds h.mu.
func (h *Hub) enqueue(id string, data []byte) bool {
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		h.logger.Warn("send queue full, dropping message", zap.String("conn_id", id))
		return false
	}
}
