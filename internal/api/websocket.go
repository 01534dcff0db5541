package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/convertkit/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsSendBuffer = 256
)

// globalHub is the shared hub for job progress broadcasts. Job goroutines
// read it while Start may replace it, so it is only touched under hubMu.
var (
	hubMu     sync.RWMutex
	globalHub *Hub
)

// GlobalHub returns the running progress hub, or nil.
func GlobalHub() *Hub {
	hubMu.RLock()
	defer hubMu.RUnlock()
	return globalHub
}

// ensureHub starts the global hub if none is running and returns it.
func ensureHub() *Hub {
	hubMu.Lock()
	defer hubMu.Unlock()
	if globalHub == nil {
		globalHub = NewHub()
		go globalHub.Run()
	}
	return globalHub
}

// stopHub stops the global hub and clears it.
func stopHub() {
	hubMu.Lock()
	defer hubMu.Unlock()
	if globalHub != nil {
		globalHub.Stop()
		globalHub = nil
	}
}

// ProgressMessage is one job progress update sent to socket clients.
type ProgressMessage struct {
	Type      string                 `json:"type"` // "progress", "complete", "error", "cancelled"
	JobID     string                 `json:"job_id"`
	Progress  int                    `json:"progress"` // 0-100
	Done      int                    `json:"done,omitempty"`
	Total     int                    `json:"total,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Client is one socket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and fans broadcasts out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, wsSendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
}

// Run handles registration and broadcasting until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			logging.WebSocketEvent("client_connected", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logging.WebSocketEvent("client_disconnected", n)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop ends Run and closes every client.
func (h *Hub) Stop() {
	close(h.quit)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. It never blocks; when the queue
// is full the message is dropped.
func (h *Hub) Broadcast(msg ProgressMessage) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("failed to marshal progress message", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		logging.Warn("broadcast channel full, dropping message", "job_id", msg.JobID)
	}
}

func broadcast(msg ProgressMessage) {
	if hub := GlobalHub(); hub != nil {
		hub.Broadcast(msg)
	}
}

// BroadcastProgress reports rows done out of total for a job.
func BroadcastProgress(jobID string, done, total int) {
	broadcast(ProgressMessage{
		Type:     "progress",
		JobID:    jobID,
		Progress: percent(done, total),
		Done:     done,
		Total:    total,
	})
}

// BroadcastComplete reports a finished job.
func BroadcastComplete(jobID string, data map[string]interface{}) {
	broadcast(ProgressMessage{
		Type:     "complete",
		JobID:    jobID,
		Progress: 100,
		Message:  "conversion complete",
		Data:     data,
	})
}

// BroadcastError reports a failed or cancelled job.
func BroadcastError(jobID, kind, message string) {
	broadcast(ProgressMessage{
		Type:    kind,
		JobID:   jobID,
		Message: message,
	})
}

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}

// readPump drains client messages, enforcing the per-client message rate.
// The socket is broadcast-only so message contents are ignored.
func (c *Client) readPump(limiter *WebSocketRateLimiter) {
	defer func() {
		limiter.Unregister(c)
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn("websocket unexpected close", "error", err)
			}
			return
		}

		if !limiter.Allow(c) {
			logging.SecurityEvent("websocket_rate_limited", "websocket")
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Rate limit exceeded"),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}

// writePump sends queued broadcasts and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
