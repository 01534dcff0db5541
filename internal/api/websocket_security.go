package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/convertkit/internal/logging"
	"github.com/FocuswithJustin/convertkit/internal/server"
)

// WebSocketSecurityConfig holds the /ws connection policy.
type WebSocketSecurityConfig struct {
	Origins        server.CORSConfig // same origin policy as the REST API
	MaxMessageRate int               // messages per second per client
	MaxMessageSize int64             // bytes
	RequireAuth    bool
	Auth           AuthConfig
}

// WebSocketSecurityConfigFrom derives the socket policy from the server
// configuration.
func WebSocketSecurityConfigFrom(cfg Config) WebSocketSecurityConfig {
	wsCfg := WebSocketSecurityConfig{
		Origins:        server.CORSConfig{AllowedOrigins: cfg.AllowedOrigins},
		MaxMessageRate: cfg.WebSocket.MaxMessageRate,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		RequireAuth:    cfg.WebSocket.RequireAuth || cfg.Auth.Enabled,
		Auth:           cfg.Auth,
	}
	if wsCfg.MaxMessageRate <= 0 {
		wsCfg.MaxMessageRate = 10
	}
	if wsCfg.MaxMessageSize <= 0 {
		wsCfg.MaxMessageSize = 4096
	}
	return wsCfg
}

// WebSocketRateLimiter tracks message rates per client.
type WebSocketRateLimiter struct {
	clients map[*Client]*tokenBucket
	mu      sync.RWMutex
}

// NewWebSocketRateLimiter creates a new WebSocket rate limiter.
func NewWebSocketRateLimiter() *WebSocketRateLimiter {
	return &WebSocketRateLimiter{
		clients: make(map[*Client]*tokenBucket),
	}
}

// Register starts tracking client with a burst of twice the per-second rate.
func (rl *WebSocketRateLimiter) Register(client *Client, messagesPerSecond int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.clients[client] = newTokenBucket(float64(messagesPerSecond)*2, float64(messagesPerSecond))
}

// Unregister removes a client from rate limiting.
func (rl *WebSocketRateLimiter) Unregister(client *Client) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, client)
}

// Allow reports whether client may send another message. Unregistered
// clients are denied.
func (rl *WebSocketRateLimiter) Allow(client *Client) bool {
	rl.mu.RLock()
	bucket, exists := rl.clients[client]
	rl.mu.RUnlock()

	if !exists {
		return false
	}
	return bucket.allow()
}

// CheckOriginWithConfig returns an upgrader origin check. Unlike plain
// CORS, a socket without an Origin header is only accepted when every
// origin is allowed.
func CheckOriginWithConfig(config WebSocketSecurityConfig) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return config.Origins.AllowAll()
		}
		if !config.Origins.OriginAllowed(origin) {
			logging.SecurityEvent("websocket_origin_rejected", "websocket", "origin", origin)
			return false
		}
		return true
	}
}

// ValidateAuthForWebSocket checks authentication before the upgrade and
// returns a reason on failure. Browsers cannot set headers on a socket, so
// the key may also come from the api_key query parameter.
func ValidateAuthForWebSocket(r *http.Request, config WebSocketSecurityConfig) string {
	if !config.RequireAuth {
		return ""
	}
	if !config.Auth.Enabled {
		return "Authentication required but not configured"
	}

	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		apiKey = r.URL.Query().Get("api_key")
	}
	if apiKey == "" {
		return "Missing API key (X-API-Key header or api_key query parameter)"
	}
	if !constantTimeCompare(apiKey, config.Auth.APIKey) {
		return "Invalid API key"
	}
	return ""
}

// SecureWebSocketHandler upgrades /ws connections after checking auth and
// origin, and registers them with hub.
func SecureWebSocketHandler(hub *Hub, config WebSocketSecurityConfig, rateLimiter *WebSocketRateLimiter) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: wsWriteWait,
		CheckOrigin:      CheckOriginWithConfig(config),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil {
			respondError(w, http.StatusServiceUnavailable, "WEBSOCKET_UNAVAILABLE", "WebSocket hub not initialized")
			return
		}

		if authError := ValidateAuthForWebSocket(r, config); authError != "" {
			logging.SecurityEvent("websocket_unauthorized", "websocket",
				"client_ip", getClientIP(r),
				"reason", authError)
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", authError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response.
			logging.Warn("websocket upgrade failed", "error", err)
			return
		}
		conn.SetReadLimit(config.MaxMessageSize)

		client := &Client{
			hub:  hub,
			conn: conn,
			send: make(chan []byte, wsSendBuffer),
		}
		rateLimiter.Register(client, config.MaxMessageRate)
		hub.register <- client

		logging.Debug("websocket connection established",
			"client_ip", getClientIP(r),
			"origin", r.Header.Get("Origin"))

		go client.writePump()
		go client.readPump(rateLimiter)
	}
}
