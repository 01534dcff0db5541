// Package api provides the convertkit REST API server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/FocuswithJustin/convertkit/core/cas"
	"github.com/FocuswithJustin/convertkit/core/regexrun"
	"github.com/FocuswithJustin/convertkit/internal/logging"
	"github.com/FocuswithJustin/convertkit/internal/server"
)

// Version is reported by / and /health and by the CLI.
const Version = "0.1.0"

// Handler is the full middleware chain plus the background workers it
// owns. Close releases them.
type Handler struct {
	http.Handler
	limiter *RateLimiter
}

// Close stops the rate limiter's cleanup goroutine.
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

// NewHandler prepares server state for cfg and returns the full middleware
// chain. It starts the progress hub if it is not running yet.
func NewHandler(cfg Config) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ServerConfig = cfg

	store, err := cas.NewStore(filepath.Join(cfg.DataDir, "images"))
	if err != nil {
		return nil, fmt.Errorf("failed to open image store: %w", err)
	}
	blobStore = store

	if cfg.RegexCacheSize > 0 {
		regexRunner = regexrun.NewRunner(10*time.Minute, cfg.RegexCacheSize, 0)
	}

	globalJobStore.SetRetention(cfg.JobRetention.Duration)
	hub := ensureHub()

	mux := setupRoutes(hub, WebSocketSecurityConfigFrom(cfg))
	h := &Handler{}

	var handler http.Handler = server.SecurityHeaders(server.APICSPConfig(), mux)

	if cfg.Auth.Enabled {
		handler = AuthMiddleware(cfg.Auth, handler)
		logging.SecurityEvent("authentication_configured", "api",
			"enabled", true,
			"note", "API key required")
	} else {
		logging.SecurityEvent("authentication_configured", "api",
			"enabled", false,
			"note", "all requests allowed")
	}

	if cfg.RateLimitRequests > 0 {
		rateLimiter := NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitRequests,
			BurstSize:         cfg.RateLimitBurst,
		})
		handler = rateLimiter.Middleware(handler)
		h.limiter = rateLimiter
		logging.Info("rate limiting enabled",
			"requests_per_minute", cfg.RateLimitRequests,
			"burst_size", rateLimiter.config.BurstSize)
	}

	corsConfig := server.CORSConfig{AllowedOrigins: cfg.AllowedOrigins}
	handler = server.CORSMiddleware(corsConfig, handler)
	if corsConfig.AllowAll() {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins (*) - consider restricting for production")
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(cfg.AllowedOrigins))
	}

	if cfg.SlowRequest.Duration > 0 {
		handler = server.SlowRequestMiddleware(cfg.SlowRequest.Duration, handler)
	}

	h.Handler = logging.CombinedMiddleware(handler)
	return h, nil
}

// Start serves the API until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, cfg Config) error {
	handler, err := NewHandler(cfg)
	if err != nil {
		return err
	}
	defer handler.Close()
	defer stopHub()

	protocol, wsProtocol := "http", "ws"
	if cfg.TLS.Enabled {
		protocol, wsProtocol = "https", "wss"
		logging.Info("TLS enabled", "cert_file", cfg.TLS.CertFile)
	} else {
		logging.Warn("TLS disabled - using plain HTTP",
			"recommendation", "consider using TLS or reverse proxy for production")
	}
	absData, _ := filepath.Abs(cfg.DataDir)
	logging.ServerStartup("rest_api", protocol, cfg.Port,
		"websocket_protocol", wsProtocol,
		"data_dir", absData,
		"version", Version)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			errCh <- srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down", "reason", context.Cause(ctx))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// setupRoutes configures all HTTP routes.
func setupRoutes(hub *Hub, wsConfig WebSocketSecurityConfig) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/units", handleUnits)
	mux.HandleFunc("/convert", handleConvert)
	mux.HandleFunc("/convert/value", handleConvertValue)
	mux.HandleFunc("/hash", handleHash)
	mux.HandleFunc("/images", handleImages)
	mux.HandleFunc("/images/", handleImageByHash)
	mux.HandleFunc("/regex", handleRegex)
	mux.HandleFunc("/jobs", handleJobs)
	mux.HandleFunc("/jobs/", handleJobByID)
	mux.Handle("/ws", SecureWebSocketHandler(hub, wsConfig, NewWebSocketRateLimiter()))

	return mux
}
