package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// extensionSchemes are the origins browsers use for extension pages.
var extensionSchemes = []string{"chrome-extension://", "moz-extension://", "safari-web-extension://"}

// AllowOrigin accepts browser extensions, explicitly listed origins and
// clients that send no Origin at all (local processes, not web pages).
func AllowOrigin(origin string, extra []string) bool {
	if origin == "" {
		return true
	}
	for _, s := range extensionSchemes {
		if strings.HasPrefix(origin, s) {
			return true
		}
	}
	for _, o := range extra {
		if o == origin {
			return true
		}
	}
	return false
}

// Server exposes a Handler over websocket. Every text frame is one JSON
// Request and gets exactly one JSON Response.
type Server struct {
	handler  Handler
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger attaches a logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// WithAllowedOrigins accepts additional exact origins.
func WithAllowedOrigins(origins ...string) ServerOption {
	return func(s *Server) {
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return AllowOrigin(r.Header.Get("Origin"), origins)
		}
	}
}

// NewServer creates a Server for h.
func NewServer(h Handler, opts ...ServerOption) *Server {
	s := &Server{
		handler: h,
		log:     zap.NewNop(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return AllowOrigin(r.Header.Get("Origin"), nil)
			},
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ServeHTTP upgrades the connection and serves requests until the client
// disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("origin", r.Header.Get("Origin")), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	defer wg.Wait()
	write := func(resp Response) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(resp); err != nil {
			s.log.Warn("failed to write response", zap.String("request_id", resp.ID), zap.Error(err))
		}
	}

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("connection closed", zap.Error(err))
			}
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			write(s.handler.Handle(ctx, req))
		}()
	}
}

// ListenAndServe serves on addr until ctx is cancelled. addr must be a
// loopback address.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("refusing to listen on non-loopback address %q", addr)
	}

	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("bridge listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to shut down bridge: %w", err)
		}
		return nil
	}
}
