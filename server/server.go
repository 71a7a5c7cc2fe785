// Package server exposes scan sessions to UI clients over HTTP and
// WebSocket and lets phone readers attach to the agent.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dotside-studios/davi-nfc-sheet/buildinfo"
	"github.com/dotside-studios/davi-nfc-sheet/dispatch"
	"github.com/dotside-studios/davi-nfc-sheet/driver/phone"
	"github.com/dotside-studios/davi-nfc-sheet/session"
	"github.com/dotside-studios/davi-nfc-sheet/tls"
	"github.com/dotside-studios/davi-nfc-sheet/trigger"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
)

// Config holds the server configuration.
type Config struct {
	Port int
	// Flag is raised by scan requests.
	Flag *trigger.Flag
	// Queue and Controller answer status queries and cancel requests.
	// Controller is only touched on Queue.
	Queue      *dispatch.Queue
	Controller *session.Controller
	// PhoneHub, if set, serves /ws connections from phone readers.
	PhoneHub http.Handler
	// APISecret, if set, must be passed by clients as ?secret=.
	APISecret string
	MDNS      bool
	// TLS, if set, serves HTTPS and publishes the CA at /ca.pem.
	TLS    *tls.Files
	Logger *log.Logger
}

// Server manages the HTTP and WebSocket server.
type Server struct {
	config   Config
	logger   *log.Logger
	upgrader websocket.Upgrader
	registry *HandlerRegistry
	clients  *clientSet

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	mdnsServer *zeroconf.Server

	resultMu   sync.RWMutex
	lastResult *ScanResult
}

// New creates a server and registers the client handlers.
func New(config Config) (*Server, error) {
	if config.Flag == nil || config.Queue == nil || config.Controller == nil {
		return nil, errors.New("server: flag, queue and controller are required")
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	s := &Server{
		config: config,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		registry: NewHandlerRegistry(),
		clients:  newClientSet(logger),
	}

	if config.PhoneHub != nil {
		s.registry.HandleWebSocket(phone.IsDeviceConnection, func(w http.ResponseWriter, r *http.Request) bool {
			config.PhoneHub.ServeHTTP(w, r)
			return true
		})
	}
	// A sink lowers the flag after the controller has gone idle, so flag
	// changes get their own status broadcast.
	config.Flag.Observe(func(_, _ bool) {
		config.Queue.Async(s.broadcastStatus)
	})
	s.registry.Handle(WSMessageTypeScan, s.handleScan)
	s.registry.Handle(WSMessageTypeCancel, s.handleCancel)
	s.registry.Handle(WSMessageTypeStatus, s.handleStatus)
	return s, nil
}

// Handle registers an extra client message handler.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.registry.Handle(messageType, handler)
}

// Raise raises the activation flag. It reports false when the flag was
// already up, in which case no new scan starts.
func (s *Server) Raise() bool {
	return s.config.Flag.Set(true)
}

// Cancel invalidates the live session, if any.
func (s *Server) Cancel() bool {
	return s.config.Queue.Async(s.config.Controller.Cancel)
}

// Status returns the current scan status. It must not be called from the
// queue.
func (s *Server) Status() Status {
	var st Status
	s.config.Queue.Sync(func() { st = statusOf(s.config.Controller) })
	st.Raised = s.config.Flag.Get()
	return st
}

// LastResult returns the most recent scan result, or nil.
func (s *Server) LastResult() *ScanResult {
	s.resultMu.RLock()
	defer s.resultMu.RUnlock()
	return s.lastResult
}

// OnStateChange broadcasts the new status. Run it on the queue, e.g. as the
// controller's state change callback.
func (s *Server) OnStateChange(session.State) {
	s.broadcastStatus()
}

// broadcastStatus sends the current status to every client. It runs on the
// queue.
func (s *Server) broadcastStatus() {
	st := statusOf(s.config.Controller)
	st.Raised = s.config.Flag.Get()
	s.clients.broadcast(WebsocketMessage{Type: WSMessageTypeSessionStatus, Payload: st})
}

// OnResult records and broadcasts a scan outcome.
func (s *Server) OnResult(o session.Outcome, display string) {
	result := NewScanResult(o, display)
	s.resultMu.Lock()
	s.lastResult = &result
	s.resultMu.Unlock()

	s.clients.broadcast(WebsocketMessage{Type: WSMessageTypeScanResult, Payload: result})
}

// enableCORS is a middleware that adds CORS headers to responses
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func allow(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	apiV1 := "/api/v1"

	mux.HandleFunc(apiV1+"/health", enableCORS(allow(http.MethodGet, s.handleHealthCheck)))
	mux.HandleFunc(apiV1+"/status", enableCORS(allow(http.MethodGet, s.handleStatusRequest)))
	mux.HandleFunc(apiV1+"/scan", enableCORS(allow(http.MethodPost, s.handleScanRequest)))
	if s.config.TLS != nil {
		mux.HandleFunc("/ca.pem", allow(http.MethodGet, s.handleCACert))
	}
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(buildinfo.DisplayName + " running"))
	}))
	return mux
}

// Start listens on the configured port and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.config.Port, err)
	}
	srv := &http.Server{Handler: s.Handler()}
	s.httpServer, s.listener = srv, ln

	go func() {
		var err error
		if files := s.config.TLS; files != nil {
			s.logger.Printf("Serving HTTPS on %s", ln.Addr())
			err = srv.ServeTLS(ln, files.CertFile, files.KeyFile)
		} else {
			s.logger.Printf("Serving HTTP on %s", ln.Addr())
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("HTTP server error: %v", err)
		}
	}()

	if s.config.MDNS {
		if err := s.startMDNS(ln.Addr().(*net.TCPAddr).Port); err != nil {
			s.logger.Printf("Warning: failed to start mDNS service: %v", err)
			s.logger.Printf("Auto-discovery will not be available, but server will continue normally")
		}
	}
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops mDNS, disconnects clients and shuts the HTTP server down.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		s.logger.Printf("mDNS service stopped")
	}
	s.clients.closeAll()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Printf("Server shutdown error: %v", err)
		}
		s.httpServer, s.listener = nil, nil
	}
}

// startMDNS advertises the agent so phones can find it.
func (s *Server) startMDNS(port int) error {
	txtRecords := []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"path=/ws",
		"device_mode=?mode=device",
	}
	if s.config.TLS != nil {
		txtRecords = append(txtRecords, "tls=true")
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	s.mdnsServer = server
	s.logger.Printf("mDNS service registered: %s (%s) on port %d", MDNSServiceName, MDNSServiceType, port)
	return nil
}

// handleWebSocket routes phone connections to the phone hub and serves
// UI clients.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.registry.TryCustomWebSocketHandler(w, r) {
		return
	}

	if s.config.APISecret != "" && r.URL.Query().Get("secret") != s.config.APISecret {
		s.logger.Printf("WebSocket connection rejected: invalid API secret")
		http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}
	client := newClient(conn)
	s.logger.Printf("WebSocket connected from %s", r.RemoteAddr)

	defer func() {
		s.clients.remove(client)
		conn.Close()
		s.logger.Printf("WebSocket disconnected: %s", r.RemoteAddr)
	}()

	client.Send(WebsocketMessage{Type: WSMessageTypeSessionStatus, Payload: s.Status()})
	if last := s.LastResult(); last != nil {
		client.Send(WebsocketMessage{Type: WSMessageTypeScanResult, Payload: last})
	}
	s.clients.add(client)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req WebsocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			s.logger.Printf("Failed to parse WebSocket message: %v", err)
			client.SendError("", "PARSE_ERROR", "Invalid message format")
			continue
		}

		handler, ok := s.registry.Get(req.Type)
		if !ok {
			s.logger.Printf("Unknown message type: %s", req.Type)
			client.SendError(req.ID, "UNKNOWN_TYPE", fmt.Sprintf("Unknown message type: %s", req.Type))
			continue
		}
		if err := handler(r.Context(), client, req); err != nil {
			s.logger.Printf("Handler error for message type '%s': %v", req.Type, err)
		}
	}
}

func (s *Server) handleScan(ctx context.Context, c *Client, req WebsocketRequest) error {
	raised := s.Raise()
	return c.Respond(req.ID, WSMessageTypeScan, map[string]bool{"raised": raised})
}

func (s *Server) handleCancel(ctx context.Context, c *Client, req WebsocketRequest) error {
	if !s.Cancel() {
		return c.SendError(req.ID, "UNAVAILABLE", "Agent is shutting down")
	}
	return c.Respond(req.ID, WSMessageTypeCancel, nil)
}

func (s *Server) handleStatus(ctx context.Context, c *Client, req WebsocketRequest) error {
	return c.Respond(req.ID, WSMessageTypeStatus, s.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealthCheck serves GET /api/v1/health.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   buildinfo.FullVersion(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleStatusRequest serves GET /api/v1/status.
func (s *Server) handleStatusRequest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     s.Status(),
		"lastResult": s.LastResult(),
	})
}

// handleScanRequest serves POST /api/v1/scan.
func (s *Server) handleScanRequest(w http.ResponseWriter, r *http.Request) {
	if s.config.APISecret != "" && r.Header.Get("Authorization") != "Bearer "+s.config.APISecret {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	raised := s.Raise()
	writeJSON(w, http.StatusAccepted, map[string]bool{"raised": raised})
}

// handleCACert serves the local CA so phones can trust the agent.
func (s *Server) handleCACert(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.config.TLS.CACertFile)
}
