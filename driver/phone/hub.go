// Package phone runs scan sessions on smartphones that connect to the agent
// over WebSocket and use their own NFC reader.
package phone

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var errUnknownPhone = errors.New("phone not registered")

// HubOptions configures a Hub.
type HubOptions struct {
	// DeviceTimeout drops phones that have been silent this long.
	DeviceTimeout   time.Duration
	CleanupInterval time.Duration
	ServerVersion   string
	Logger          *log.Logger
}

// Phone is a registered smartphone reader.
type Phone struct {
	ID           string
	Name         string
	Platform     string
	AppVersion   string
	Capabilities DeviceCapabilities
	RegisteredAt time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	lastSeen time.Time
}

// LastSeen returns when the phone last sent anything.
func (p *Phone) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

func (p *Phone) touch() {
	p.mu.Lock()
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

func (p *Phone) send(msg Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteJSON(msg)
}

// endpoint receives the phone messages that belong to one session.
type endpoint interface {
	phoneActive()
	phoneScanned(TagScannedPayload)
	phoneError(SessionErrorPayload)
	phoneGone(err error)
}

type binding struct {
	phoneID string
	ep      endpoint
}

// Hub accepts phone connections, keeps the registry of phones and routes
// session messages to the sessions that own them.
type Hub struct {
	opts     HubOptions
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	phones   map[string]*Phone
	order    []string // registration order
	sessions map[string]binding

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub creates a Hub and starts its cleanup routine. Call Close to stop it.
func NewHub(opts HubOptions) *Hub {
	if opts.DeviceTimeout <= 0 {
		opts.DeviceTimeout = DeviceTimeout
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = CleanupInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	h := &Hub{
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // phones on the LAN have no meaningful origin
			},
		},
		phones:   make(map[string]*Phone),
		sessions: make(map[string]binding),
		stopChan: make(chan struct{}),
	}
	h.wg.Add(1)
	go h.cleanupRoutine()
	return h
}

// Close stops the cleanup routine and disconnects every phone.
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
		h.wg.Wait()

		h.mu.RLock()
		for _, p := range h.phones {
			p.conn.Close()
		}
		h.mu.RUnlock()
	})
}

// Phones returns the registered phones in registration order.
func (h *Hub) Phones() []*Phone {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Phone, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.phones[id])
	}
	return out
}

// Reader returns the most recently registered phone that can read tags.
func (h *Hub) Reader() *Phone {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := len(h.order) - 1; i >= 0; i-- {
		if p := h.phones[h.order[i]]; p.Capabilities.CanRead {
			return p
		}
	}
	return nil
}

func (h *Hub) attach(sessionID string, p *Phone, ep endpoint) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.phones[p.ID] != p {
		return errUnknownPhone
	}
	h.sessions[sessionID] = binding{phoneID: p.ID, ep: ep}
	return nil
}

func (h *Hub) detach(sessionID string) {
	h.mu.Lock()
	delete(h.sessions, sessionID)
	h.mu.Unlock()
}

func (h *Hub) lookup(sessionID, phoneID string) (endpoint, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.sessions[sessionID]
	if !ok || b.phoneID != phoneID {
		return nil, false
	}
	return b.ep, true
}

func (h *Hub) register(conn *websocket.Conn, req RegisterDeviceRequest) *Phone {
	now := time.Now()
	p := &Phone{
		ID:           uuid.NewString(),
		Name:         req.DeviceName,
		Platform:     req.Platform,
		AppVersion:   req.AppVersion,
		Capabilities: req.Capabilities,
		RegisteredAt: now,
		conn:         conn,
		lastSeen:     now,
	}

	h.mu.Lock()
	h.phones[p.ID] = p
	h.order = append(h.order, p.ID)
	h.mu.Unlock()

	h.logger.Printf("Registered phone: %s (%s, %s)", p.Name, p.ID, p.Platform)
	return p
}

// unregister removes a phone and fails the sessions running on it.
func (h *Hub) unregister(p *Phone) {
	h.mu.Lock()
	delete(h.phones, p.ID)
	for i, id := range h.order {
		if id == p.ID {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	var orphaned []endpoint
	for sid, b := range h.sessions {
		if b.phoneID == p.ID {
			orphaned = append(orphaned, b.ep)
			delete(h.sessions, sid)
		}
	}
	h.mu.Unlock()

	h.logger.Printf("Unregistered phone: %s (%s)", p.Name, p.ID)
	for _, ep := range orphaned {
		ep.phoneGone(fmt.Errorf("phone %s disconnected", p.Name))
	}
}

func (h *Hub) cleanupRoutine() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case <-ticker.C:
			h.cleanupInactive()
		}
	}
}

// cleanupInactive closes silent phones; their read loops unregister them.
func (h *Hub) cleanupInactive() {
	h.mu.RLock()
	var stale []*Phone
	for _, p := range h.phones {
		if time.Since(p.LastSeen()) > h.opts.DeviceTimeout {
			stale = append(stale, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range stale {
		h.logger.Printf("Phone timed out: %s (%s)", p.Name, p.ID)
		p.conn.Close()
	}
}

// ServeHTTP upgrades a phone connection, waits for registerDevice and then
// serves the phone until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()
	h.logger.Printf("Phone connected from %s", r.RemoteAddr)

	req, err := readRequest(conn)
	if err != nil {
		h.logger.Printf("Failed to read registration: %v", err)
		sendError(conn, "", "PARSE_ERROR", "Invalid message format")
		return
	}
	if req.Type != MessageTypeRegisterDevice {
		sendError(conn, req.ID, "INVALID_MESSAGE_TYPE", fmt.Sprintf("Expected '%s' message", MessageTypeRegisterDevice))
		return
	}

	var reg RegisterDeviceRequest
	if err := json.Unmarshal(req.Payload, &reg); err != nil {
		sendError(conn, req.ID, "INVALID_PAYLOAD", "Invalid registration request format")
		return
	}
	if reg.DeviceName == "" {
		sendError(conn, req.ID, "INVALID_REQUEST", "Device name is required")
		return
	}
	if reg.Platform != "ios" && reg.Platform != "android" {
		sendError(conn, req.ID, "INVALID_REQUEST", "Platform must be 'ios' or 'android'")
		return
	}

	p := h.register(conn, reg)
	defer h.unregister(p)

	if err := p.send(Message{
		ID:      req.ID,
		Type:    MessageTypeRegisterDeviceResponse,
		Success: true,
		Payload: RegisterDeviceResponse{DeviceID: p.ID, ServerVersion: h.opts.ServerVersion},
	}); err != nil {
		h.logger.Printf("Failed to answer registration: %v", err)
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		p.touch()

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			h.logger.Printf("Failed to parse message from %s: %v", p.Name, err)
			h.sendTo(p, "", "PARSE_ERROR", "Invalid message format")
			continue
		}
		h.handle(p, req)
	}
}

func (h *Hub) handle(p *Phone, req Request) {
	switch req.Type {
	case MessageTypeDeviceHeartbeat:
		p.send(Message{ID: req.ID, Type: MessageTypeDeviceHeartbeat, Success: true})

	case MessageTypeSessionActive:
		var ref SessionRef
		if ep, ok := h.route(p, req, &ref, &ref.SessionID); ok {
			ep.phoneActive()
		}

	case MessageTypeTagScanned:
		var scan TagScannedPayload
		if ep, ok := h.route(p, req, &scan, &scan.SessionID); ok {
			ep.phoneScanned(scan)
		}

	case MessageTypeSessionError:
		var serr SessionErrorPayload
		if ep, ok := h.route(p, req, &serr, &serr.SessionID); ok {
			ep.phoneError(serr)
		}

	default:
		h.logger.Printf("Unknown message type from %s: %s", p.Name, req.Type)
		h.sendTo(p, req.ID, "UNKNOWN_TYPE", fmt.Sprintf("Unknown message type: %s", req.Type))
	}
}

// route decodes a session message into v and finds the session it names.
func (h *Hub) route(p *Phone, req Request, v any, sessionID *string) (endpoint, bool) {
	if err := json.Unmarshal(req.Payload, v); err != nil {
		h.sendTo(p, req.ID, "INVALID_PAYLOAD", fmt.Sprintf("Invalid %s payload", req.Type))
		return nil, false
	}
	ep, ok := h.lookup(*sessionID, p.ID)
	if !ok {
		h.logger.Printf("%s from %s for unknown session %q", req.Type, p.Name, *sessionID)
		h.sendTo(p, req.ID, "UNKNOWN_SESSION", "No such session")
		return nil, false
	}
	return ep, true
}

func (h *Hub) sendTo(p *Phone, id, code, message string) {
	if err := p.send(errorMessage(id, code, message)); err != nil {
		h.logger.Printf("Failed to send error to %s: %v", p.Name, err)
	}
}

func readRequest(conn *websocket.Conn) (Request, error) {
	var req Request
	_, data, err := conn.ReadMessage()
	if err != nil {
		return req, err
	}
	err = json.Unmarshal(data, &req)
	return req, err
}

func errorMessage(id, code, message string) Message {
	return Message{
		ID:      id,
		Type:    MessageTypeError,
		Success: false,
		Error:   message,
		Payload: map[string]string{"code": code},
	}
}

// sendError writes an error before the phone is registered.
func sendError(conn *websocket.Conn, id, code, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	conn.WriteJSON(errorMessage(id, code, message))
}
