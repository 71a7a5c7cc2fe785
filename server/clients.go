package server

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a connected UI client.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex // one writer at a time
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

// Send writes v as JSON.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// Respond sends a successful response to the request with id.
func (c *Client) Respond(id, responseType string, payload any) error {
	return c.Send(WebsocketResponse{ID: id, Type: responseType, Success: true, Payload: payload})
}

// SendError sends a structured error response.
func (c *Client) SendError(id, code, message string) error {
	return c.Send(WebsocketResponse{
		ID:      id,
		Type:    WSMessageTypeError,
		Success: false,
		Error:   message,
		Payload: map[string]string{"code": code},
	})
}

// clientSet tracks connected clients and broadcasts to them.
type clientSet struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	logger  *log.Logger
}

func newClientSet(logger *log.Logger) *clientSet {
	return &clientSet{clients: make(map[*Client]bool), logger: logger}
}

func (cs *clientSet) add(c *Client) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.clients[c] = true
}

func (cs *clientSet) remove(c *Client) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.clients, c)
}

func (cs *clientSet) count() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.clients)
}

// broadcast sends message to every client, dropping clients that fail.
func (cs *clientSet) broadcast(message WebsocketMessage) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for c := range cs.clients {
		if err := c.Send(message); err != nil {
			cs.logger.Printf("WebSocket write error: %v", err)
			c.conn.Close()
			delete(cs.clients, c)
		}
	}
}

func (cs *clientSet) closeAll() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for c := range cs.clients {
		c.conn.Close()
		delete(cs.clients, c)
	}
}
