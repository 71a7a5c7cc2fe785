package server

import (
	"encoding/json"
	"time"

	"github.com/dotside-studios/davi-nfc-sheet/nfc"
	"github.com/dotside-studios/davi-nfc-sheet/session"
)

// WebsocketMessage is a server push to clients.
type WebsocketMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebsocketRequest is an incoming request from a client.
type WebsocketRequest struct {
	ID      string          `json:"id,omitempty"` // client-generated, echoed in the response
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WebsocketResponse answers a WebsocketRequest.
type WebsocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Status describes the scan state.
type Status struct {
	State        string `json:"state"`
	Active       bool   `json:"active"`
	Raised       bool   `json:"raised"` // activation flag
	SessionID    string `json:"sessionID,omitempty"`
	AlertMessage string `json:"alertMessage,omitempty"`
}

// ScanResult is the outcome of one scan as shown to clients.
type ScanResult struct {
	Kind      string                    `json:"kind"`
	Display   string                    `json:"display"`
	Messages  []*nfc.NDEFMessagePayload `json:"messages,omitempty"`
	Error     string                    `json:"error,omitempty"`
	ErrorCode string                    `json:"errorCode,omitempty"`
	At        time.Time                 `json:"at"`
}

// NewScanResult converts an outcome and its formatted display string.
func NewScanResult(o session.Outcome, display string) ScanResult {
	r := ScanResult{
		Kind:    o.Kind.String(),
		Display: display,
		At:      time.Now(),
	}
	if len(o.Messages) > 0 {
		r.Messages = nfc.MessagesToPayload(o.Messages)
	}
	if o.Err != nil {
		r.Error = o.Err.Error()
		if code := session.CodeOf(o.Err); code != 0 {
			r.ErrorCode = code.String()
		}
	}
	return r
}

func statusOf(c *session.Controller) Status {
	st := Status{State: c.State().String()}
	if h := c.Handle(); h != nil {
		st.Active = true
		st.SessionID = h.ID()
		st.AlertMessage = h.AlertMessage()
	}
	return st
}
