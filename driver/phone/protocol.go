package phone

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dotside-studios/davi-nfc-sheet/nfc"
)

// Timing defaults
const (
	DeviceTimeout     = 30 * time.Second // inactivity before a phone is dropped
	HeartbeatInterval = 10 * time.Second // expected heartbeat frequency
	CleanupInterval   = 15 * time.Second
	writeTimeout      = 5 * time.Second
)

// WebSocket message types exchanged with phone readers
const (
	MessageTypeRegisterDevice         = "registerDevice"
	MessageTypeRegisterDeviceResponse = "registerDeviceResponse"
	MessageTypeDeviceHeartbeat        = "deviceHeartbeat"
	MessageTypeBeginSession           = "beginSession"
	MessageTypeSessionActive          = "sessionActive"
	MessageTypeTagScanned             = "tagScanned"
	MessageTypeSessionError           = "sessionError"
	MessageTypeAlertMessage           = "alertMessage"
	MessageTypeEndSession             = "endSession"
	MessageTypeError                  = "error"
)

// Session error codes a phone may report
const (
	SessionErrorTimeout      = "timeout"
	SessionErrorUserCanceled = "userCanceled"
	SessionErrorReadFailed   = "readFailed"
	SessionErrorMultipleTags = "multipleTags"
	SessionErrorSystemBusy   = "systemBusy"
	SessionErrorUnsupported  = "unsupported"
)

// Request is an incoming message envelope. Payload is decoded once the
// type is known.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is an outgoing message envelope.
type Message struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DeviceCapabilities describes what a phone can do.
type DeviceCapabilities struct {
	CanRead bool   `json:"canRead"`
	NFCType string `json:"nfcType,omitempty"`
}

// RegisterDeviceRequest is sent by a phone right after connecting.
type RegisterDeviceRequest struct {
	DeviceName   string             `json:"deviceName"`
	Platform     string             `json:"platform"` // "ios" or "android"
	AppVersion   string             `json:"appVersion"`
	Capabilities DeviceCapabilities `json:"capabilities"`
}

// RegisterDeviceResponse answers a successful registration.
type RegisterDeviceResponse struct {
	DeviceID      string `json:"deviceID"`
	ServerVersion string `json:"serverVersion"`
}

// BeginSessionPayload asks a phone to open its NFC reading sheet.
type BeginSessionPayload struct {
	SessionID    string `json:"sessionID"`
	AlertMessage string `json:"alertMessage"`
	TimeoutMs    int64  `json:"timeoutMs"`
}

// SessionRef identifies the session a phone message belongs to.
type SessionRef struct {
	SessionID string `json:"sessionID"`
}

// TagScannedPayload carries the messages a phone read from a tag.
type TagScannedPayload struct {
	SessionID    string                    `json:"sessionID"`
	UID          string                    `json:"uid,omitempty"`
	NDEFMessages []*nfc.NDEFMessagePayload `json:"ndefMessages"`
}

// SessionErrorPayload reports why a phone's session ended.
type SessionErrorPayload struct {
	SessionID string `json:"sessionID"`
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	TagCount  int    `json:"tagCount,omitempty"` // multipleTags only
}

// AlertMessagePayload updates the text shown on the phone's sheet.
type AlertMessagePayload struct {
	SessionID    string `json:"sessionID"`
	AlertMessage string `json:"alertMessage"`
}

// IsDeviceConnection determines if a request is from a phone reader.
func IsDeviceConnection(r *http.Request) bool {
	if r.Header.Get("X-Device-Mode") == "true" {
		return true
	}
	return r.URL.Query().Get("mode") == "device"
}
