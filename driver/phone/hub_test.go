package phone

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inbound is a message as a phone receives it.
type inbound struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

// fakePhone speaks the phone side of the protocol.
type fakePhone struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func newTestHub(t *testing.T, opts HubOptions) (*Hub, string) {
	t.Helper()
	hub := NewHub(opts)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?mode=device"
}

func dialPhone(t *testing.T, url string) *fakePhone {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &fakePhone{t: t, conn: conn}
}

func registerPhone(t *testing.T, url, name string, canRead bool) *fakePhone {
	t.Helper()
	p := dialPhone(t, url)
	p.send("reg-1", MessageTypeRegisterDevice, RegisterDeviceRequest{
		DeviceName:   name,
		Platform:     "android",
		AppVersion:   "1.2.0",
		Capabilities: DeviceCapabilities{CanRead: canRead, NFCType: "ndef"},
	})
	resp := p.expect(MessageTypeRegisterDeviceResponse)
	require.True(t, resp.Success)
	require.Equal(t, "reg-1", resp.ID)

	var reg RegisterDeviceResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &reg))
	require.NotEmpty(t, reg.DeviceID)
	p.id = reg.DeviceID
	return p
}

func (p *fakePhone) send(id, typ string, payload any) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(map[string]any{"id": id, "type": typ, "payload": payload}))
}

func (p *fakePhone) read() inbound {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg inbound
	require.NoError(p.t, p.conn.ReadJSON(&msg))
	return msg
}

func (p *fakePhone) expect(typ string) inbound {
	p.t.Helper()
	msg := p.read()
	require.Equal(p.t, typ, msg.Type, "unexpected message: %+v", msg)
	return msg
}

func (p *fakePhone) expectError(code string) {
	p.t.Helper()
	msg := p.expect(MessageTypeError)
	assert.False(p.t, msg.Success)
	var payload map[string]string
	require.NoError(p.t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(p.t, code, payload["code"])
}

func TestRegisterDevice(t *testing.T) {
	hub, url := newTestHub(t, HubOptions{ServerVersion: "test"})
	p := registerPhone(t, url, "Pixel", true)

	phones := hub.Phones()
	require.Len(t, phones, 1)
	assert.Equal(t, p.id, phones[0].ID)
	assert.Equal(t, "Pixel", phones[0].Name)
	assert.Equal(t, "android", phones[0].Platform)
	assert.True(t, phones[0].Capabilities.CanRead)
}

func TestRegisterDeviceValidation(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		payload any
		code    string
	}{
		{"wrong first message", MessageTypeDeviceHeartbeat, nil, "INVALID_MESSAGE_TYPE"},
		{"missing name", MessageTypeRegisterDevice, RegisterDeviceRequest{Platform: "ios"}, "INVALID_REQUEST"},
		{"bad platform", MessageTypeRegisterDevice, RegisterDeviceRequest{DeviceName: "x", Platform: "symbian"}, "INVALID_REQUEST"},
		{"bad payload", MessageTypeRegisterDevice, "not an object", "INVALID_PAYLOAD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub, url := newTestHub(t, HubOptions{})
			p := dialPhone(t, url)
			p.send("1", tt.typ, tt.payload)
			p.expectError(tt.code)
			assert.Empty(t, hub.Phones())
		})
	}
}

func TestReaderPicksMostRecentReader(t *testing.T) {
	hub, url := newTestHub(t, HubOptions{})
	assert.Nil(t, hub.Reader())

	first := registerPhone(t, url, "first", true)
	assert.Equal(t, first.id, hub.Reader().ID)

	second := registerPhone(t, url, "second", true)
	assert.Equal(t, second.id, hub.Reader().ID)

	registerPhone(t, url, "display-only", false)
	assert.Equal(t, second.id, hub.Reader().ID)

	second.conn.Close()
	assert.Eventually(t, func() bool {
		r := hub.Reader()
		return r != nil && r.ID == first.id
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHeartbeatIsAcknowledged(t *testing.T) {
	hub, url := newTestHub(t, HubOptions{})
	p := registerPhone(t, url, "Pixel", true)
	before := hub.Phones()[0].LastSeen()

	time.Sleep(5 * time.Millisecond)
	p.send("hb-1", MessageTypeDeviceHeartbeat, nil)
	ack := p.expect(MessageTypeDeviceHeartbeat)
	assert.Equal(t, "hb-1", ack.ID)
	assert.True(t, ack.Success)
	assert.True(t, hub.Phones()[0].LastSeen().After(before))
}

func TestUnknownMessagesAreRejected(t *testing.T) {
	_, url := newTestHub(t, HubOptions{})
	p := registerPhone(t, url, "Pixel", true)

	p.send("1", "writeRequest", nil)
	p.expectError("UNKNOWN_TYPE")

	p.send("2", MessageTypeTagScanned, TagScannedPayload{SessionID: "nope"})
	p.expectError("UNKNOWN_SESSION")

	require.NoError(t, p.conn.WriteMessage(websocket.TextMessage, []byte("{")))
	p.expectError("PARSE_ERROR")
}

func TestSilentPhonesAreDropped(t *testing.T) {
	hub, url := newTestHub(t, HubOptions{
		DeviceTimeout:   30 * time.Millisecond,
		CleanupInterval: 10 * time.Millisecond,
	})
	registerPhone(t, url, "Pixel", true)

	assert.Eventually(t, func() bool { return len(hub.Phones()) == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestIsDeviceConnection(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?mode=device", nil)
	assert.True(t, IsDeviceConnection(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.False(t, IsDeviceConnection(r))

	r.Header.Set("X-Device-Mode", "true")
	assert.True(t, IsDeviceConnection(r))
}
