package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dotside-studios/davi-nfc-sheet/dispatch"
	"github.com/dotside-studios/davi-nfc-sheet/nfc"
	"github.com/dotside-studios/davi-nfc-sheet/session"
	"github.com/dotside-studios/davi-nfc-sheet/tls"
	"github.com/dotside-studios/davi-nfc-sheet/trigger"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t      *testing.T
	queue  *dispatch.Queue
	driver *session.MockDriver
	flag   *trigger.Flag
	srv    *Server
	ts     *httptest.Server
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		queue:  dispatch.NewQueue("test"),
		driver: session.NewMockDriver(),
		flag:   trigger.NewFlag(false),
	}
	t.Cleanup(h.queue.Stop)

	ctrl := session.NewController(h.driver, session.WithOnStateChange(func(st session.State) {
		h.srv.OnStateChange(st)
	}))
	cfg := Config{Flag: h.flag, Queue: h.queue, Controller: ctrl}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg)
	require.NoError(t, err)
	h.srv = srv

	b, err := trigger.NewBinding(h.flag, ctrl, h.queue, trigger.Config{
		OnSuccess: trigger.SummarizeMessages,
		OnDisplay: srv.OnResult,
	})
	require.NoError(t, err)
	b.Attach()

	h.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(h.ts.Close)
	return h
}

func (h *harness) url(path string) string {
	return h.ts.URL + path
}

func (h *harness) dial(query string) *websocket.Conn {
	h.t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.ts.URL, "http")+"/ws"+query, nil)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { conn.Close() })
	return conn
}

// lastSession returns the newest mock session, waiting for it to appear.
func (h *harness) lastSession() *session.MockHandle {
	h.t.Helper()
	var last *session.MockHandle
	require.Eventually(h.t, func() bool {
		h.queue.Sync(func() { last = h.driver.Last() })
		return last != nil && !last.Invalidated
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func (h *harness) onQueue(fn func()) {
	h.t.Helper()
	require.True(h.t, h.queue.Sync(fn))
}

type wsMsg struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

// readUntil reads messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) wsMsg {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg wsMsg
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

// collectUntil reads messages in order until each of types has been seen.
// Responses and broadcasts race, so tests match on type, not position.
func collectUntil(t *testing.T, conn *websocket.Conn, types ...string) []wsMsg {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	pending := make(map[string]bool, len(types))
	for _, typ := range types {
		pending[typ] = true
	}
	var msgs []wsMsg
	for len(pending) > 0 {
		var msg wsMsg
		require.NoError(t, conn.ReadJSON(&msg))
		msgs = append(msgs, msg)
		delete(pending, msg.Type)
	}
	return msgs
}

// readStatus reads sessionStatus broadcasts until one satisfies match.
func readStatus(t *testing.T, conn *websocket.Conn, match func(Status) bool) Status {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg wsMsg
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type != WSMessageTypeSessionStatus {
			continue
		}
		if st := decode[Status](t, msg.Payload); match(st) {
			return st
		}
	}
}

func ofType(msgs []wsMsg, typ string) []wsMsg {
	var out []wsMsg
	for _, m := range msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func send(t *testing.T, conn *websocket.Conn, id, typ string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{"id": id, "type": typ}))
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func getJSON[T any](t *testing.T, url string) T {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func postScan(t *testing.T, url, auth string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, nil)
	require.NoError(t, err)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type statusBody struct {
	Status     Status      `json:"status"`
	LastResult *ScanResult `json:"lastResult"`
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	h := newHarness(t, nil)

	body := getJSON[map[string]string](t, h.url("/api/v1/health"))
	assert.Equal(t, "ok", body["status"])

	resp := postScan(t, h.url("/api/v1/health"), "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestScanRequestStartsSession(t *testing.T) {
	h := newHarness(t, nil)

	resp := postScan(t, h.url("/api/v1/scan"), "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, map[string]bool{"raised": true}, decodeBody[map[string]bool](t, resp))

	last := h.lastSession()
	st := getJSON[statusBody](t, h.url("/api/v1/status"))
	assert.True(t, st.Status.Active)
	assert.True(t, st.Status.Raised)
	assert.Equal(t, "active", st.Status.State)
	assert.Equal(t, last.ID(), st.Status.SessionID)
	assert.Equal(t, session.DefaultAlertMessage, st.Status.AlertMessage)
	assert.Nil(t, st.LastResult)

	resp = postScan(t, h.url("/api/v1/scan"), "")
	assert.Equal(t, map[string]bool{"raised": false}, decodeBody[map[string]bool](t, resp))

	var sessions int
	h.onQueue(func() { sessions = h.driver.SessionCount() })
	assert.Equal(t, 1, sessions)
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestWebSocketScanFlow(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial("")

	initial := decode[Status](t, readUntil(t, conn, WSMessageTypeSessionStatus).Payload)
	assert.False(t, initial.Active)

	send(t, conn, "1", WSMessageTypeScan)
	last := h.lastSession()
	h.onQueue(func() { last.Detect([]*nfc.NDEFMessage{nfc.NewTextMessage("Ada Lovelace", "en")}) })

	msgs := collectUntil(t, conn, WSMessageTypeScan, WSMessageTypeScanResult)
	resp := ofType(msgs, WSMessageTypeScan)[0]
	assert.Equal(t, "1", resp.ID)
	assert.True(t, resp.Success)

	active := false
	for _, m := range ofType(msgs, WSMessageTypeSessionStatus) {
		active = active || decode[Status](t, m.Payload).Active
	}
	assert.True(t, active, "an active status is broadcast while the session runs")

	result := decode[ScanResult](t, ofType(msgs, WSMessageTypeScanResult)[0].Payload)
	assert.Equal(t, "success", result.Kind)
	assert.Equal(t, "Ada Lovelace", result.Display)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "Ada Lovelace", result.Messages[0].Records[0].Content)
	assert.Empty(t, result.Error)

	final := readStatus(t, conn, func(st Status) bool { return !st.Raised })
	assert.False(t, final.Active)
	assert.Equal(t, "idle", final.State)

	st := getJSON[statusBody](t, h.url("/api/v1/status"))
	assert.False(t, st.Status.Raised, "flag is lowered once the result is in")
	require.NotNil(t, st.LastResult)
	assert.Equal(t, "Ada Lovelace", st.LastResult.Display)
}

func TestWebSocketCancel(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial("")

	send(t, conn, "1", WSMessageTypeScan)
	h.lastSession()

	send(t, conn, "2", WSMessageTypeCancel)
	msgs := collectUntil(t, conn, WSMessageTypeCancel, WSMessageTypeScanResult)
	assert.True(t, ofType(msgs, WSMessageTypeCancel)[0].Success)

	result := decode[ScanResult](t, ofType(msgs, WSMessageTypeScanResult)[0].Payload)
	assert.Equal(t, "failure", result.Kind)
	assert.Equal(t, "Error: Session invalidated by user", result.Display)
	assert.Equal(t, "userCanceled", result.ErrorCode)
}

func TestStatusBroadcastWhenUnsupportedScanLowersFlag(t *testing.T) {
	h := newHarness(t, nil)
	h.onQueue(func() { h.driver.Available = false })
	conn := h.dial("")
	readUntil(t, conn, WSMessageTypeSessionStatus)

	resp := postScan(t, h.url("/api/v1/scan"), "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	readUntil(t, conn, WSMessageTypeScanResult)
	st := readStatus(t, conn, func(st Status) bool { return !st.Raised })
	assert.False(t, st.Active)
	assert.False(t, h.flag.Get())
}

func TestStatusBroadcastFollowsFlag(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial("")
	readUntil(t, conn, WSMessageTypeSessionStatus)

	h.flag.Set(true)
	st := readStatus(t, conn, func(st Status) bool { return st.Raised && st.Active })
	assert.NotEmpty(t, st.SessionID)

	last := h.lastSession()
	h.onQueue(func() { last.Detect([]*nfc.NDEFMessage{nfc.NewTextMessage("x", "en")}) })
	st = readStatus(t, conn, func(st Status) bool { return !st.Raised })
	assert.False(t, st.Active)
}

func TestWebSocketStatusRequest(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial("")

	send(t, conn, "s", WSMessageTypeStatus)
	resp := readUntil(t, conn, WSMessageTypeStatus)
	assert.Equal(t, "s", resp.ID)
	assert.Equal(t, "idle", decode[Status](t, resp.Payload).State)
}

func TestNewClientReceivesLastResult(t *testing.T) {
	h := newHarness(t, nil)
	h.onQueue(func() { h.driver.Available = false })

	postScan(t, h.url("/api/v1/scan"), "")
	require.Eventually(t, func() bool { return h.srv.LastResult() != nil }, 2*time.Second, 5*time.Millisecond)

	conn := h.dial("")
	result := decode[ScanResult](t, readUntil(t, conn, WSMessageTypeScanResult).Payload)
	assert.Equal(t, "unsupported", result.Kind)
	assert.Equal(t, "Error: Unsupported device", result.Display)
	assert.Equal(t, "unsupported", result.ErrorCode)
}

func TestWebSocketRejectsBadRequests(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial("")

	send(t, conn, "1", "writeRequest")
	msg := readUntil(t, conn, WSMessageTypeError)
	assert.Equal(t, "UNKNOWN_TYPE", decode[map[string]string](t, msg.Payload)["code"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	msg = readUntil(t, conn, WSMessageTypeError)
	assert.Equal(t, "PARSE_ERROR", decode[map[string]string](t, msg.Payload)["code"])
}

func TestAPISecret(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.APISecret = "s3cret" })

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.ts.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.dial("?secret=s3cret")

	assert.Equal(t, http.StatusUnauthorized, postScan(t, h.url("/api/v1/scan"), "").StatusCode)
	assert.Equal(t, http.StatusAccepted, postScan(t, h.url("/api/v1/scan"), "Bearer s3cret").StatusCode)
}

func TestDeviceConnectionsGoToPhoneHub(t *testing.T) {
	hub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "phone hub")
	})
	h := newHarness(t, func(c *Config) { c.PhoneHub = hub })

	resp, err := http.Get(h.url("/ws?mode=device"))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "phone hub", string(body))
}

func TestCACertRoute(t *testing.T) {
	caFile := filepath.Join(t.TempDir(), "rootCA.pem")
	require.NoError(t, os.WriteFile(caFile, []byte("-----BEGIN CERTIFICATE-----\n"), 0o600))
	h := newHarness(t, func(c *Config) { c.TLS = &tls.Files{CACertFile: caFile} })

	resp, err := http.Get(h.url("/ca.pem"))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "BEGIN CERTIFICATE")
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.srv.Start())
	assert.Error(t, h.srv.Start(), "second start")

	addr := h.srv.Addr()
	require.NotNil(t, addr)
	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/health", addr))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	h.srv.Stop()
	assert.Nil(t, h.srv.Addr())
	_, err = http.Get(fmt.Sprintf("http://%s/api/v1/health", addr))
	assert.Error(t, err)
}

func TestNewScanResult(t *testing.T) {
	r := NewScanResult(session.Failure(session.NewMultipleTagsError(2)), "Error: Multiple tags detected (2)")
	assert.Equal(t, "failure", r.Kind)
	assert.Equal(t, "multipleTags", r.ErrorCode)
	assert.Equal(t, "Multiple tags detected (2)", r.Error)
	assert.Empty(t, r.Messages)

	r = NewScanResult(session.Failure(errors.New("plain")), "Error: plain")
	assert.Empty(t, r.ErrorCode)
}
