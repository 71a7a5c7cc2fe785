package session

import (
	"fmt"
	"sync"

	"github.com/dotside-studios/davi-nfc-sheet/nfc"
)

// MockDriver is a test implementation of Driver. Sessions it creates do
// nothing until the test drives them with MockHandle.Detect or
// MockHandle.Fail. Callbacks are delivered synchronously on the caller's
// goroutine.
//
// Example:
//
//	drv := NewMockDriver()
//	ctrl := NewController(drv)
//	ctrl.Start()
//	drv.Last().Detect(msgs)
type MockDriver struct {
	// Available is returned by ReadingAvailable()
	Available bool

	// Sessions lists every handle created, oldest first
	Sessions []*MockHandle

	// ProbeCount counts ReadingAvailable calls
	ProbeCount int

	mu sync.Mutex
}

// NewMockDriver creates a MockDriver that reports reading as available.
func NewMockDriver() *MockDriver {
	return &MockDriver{Available: true}
}

// ReadingAvailable returns Available.
func (d *MockDriver) ReadingAvailable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ProbeCount++
	return d.Available
}

// NewSession creates a new MockHandle bound to delegate.
func (d *MockDriver) NewSession(delegate Delegate) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := &MockHandle{
		id:       fmt.Sprintf("mock-%d", len(d.Sessions)+1),
		delegate: delegate,
	}
	d.Sessions = append(d.Sessions, h)
	return h
}

// Last returns the most recently created handle, or nil.
func (d *MockDriver) Last() *MockHandle {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.Sessions) == 0 {
		return nil
	}
	return d.Sessions[len(d.Sessions)-1]
}

// SessionCount returns how many sessions were created.
func (d *MockDriver) SessionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.Sessions)
}

// MockHandle is the Handle created by MockDriver. It follows the driver
// contract: Invalidate ends the session with exactly one
// SessionInvalidated, using ErrFirstTagRead after a detection and
// ErrUserCanceled otherwise.
type MockHandle struct {
	id       string
	delegate Delegate

	// Alerts records every SetAlertMessage value in order
	Alerts []string

	Begun       bool
	Invalidated bool
	detected    bool
}

func (h *MockHandle) ID() string { return h.id }

func (h *MockHandle) AlertMessage() string {
	if len(h.Alerts) == 0 {
		return ""
	}
	return h.Alerts[len(h.Alerts)-1]
}

func (h *MockHandle) SetAlertMessage(msg string) {
	h.Alerts = append(h.Alerts, msg)
}

// Begin marks the session started and reports it active.
func (h *MockHandle) Begin() {
	h.Begun = true
	h.delegate.SessionActivated(h)
}

// Invalidate ends the session if it has not ended yet.
func (h *MockHandle) Invalidate() {
	if h.Invalidated {
		return
	}
	err := error(ErrUserCanceled)
	if h.detected {
		err = ErrFirstTagRead
	}
	h.Fail(err)
}

// Detect simulates a tag read.
func (h *MockHandle) Detect(messages []*nfc.NDEFMessage) {
	if h.Invalidated || h.detected {
		return
	}
	h.detected = true
	h.delegate.SessionDetected(h, messages)
}

// Fail ends the session with err.
func (h *MockHandle) Fail(err error) {
	if h.Invalidated {
		return
	}
	h.Invalidated = true
	h.delegate.SessionInvalidated(h, err)
}

// Echo delivers a SessionInvalidated even after the session ended, the
// way a platform may report its own teardown late.
func (h *MockHandle) Echo(err error) {
	h.delegate.SessionInvalidated(h, err)
}
