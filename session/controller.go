// Package session owns the NFC scan session lifecycle: at most one live
// session, exactly one Outcome per started session, and release of the
// session handle once it ends.
package session

import (
	"io"
	"log"

	"github.com/dotside-studios/davi-nfc-sheet/nfc"
)

// Status messages shown on the session when nothing better is available.
const (
	DefaultAlertMessage   = "Hold your device near the badge"
	FallbackDetectedAlert = "Unable to read badge"
	FallbackFailureAlert  = "An error occurred"
	unsupportedLogMessage = "Unsupported device"
)

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

// Controller runs scan sessions on a Driver and reports each result to
// the registered ResultSink.
//
// Controller is not safe for concurrent use. Start, Cancel, SetSink and the
// Delegate callbacks must all run on one goroutine, normally a
// dispatch.Queue shared with the driver.
type Controller struct {
	driver        Driver
	sink          ResultSink
	handle        Handle
	alertMessage  string
	logger        *log.Logger
	onStateChange func(State)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAlertMessage sets the message shown while waiting for a tag.
func WithAlertMessage(msg string) Option {
	return func(c *Controller) {
		if msg != "" {
			c.alertMessage = msg
		}
	}
}

// WithOnStateChange registers a callback run after every state transition.
func WithOnStateChange(fn func(State)) Option {
	return func(c *Controller) {
		c.onStateChange = fn
	}
}

// NewController creates an idle controller for driver.
func NewController(driver Driver, opts ...Option) *Controller {
	c := &Controller{
		driver:       driver,
		alertMessage: DefaultAlertMessage,
		logger:       log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSink registers the sink for future results. The last registration
// wins; a result already delivered is never delivered again.
func (c *Controller) SetSink(sink ResultSink) {
	c.sink = sink
}

// State returns the current state.
func (c *Controller) State() State {
	if c.handle != nil {
		return StateActive
	}
	return StateIdle
}

// Active reports whether a session is live.
func (c *Controller) Active() bool {
	return c.handle != nil
}

// Handle returns the live session handle, or nil when idle.
func (c *Controller) Handle() Handle {
	return c.handle
}

// Start begins a scan session unless one is already live. When the driver
// cannot read, Start delivers Unsupported to the sink immediately and no
// session is created. Start never blocks on the session itself.
func (c *Controller) Start() {
	if !c.driver.ReadingAvailable() {
		c.logger.Println(unsupportedLogMessage)
		c.deliver(Unsupported())
		return
	}
	if c.handle != nil {
		c.logger.Printf("Start ignored: session %s already active", c.handle.ID())
		return
	}

	h := c.driver.NewSession(c)
	h.SetAlertMessage(c.alertMessage)
	c.handle = h
	c.logger.Printf("Session %s starting", h.ID())
	c.notify()
	h.Begin()
}

// Cancel asks the live session to stop. The driver reports the end through
// SessionInvalidated, so the sink still sees exactly one Outcome.
func (c *Controller) Cancel() {
	if c.handle == nil {
		return
	}
	c.logger.Printf("Session %s cancel requested", c.handle.ID())
	c.handle.Invalidate()
}

// SessionActivated implements Delegate.
func (c *Controller) SessionActivated(h Handle) {
	if !c.isLive(h) {
		return
	}
	c.logger.Printf("Session %s active", h.ID())
}

// SessionDetected implements Delegate.
func (c *Controller) SessionDetected(h Handle, messages []*nfc.NDEFMessage) {
	if !c.isLive(h) {
		c.logger.Printf("Ignoring detection for stale session %s", h.ID())
		return
	}
	c.release()

	display, ok := c.deliver(Success(messages))
	if !ok {
		display = FallbackDetectedAlert
	}
	h.SetAlertMessage(display)
	h.Invalidate()
}

// SessionInvalidated implements Delegate.
func (c *Controller) SessionInvalidated(h Handle, err error) {
	if !c.isLive(h) {
		return
	}
	c.release()
	c.logger.Printf("Session %s invalidated: %v", h.ID(), err)

	display, ok := c.deliver(Failure(err))
	if !ok {
		display = FallbackFailureAlert
	}
	h.SetAlertMessage(display)
}

func (c *Controller) isLive(h Handle) bool {
	return h != nil && c.handle != nil && c.handle.ID() == h.ID()
}

// release clears the live handle before the sink runs, so a sink that
// immediately starts another scan gets a fresh session.
func (c *Controller) release() {
	c.handle = nil
	c.notify()
}

func (c *Controller) deliver(o Outcome) (string, bool) {
	if c.sink == nil {
		c.logger.Printf("No result sink registered, dropping %s outcome", o.Kind)
		return "", false
	}
	return c.sink(o)
}

func (c *Controller) notify() {
	if c.onStateChange != nil {
		c.onStateChange(c.State())
	}
}
