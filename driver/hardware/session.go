package hardware

import (
	"sync"
	"time"

	"github.com/dotside-studios/davi-nfc-sheet/nfc"
	"github.com/dotside-studios/davi-nfc-sheet/session"
	"github.com/google/uuid"
)

// handle is one polling session on the reader.
type handle struct {
	id       string
	driver   *Driver
	delegate session.Delegate

	mu       sync.Mutex
	alert    string
	begun    bool
	detected bool
	done     bool

	stopChan chan struct{}
	stopOnce sync.Once
}

var _ session.Handle = (*handle)(nil)

func newHandle(d *Driver, delegate session.Delegate) *handle {
	return &handle{
		id:       uuid.NewString(),
		driver:   d,
		delegate: delegate,
		stopChan: make(chan struct{}),
	}
}

func (h *handle) ID() string {
	return h.id
}

func (h *handle) AlertMessage() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alert
}

func (h *handle) SetAlertMessage(msg string) {
	h.mu.Lock()
	h.alert = msg
	h.mu.Unlock()

	h.driver.logger.Printf("[%s] %s", h.id, msg)
	if h.driver.opts.OnAlert != nil {
		h.driver.opts.OnAlert(h.id, msg)
	}
}

// Begin opens the reader and starts polling in the background.
func (h *handle) Begin() {
	h.mu.Lock()
	if h.begun || h.done {
		h.mu.Unlock()
		return
	}
	h.begun = true
	h.mu.Unlock()

	h.driver.acquire()
	go h.run()
}

// Invalidate stops the session. The terminal SessionInvalidated is posted
// by the polling goroutine, or here if polling never started.
func (h *handle) Invalidate() {
	h.stopOnce.Do(func() { close(h.stopChan) })

	h.mu.Lock()
	begun := h.begun
	h.mu.Unlock()
	if !begun {
		h.finish(session.ErrUserCanceled)
	}
}

// finish posts the session's one SessionInvalidated.
func (h *handle) finish(err error) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	h.mu.Unlock()

	h.driver.logger.Printf("[%s] session ended: %v", h.id, err)
	h.driver.post(func() { h.delegate.SessionInvalidated(h, err) })
}

func (h *handle) stopReason() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.detected {
		return session.ErrFirstTagRead
	}
	return session.ErrUserCanceled
}

func (h *handle) run() {
	defer h.driver.release()
	opts := h.driver.opts

	dev, err := h.driver.manager.OpenDevice(opts.DevicePath)
	if err != nil {
		h.finish(session.NewDeviceLostError(err))
		return
	}
	defer dev.Close()

	if err := dev.InitiatorInit(); err != nil {
		h.finish(session.NewDeviceLostError(err))
		return
	}
	h.driver.logger.Printf("[%s] polling on %s", h.id, dev.String())
	h.driver.post(func() { h.delegate.SessionActivated(h) })

	timeout := time.NewTimer(opts.Timeout)
	defer timeout.Stop()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopChan:
			h.finish(h.stopReason())
			return
		case <-timeout.C:
			h.finish(session.ErrTimeout)
			return
		case <-ticker.C:
			if h.isDetected() {
				continue
			}
			if err := h.poll(dev); err != nil {
				h.finish(err)
				return
			}
			if h.isDetected() && opts.InvalidateAfterFirstRead {
				h.finish(session.ErrFirstTagRead)
				return
			}
		}
	}
}

func (h *handle) isDetected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.detected
}

// poll checks the field once. A nil return with nothing detected means
// keep polling.
func (h *handle) poll(dev nfc.Device) error {
	tags, err := dev.GetTags()
	if err != nil {
		if nfc.IsDeviceError(err) {
			return session.NewDeviceLostError(err)
		}
		h.driver.logger.Printf("[%s] poll error: %v", h.id, err)
		return nil
	}
	if len(tags) == 0 {
		return nil
	}
	if len(tags) > 1 && !h.driver.opts.AllowMultipleTags {
		return session.NewMultipleTagsError(len(tags))
	}

	tag := tags[0]
	messages, err := nfc.ReadMessages(tag)
	if err != nil {
		if nfc.IsTagRemovedError(err) {
			h.driver.logger.Printf("[%s] tag %s left the field during read", h.id, tag.UID())
			return nil
		}
		return session.NewReadError(err)
	}

	h.mu.Lock()
	h.detected = true
	h.mu.Unlock()

	h.driver.logger.Printf("[%s] read %d message(s) from %s tag %s", h.id, len(messages), tag.Type(), tag.UID())
	h.driver.post(func() { h.delegate.SessionDetected(h, messages) })
	return nil
}
