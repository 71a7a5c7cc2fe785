package phone

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dotside-studios/davi-nfc-sheet/nfc"
	"github.com/dotside-studios/davi-nfc-sheet/session"
	"github.com/google/uuid"
)

// handle is one scan session running on a phone.
type handle struct {
	id       string
	driver   *Driver
	delegate session.Delegate

	mu        sync.Mutex
	alert     string
	phone     *Phone
	begun     bool
	activated bool
	detected  bool
	done      bool

	doneChan chan struct{}
	endOnce  sync.Once
}

var (
	_ session.Handle = (*handle)(nil)
	_ endpoint       = (*handle)(nil)
)

func newHandle(d *Driver, delegate session.Delegate) *handle {
	return &handle{
		id:       uuid.NewString(),
		driver:   d,
		delegate: delegate,
		doneChan: make(chan struct{}),
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

// SetAlertMessage updates the phone's sheet. Phones keep showing the last
// alert of an ended session, so updates are sent after the end too.
func (h *handle) SetAlertMessage(msg string) {
	h.mu.Lock()
	h.alert = msg
	p := h.phone
	h.mu.Unlock()

	h.driver.logger.Printf("[%s] %s", h.id, msg)
	if p == nil {
		return
	}
	if err := p.send(Message{
		Type:    MessageTypeAlertMessage,
		Success: true,
		Payload: AlertMessagePayload{SessionID: h.id, AlertMessage: msg},
	}); err != nil {
		h.driver.logger.Printf("[%s] alert not delivered to %s: %v", h.id, p.Name, err)
	}
}

// Begin asks the most recently registered reader to open its sheet.
func (h *handle) Begin() {
	h.mu.Lock()
	if h.begun || h.done {
		h.mu.Unlock()
		return
	}
	h.begun = true
	alert := h.alert
	h.mu.Unlock()

	p := h.driver.hub.Reader()
	if p == nil {
		h.finish(session.NewDeviceLostError(nfc.NewNoDeviceError("Begin")))
		return
	}
	if err := h.driver.hub.attach(h.id, p, h); err != nil {
		h.finish(session.NewDeviceLostError(err))
		return
	}

	h.mu.Lock()
	h.phone = p
	h.mu.Unlock()

	timeout := h.driver.opts.Timeout
	if err := p.send(Message{
		Type:    MessageTypeBeginSession,
		Success: true,
		Payload: BeginSessionPayload{
			SessionID:    h.id,
			AlertMessage: alert,
			TimeoutMs:    timeout.Milliseconds(),
		},
	}); err != nil {
		h.finish(session.NewDeviceLostError(err))
		return
	}
	h.driver.logger.Printf("[%s] session started on %s", h.id, p.Name)

	go h.watch(timeout)
}

func (h *handle) watch(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.doneChan:
	case <-timer.C:
		h.end()
		h.finish(session.ErrTimeout)
	}
}

// Invalidate closes the phone's sheet and ends the session.
func (h *handle) Invalidate() {
	h.end()
	h.finish(h.stopReason())
}

// end tells the phone to close its sheet, once.
func (h *handle) end() {
	h.mu.Lock()
	p, alert := h.phone, h.alert
	h.mu.Unlock()
	if p == nil {
		return
	}

	h.endOnce.Do(func() {
		if err := p.send(Message{
			Type:    MessageTypeEndSession,
			Success: true,
			Payload: AlertMessagePayload{SessionID: h.id, AlertMessage: alert},
		}); err != nil {
			h.driver.logger.Printf("[%s] endSession not delivered to %s: %v", h.id, p.Name, err)
		}
	})
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

	close(h.doneChan)
	h.driver.hub.detach(h.id)
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

func (h *handle) phoneActive() {
	h.mu.Lock()
	if h.done || h.activated {
		h.mu.Unlock()
		return
	}
	h.activated = true
	h.mu.Unlock()

	h.driver.post(func() { h.delegate.SessionActivated(h) })
}

func (h *handle) phoneScanned(scan TagScannedPayload) {
	h.mu.Lock()
	if h.done || h.detected {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	messages, err := decodeMessages(scan.NDEFMessages)
	if err != nil {
		h.finish(session.NewReadError(err))
		return
	}

	h.mu.Lock()
	if h.done || h.detected {
		h.mu.Unlock()
		return
	}
	h.detected = true
	h.mu.Unlock()

	h.driver.logger.Printf("[%s] read %d message(s) from tag %s", h.id, len(messages), scan.UID)
	h.driver.post(func() { h.delegate.SessionDetected(h, messages) })
	if h.driver.opts.InvalidateAfterFirstRead {
		h.finish(session.ErrFirstTagRead)
	}
}

func (h *handle) phoneError(serr SessionErrorPayload) {
	h.finish(sessionError(serr))
}

func (h *handle) phoneGone(err error) {
	h.finish(session.NewDeviceLostError(err))
}

func decodeMessages(payloads []*nfc.NDEFMessagePayload) ([]*nfc.NDEFMessage, error) {
	if len(payloads) == 0 {
		return nil, nfc.NewEmptyTagError("tagScanned")
	}
	messages := make([]*nfc.NDEFMessage, 0, len(payloads))
	for _, p := range payloads {
		msg, err := nfc.MessageFromPayload(p)
		if err != nil {
			return nil, nfc.NewInvalidDataError("tagScanned", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// sessionError maps a phone's sessionError code to a session error.
func sessionError(serr SessionErrorPayload) error {
	switch serr.Code {
	case SessionErrorTimeout:
		return session.ErrTimeout
	case SessionErrorUserCanceled:
		return session.ErrUserCanceled
	case SessionErrorMultipleTags:
		return session.NewMultipleTagsError(max(serr.TagCount, 2))
	case SessionErrorSystemBusy:
		return session.ErrSystemBusy
	case SessionErrorUnsupported:
		return session.ErrUnsupported
	case SessionErrorReadFailed:
		if serr.Message == "" {
			return session.NewReadError(nil)
		}
		return session.NewReadError(errors.New(serr.Message))
	default:
		return session.NewReadError(fmt.Errorf("phone error %q: %s", serr.Code, serr.Message))
	}
}
