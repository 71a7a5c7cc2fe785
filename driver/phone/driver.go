package phone

import (
	"io"
	"log"
	"time"

	"github.com/dotside-studios/davi-nfc-sheet/dispatch"
	"github.com/dotside-studios/davi-nfc-sheet/session"
)

// DefaultTimeout bounds a phone session. It matches the hardware driver.
const DefaultTimeout = 60 * time.Second

// Options configures a Driver.
type Options struct {
	Timeout time.Duration
	// InvalidateAfterFirstRead ends the session as soon as a tag is read.
	InvalidateAfterFirstRead bool
	Logger                   *log.Logger
}

// DefaultOptions returns the options used by the agent.
func DefaultOptions() Options {
	return Options{
		Timeout:                  DefaultTimeout,
		InvalidateAfterFirstRead: true,
	}
}

// Driver implements session.Driver on top of the phones registered with a
// Hub. Delegate callbacks are posted to queue.
type Driver struct {
	hub    *Hub
	queue  *dispatch.Queue
	opts   Options
	logger *log.Logger
}

var _ session.Driver = (*Driver)(nil)

// NewDriver creates a Driver.
func NewDriver(hub *Hub, queue *dispatch.Queue, opts Options) *Driver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Driver{hub: hub, queue: queue, opts: opts, logger: logger}
}

// ReadingAvailable reports whether a phone that can read tags is connected.
func (d *Driver) ReadingAvailable() bool {
	return d.hub.Reader() != nil
}

// NewSession creates an idle session; Begin picks the phone.
func (d *Driver) NewSession(delegate session.Delegate) session.Handle {
	return newHandle(d, delegate)
}

func (d *Driver) post(fn func()) {
	if !d.queue.Async(fn) {
		d.logger.Println("Dropping session callback: queue stopped")
	}
}
