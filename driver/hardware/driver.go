// Package hardware runs scan sessions on a reader attached through libnfc.
package hardware

import (
	"io"
	"log"
	"sync"
	"time"

	"github.com/dotside-studios/davi-nfc-sheet/dispatch"
	"github.com/dotside-studios/davi-nfc-sheet/nfc"
	"github.com/dotside-studios/davi-nfc-sheet/session"
)

// Defaults for Options.
const (
	DefaultTimeout      = 60 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Options configures a Driver.
type Options struct {
	// DevicePath is the libnfc connection string; empty picks the first reader.
	DevicePath string
	// Timeout bounds each session.
	Timeout time.Duration
	// PollInterval is the delay between tag polls.
	PollInterval time.Duration
	// InvalidateAfterFirstRead ends the session as soon as a tag is read.
	InvalidateAfterFirstRead bool
	// AllowMultipleTags reads the first tag instead of failing when several
	// are in the field.
	AllowMultipleTags bool
	Logger            *log.Logger
	// OnAlert, if set, receives every alert message change. Readers have no
	// screen, so this is how the message reaches a UI.
	OnAlert func(sessionID, message string)
}

// DefaultOptions returns the options used by the agent.
func DefaultOptions() Options {
	return Options{
		Timeout:                  DefaultTimeout,
		PollInterval:             DefaultPollInterval,
		InvalidateAfterFirstRead: true,
	}
}

// Driver implements session.Driver on top of an nfc.Manager. Delegate
// callbacks are posted to queue.
type Driver struct {
	manager nfc.Manager
	queue   *dispatch.Queue
	opts    Options
	logger  *log.Logger

	sessions sync.WaitGroup
	mu       sync.Mutex
	running  int
}

var _ session.Driver = (*Driver)(nil)

// NewDriver creates a Driver. Zero durations in opts take their defaults.
func NewDriver(manager nfc.Manager, queue *dispatch.Queue, opts Options) *Driver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Driver{
		manager: manager,
		queue:   queue,
		opts:    opts,
		logger:  logger,
	}
}

// ReadingAvailable reports whether a reader can be reached. A running
// session holds the reader, so it counts as available without touching the
// device. Otherwise a configured DevicePath that libnfc does not enumerate
// (UART readers, for one) is probed by opening it.
func (d *Driver) ReadingAvailable() bool {
	if d.busy() {
		return true
	}

	devices, err := nfc.ListDevicesOnce(d.manager)
	if err != nil {
		d.logger.Printf("Listing readers failed: %v", err)
	}
	if d.opts.DevicePath == "" {
		return len(devices) > 0
	}
	for _, dev := range devices {
		if dev == d.opts.DevicePath {
			return true
		}
	}

	dev, err := d.manager.OpenDevice(d.opts.DevicePath)
	if err != nil {
		d.logger.Printf("Reader %s unavailable: %v", d.opts.DevicePath, err)
		return false
	}
	dev.Close()
	return true
}

// Readers lists the attached readers, retrying while libnfc settles. It is
// meant for startup diagnostics, not for the per-scan check.
func (d *Driver) Readers() ([]string, error) {
	return d.manager.ListDevices()
}

// NewSession creates an idle session; Begin starts polling.
func (d *Driver) NewSession(delegate session.Delegate) session.Handle {
	return newHandle(d, delegate)
}

// Wait blocks until every begun session has released its reader.
func (d *Driver) Wait() {
	d.sessions.Wait()
}

func (d *Driver) acquire() {
	d.mu.Lock()
	d.running++
	d.mu.Unlock()
	d.sessions.Add(1)
}

func (d *Driver) release() {
	d.mu.Lock()
	d.running--
	d.mu.Unlock()
	d.sessions.Done()
}

func (d *Driver) busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running > 0
}

func (d *Driver) post(fn func()) {
	if !d.queue.Async(fn) {
		d.logger.Println("Dropping session callback: queue stopped")
	}
}
