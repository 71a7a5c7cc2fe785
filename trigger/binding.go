// Package trigger turns a boolean activation flag into NFC scan sessions
// and their results into display strings.
package trigger

import (
	"errors"
	"io"
	"log"
	"sync"

	"github.com/dotside-studios/davi-nfc-sheet/dispatch"
	"github.com/dotside-studios/davi-nfc-sheet/nfc"
	"github.com/dotside-studios/davi-nfc-sheet/session"
)

// DefaultFailureMessage is the failure formatter used when none is given.
func DefaultFailureMessage(err error) string {
	if err == nil {
		return "Error: unknown error"
	}
	return "Error: " + err.Error()
}

// Config holds the caller's formatters.
type Config struct {
	// OnSuccess formats the messages read from a tag. Required.
	OnSuccess func(messages []*nfc.NDEFMessage) string
	// OnFailure formats failures and unsupported readers.
	// Defaults to DefaultFailureMessage.
	OnFailure func(err error) string
	// OnDisplay, if set, receives every outcome with its formatted string.
	OnDisplay func(outcome session.Outcome, display string)
	Logger    *log.Logger
}

// Binding watches a Flag and runs a scan on every false to true edge.
// When the scan resolves it lowers the flag and formats the outcome.
type Binding struct {
	flag       *Flag
	controller *session.Controller
	queue      *dispatch.Queue
	cfg        Config

	mu     sync.Mutex
	cancel func()
}

// NewBinding resolves cfg defaults and returns an unattached binding.
func NewBinding(flag *Flag, controller *session.Controller, queue *dispatch.Queue, cfg Config) (*Binding, error) {
	if flag == nil || controller == nil || queue == nil {
		return nil, errors.New("trigger: flag, controller and queue are required")
	}
	if cfg.OnSuccess == nil {
		return nil, errors.New("trigger: OnSuccess formatter is required")
	}
	if cfg.OnFailure == nil {
		cfg.OnFailure = DefaultFailureMessage
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Binding{
		flag:       flag,
		controller: controller,
		queue:      queue,
		cfg:        cfg,
	}, nil
}

// Attach registers the binding's sink on the controller and starts
// watching the flag. Attaching again re-registers the sink and replaces
// the previous flag observer.
func (b *Binding) Attach() {
	b.queue.Async(func() {
		b.controller.SetSink(b.sink)
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
	b.cancel = b.flag.Observe(b.onFlagChange)
}

// Detach stops watching the flag. A scan already running still resolves
// through the registered sink.
func (b *Binding) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

func (b *Binding) onFlagChange(old, new bool) {
	if old || !new {
		return
	}
	b.cfg.Logger.Println("Scan requested")
	b.queue.Async(b.controller.Start)
}

// sink lowers the flag before any formatter runs.
func (b *Binding) sink(o session.Outcome) (string, bool) {
	b.flag.Set(false)

	var display string
	switch o.Kind {
	case session.KindSuccess:
		display = b.cfg.OnSuccess(o.Messages)
	default:
		display = b.cfg.OnFailure(o.Err)
	}
	b.cfg.Logger.Printf("Scan %s: %s", o.Kind, display)

	if b.cfg.OnDisplay != nil {
		b.cfg.OnDisplay(o, display)
	}
	return display, true
}
