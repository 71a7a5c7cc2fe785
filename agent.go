package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/dotside-studios/davi-nfc-sheet/config"
	"github.com/dotside-studios/davi-nfc-sheet/dispatch"
	"github.com/dotside-studios/davi-nfc-sheet/driver/hardware"
	"github.com/dotside-studios/davi-nfc-sheet/driver/phone"
	"github.com/dotside-studios/davi-nfc-sheet/nfc"
	"github.com/dotside-studios/davi-nfc-sheet/server"
	"github.com/dotside-studios/davi-nfc-sheet/session"
	"github.com/dotside-studios/davi-nfc-sheet/tls"
	"github.com/dotside-studios/davi-nfc-sheet/trigger"
)

// Agent wires the session queue, reader driver, controller, trigger
// binding and server together.
type Agent struct {
	Logger     *log.Logger
	Config     *config.Config
	Queue      *dispatch.Queue
	Controller *session.Controller
	Flag       *trigger.Flag
	Binding    *trigger.Binding
	Server     *server.Server

	hardware *hardware.Driver
	hub      *phone.Hub

	mu       sync.Mutex
	displays []func(session.Outcome, string)
	states   []func(session.State)
	alerts   []func(string)
	started  bool
	stopped  bool
	stopOnce sync.Once
}

// componentLogger returns a stderr logger for name when verbose is set,
// and a discarding one otherwise.
func componentLogger(name string, verbose bool) *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "["+name+"] ", log.LstdFlags)
}

// NewAgent builds the pipeline described by cfg. manager backs the
// hardware driver and is ignored when cfg selects the phone driver.
func NewAgent(cfg *config.Config, manager nfc.Manager) (*Agent, error) {
	if cfg == nil {
		return nil, errors.New("agent: config is required")
	}
	verbose := cfg.Log.Verbose
	a := &Agent{
		Logger: log.New(os.Stderr, "[agent] ", log.LstdFlags),
		Config: cfg,
		Queue:  dispatch.NewQueue("session"),
		Flag:   trigger.NewFlag(false),
	}

	var driver session.Driver
	switch cfg.Reader.Driver {
	case config.DriverPhone:
		a.hub = phone.NewHub(phone.HubOptions{
			DeviceTimeout: cfg.Phone.DeviceTimeout.Std(),
			Logger:        componentLogger("phone", verbose),
		})
		driver = phone.NewDriver(a.hub, a.Queue, phone.Options{
			Timeout:                  cfg.Session.Timeout.Std(),
			InvalidateAfterFirstRead: cfg.Session.InvalidateAfterFirstRead,
			Logger:                   componentLogger("phone", verbose),
		})
	case config.DriverHardware, "":
		if manager == nil {
			manager = nfc.NewManager()
		}
		a.hardware = hardware.NewDriver(manager, a.Queue, hardware.Options{
			DevicePath:               cfg.Reader.Device,
			Timeout:                  cfg.Session.Timeout.Std(),
			PollInterval:             cfg.Reader.PollInterval.Std(),
			InvalidateAfterFirstRead: cfg.Session.InvalidateAfterFirstRead,
			AllowMultipleTags:        cfg.Reader.AllowMultipleTags,
			Logger:                   componentLogger("hardware", verbose),
			OnAlert:                  func(_, msg string) { a.alert(msg) },
		})
		driver = a.hardware
	default:
		a.Queue.Stop()
		return nil, fmt.Errorf("agent: unknown reader driver %q", cfg.Reader.Driver)
	}

	a.Controller = session.NewController(driver,
		session.WithAlertMessage(cfg.Session.AlertMessage),
		session.WithLogger(componentLogger("session", verbose)),
		session.WithOnStateChange(a.stateChanged),
	)

	binding, err := trigger.NewBinding(a.Flag, a.Controller, a.Queue, trigger.Config{
		OnSuccess: trigger.SummarizeMessages,
		OnDisplay: a.display,
		Logger:    componentLogger("trigger", verbose),
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.Binding = binding

	srvConfig := server.Config{
		Port:       cfg.Server.Port,
		Flag:       a.Flag,
		Queue:      a.Queue,
		Controller: a.Controller,
		APISecret:  cfg.Server.APISecret,
		MDNS:       cfg.Server.MDNS,
		Logger:     componentLogger("server", verbose),
	}
	if a.hub != nil {
		srvConfig.PhoneHub = a.hub
	}
	if cfg.Server.TLS {
		files, err := ensureTLS(componentLogger("tls", verbose))
		if err != nil {
			a.close()
			return nil, err
		}
		srvConfig.TLS = &files
	}
	srv, err := server.New(srvConfig)
	if err != nil {
		a.close()
		return nil, err
	}
	a.Server = srv
	return a, nil
}

func ensureTLS(logger *log.Logger) (tls.Files, error) {
	dir, err := config.Dir()
	if err != nil {
		return tls.Files{}, err
	}
	files, err := tls.NewManager(dir, logger).EnsureCertificates()
	if err != nil {
		return tls.Files{}, fmt.Errorf("agent: TLS setup failed: %w", err)
	}
	return files, nil
}

// OnDisplay registers fn for every formatted scan outcome. Register
// listeners before Start.
func (a *Agent) OnDisplay(fn func(session.Outcome, string)) {
	a.mu.Lock()
	a.displays = append(a.displays, fn)
	a.mu.Unlock()
}

// OnStateChange registers fn for controller state changes. fn runs on the
// session queue.
func (a *Agent) OnStateChange(fn func(session.State)) {
	a.mu.Lock()
	a.states = append(a.states, fn)
	a.mu.Unlock()
}

// OnAlert registers fn for alert messages shown while a reader without a
// screen is scanning.
func (a *Agent) OnAlert(fn func(string)) {
	a.mu.Lock()
	a.alerts = append(a.alerts, fn)
	a.mu.Unlock()
}

// Start attaches the trigger binding and starts the server.
func (a *Agent) Start() error {
	a.mu.Lock()
	if a.started || a.stopped {
		a.mu.Unlock()
		return errors.New("agent is already running")
	}
	a.started = true
	a.mu.Unlock()

	a.Binding.Attach()
	if err := a.Server.Start(); err != nil {
		a.Binding.Detach()
		return err
	}
	a.Logger.Printf("Listening on %s (%s driver)", a.Server.Addr(), a.driverName())
	if a.hardware != nil {
		if readers, err := a.hardware.Readers(); err != nil {
			a.Logger.Printf("No NFC readers found: %v", err)
		} else {
			a.Logger.Printf("Found %d NFC reader(s): %v", len(readers), readers)
		}
	}
	return nil
}

// Scan raises the activation flag. It reports false when a scan is
// already requested.
func (a *Agent) Scan() bool {
	return a.Server.Raise()
}

// Cancel queues a cancel of the active session, if any.
func (a *Agent) Cancel() bool {
	return a.Server.Cancel()
}

// Status returns a snapshot of the session state. Do not call it from the
// session queue.
func (a *Agent) Status() server.Status {
	return a.Server.Status()
}

// ReadingAvailable reports whether the configured reader can scan right now.
func (a *Agent) ReadingAvailable() bool {
	var ok bool
	a.Queue.Sync(func() {
		if a.hardware != nil {
			ok = a.hardware.ReadingAvailable()
			return
		}
		ok = a.hub.Reader() != nil
	})
	return ok
}

// Stop cancels any active session, then shuts the server, phone hub and
// queue down. It is safe to call more than once.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.stopped = true
		a.mu.Unlock()

		a.Logger.Println("Stopping agent...")
		a.Binding.Detach()
		a.Queue.Sync(a.Controller.Cancel)
		if a.hardware != nil {
			a.hardware.Wait()
		}
		a.Server.Stop()
		a.close()
		a.Logger.Println("Agent stopped")
	})
}

func (a *Agent) close() {
	if a.hub != nil {
		a.hub.Close()
	}
	a.Queue.Stop()
}

func (a *Agent) driverName() string {
	if a.hub != nil {
		return config.DriverPhone
	}
	return config.DriverHardware
}

// stateChanged runs on the session queue.
func (a *Agent) stateChanged(state session.State) {
	if a.Server != nil {
		a.Server.OnStateChange(state)
	}
	a.mu.Lock()
	listeners := append([]func(session.State){}, a.states...)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}

func (a *Agent) display(outcome session.Outcome, text string) {
	a.Server.OnResult(outcome, text)
	a.mu.Lock()
	listeners := append([]func(session.Outcome, string){}, a.displays...)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(outcome, text)
	}
}

func (a *Agent) alert(msg string) {
	a.mu.Lock()
	listeners := append([]func(string){}, a.alerts...)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(msg)
	}
}
