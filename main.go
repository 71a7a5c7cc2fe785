// Package main runs the NFC scan agent. Raising the scan flag from the
// tray menu, the HTTP API or a WebSocket client starts a reader session
// and the formatted result is broadcast back to every client.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fyne.io/systray"

	"github.com/dotside-studios/davi-nfc-sheet/buildinfo"
	"github.com/dotside-studios/davi-nfc-sheet/config"
	"github.com/dotside-studios/davi-nfc-sheet/session"
)

var (
	configPathFlag string
	devicePathFlag string
	driverFlag     string
	portFlag       int
	systrayFlag    bool
	versionFlag    bool
	scanFlag       bool
)

func init() {
	flag.StringVar(&configPathFlag, "config", "", "Path to the config file (default: user config dir)")
	flag.StringVar(&devicePathFlag, "device", "", "libnfc connection string of the reader (default: first reader)")
	flag.StringVar(&driverFlag, "driver", "", "Reader driver: hardware or phone")
	flag.IntVar(&portFlag, "port", 0, "Port for the HTTP/WebSocket server")
	flag.BoolVar(&systrayFlag, "systray", true, "Run with a system tray icon")
	flag.BoolVar(&versionFlag, "version", false, "Print version information and exit")
	flag.BoolVar(&scanFlag, "scan", false, "Scan one tag, print the result and exit")
}

func main() {
	flag.Parse()

	if versionFlag {
		fmt.Print(buildinfo.BuildInfo())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	agent, err := NewAgent(cfg, nil)
	if err != nil {
		log.Fatalf("Error creating agent: %v", err)
	}

	if scanFlag {
		os.Exit(runScan(agent))
	}

	if cfg.UI.Systray {
		app := NewSystrayApp(agent)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			log.Println("Received shutdown signal")
			systray.Quit()
		}()
		app.Run()
		return
	}

	runCLI(agent)
}

// loadConfig layers the config file, environment and explicitly set flags.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}

	path := configPathFlag
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Reader.Device = devicePathFlag
		case "driver":
			cfg.Reader.Driver = driverFlag
		case "port":
			cfg.Server.Port = portFlag
		case "systray":
			cfg.UI.Systray = systrayFlag
		}
	})
	return cfg, cfg.Validate()
}

// runCLI starts the agent and blocks until SIGINT or SIGTERM.
func runCLI(agent *Agent) {
	agent.OnDisplay(func(o session.Outcome, display string) {
		agent.Logger.Printf("Scan %s: %s", o.Kind, display)
	})
	if err := agent.Start(); err != nil {
		log.Fatalf("Error starting agent: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Received shutdown signal")
	agent.Stop()
}

// runScan performs a single scan without starting the server and returns
// the process exit code.
func runScan(agent *Agent) int {
	defer agent.Stop()

	results := make(chan session.Outcome, 1)
	agent.OnDisplay(func(o session.Outcome, display string) {
		fmt.Println(display)
		select {
		case results <- o:
		default:
		}
	})
	agent.Binding.Attach()

	if !agent.ReadingAvailable() {
		agent.Logger.Println("No reader available")
	}
	agent.Scan()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case o := <-results:
		return exitCode(o)
	case <-sigChan:
		agent.Cancel()
		select {
		case o := <-results:
			return exitCode(o)
		case <-time.After(2 * time.Second):
			return 130
		}
	}
}

func exitCode(o session.Outcome) int {
	switch o.Kind {
	case session.KindSuccess:
		return 0
	case session.KindUnsupported:
		return 2
	default:
		return 1
	}
}
