package main

import (
	"fmt"
	"log"
	"net"
	"os/exec"
	"runtime"
	"strings"

	"fyne.io/systray"

	"github.com/dotside-studios/davi-nfc-sheet/buildinfo"
	"github.com/dotside-studios/davi-nfc-sheet/session"
	"github.com/dotside-studios/davi-nfc-sheet/tls"
)

// SystrayApp manages the system tray interface for the agent.
type SystrayApp struct {
	agent *Agent

	mStatus  *systray.MenuItem
	mAlert   *systray.MenuItem
	mResult  *systray.MenuItem
	mScan    *systray.MenuItem
	mCancel  *systray.MenuItem
	mURL     *systray.MenuItem
	mCopyURL *systray.MenuItem
}

// NewSystrayApp creates a new systray application.
func NewSystrayApp(agent *Agent) *SystrayApp {
	return &SystrayApp{agent: agent}
}

// Run starts the systray application. It blocks until Quit.
func (s *SystrayApp) Run() {
	systray.Run(s.onReady, s.onExit)
}

func (s *SystrayApp) onReady() {
	s.setupUI()

	s.agent.OnStateChange(s.stateChanged)
	s.agent.OnAlert(func(msg string) {
		s.mAlert.SetTitle(msg)
		s.mAlert.Show()
	})
	s.agent.OnDisplay(s.showResult)

	if err := s.agent.Start(); err != nil {
		log.Printf("[systray] Failed to start agent: %v", err)
		s.mStatus.SetTitle("Failed to Start")
		systray.SetIcon(iconDataError)
		s.mScan.Disable()
		return
	}
	s.mStatus.SetTitle("Idle")
	systray.SetIcon(iconDataConnected)
	s.updateURL()
}

func (s *SystrayApp) onExit() {
	s.agent.Stop()
}

func (s *SystrayApp) setupUI() {
	systray.SetIcon(iconData)
	systray.SetTitle("")
	systray.SetTooltip(buildinfo.DisplayName + " " + buildinfo.Version)

	s.mStatus = systray.AddMenuItem("Starting...", "Session status")
	s.mStatus.Disable()
	s.mAlert = systray.AddMenuItem("", "Reader prompt")
	s.mAlert.Disable()
	s.mAlert.Hide()
	s.mResult = systray.AddMenuItem("Last scan: None", "Last scan result")
	s.mResult.Disable()

	systray.AddSeparator()

	s.mScan = systray.AddMenuItem("Scan Tag", "Start a scan session")
	s.mCancel = systray.AddMenuItem("Cancel Scan", "Cancel the running scan")
	s.mCancel.Disable()

	systray.AddSeparator()

	s.mURL = systray.AddMenuItem("Server: Not running", "WebSocket URL for clients")
	s.mURL.Disable()
	s.mCopyURL = systray.AddMenuItem("Copy Server URL", "Copy the WebSocket URL to the clipboard")

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	go s.handleMenuEvents(mQuit)
}

func (s *SystrayApp) handleMenuEvents(mQuit *systray.MenuItem) {
	for {
		select {
		case <-s.mScan.ClickedCh:
			if !s.agent.Scan() {
				log.Printf("[systray] Scan already requested")
			}
		case <-s.mCancel.ClickedCh:
			s.agent.Cancel()
		case <-s.mCopyURL.ClickedCh:
			if url := s.serverURL(); url != "" {
				if err := copyToClipboard(url); err != nil {
					log.Printf("[systray] Failed to copy to clipboard: %v", err)
				}
			}
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

// stateChanged runs on the session queue.
func (s *SystrayApp) stateChanged(state session.State) {
	switch state {
	case session.StateActive:
		s.mStatus.SetTitle("Scanning...")
		systray.SetIcon(iconDataScanning)
		s.mScan.Disable()
		s.mCancel.Enable()
	default:
		s.mStatus.SetTitle("Idle")
		systray.SetIcon(iconDataConnected)
		s.mAlert.Hide()
		s.mScan.Enable()
		s.mCancel.Disable()
	}
}

func (s *SystrayApp) showResult(o session.Outcome, display string) {
	s.mResult.SetTitle("Last scan: " + truncate(display, 48))
	if o.Kind != session.KindSuccess {
		systray.SetIcon(iconDataError)
	}
}

func (s *SystrayApp) updateURL() {
	if url := s.serverURL(); url != "" {
		s.mURL.SetTitle("Server: " + url)
	}
}

func (s *SystrayApp) serverURL() string {
	addr := s.agent.Server.Addr()
	if addr == nil {
		return ""
	}
	host := "localhost"
	if ips, err := tls.LANIPs(); err == nil && len(ips) > 0 {
		host = ips[0]
	}
	proto := "ws"
	if s.agent.Config.Server.TLS {
		proto = "wss"
	}
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s://%s:%s/ws", proto, host, port)
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

func copyToClipboard(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}
