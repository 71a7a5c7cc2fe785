// Package buildinfo contains application metadata that can be set at build time.
//
// For release builds, use ldflags to set the version:
//
//	go build -ldflags "\
//	  -X github.com/dotside-studios/davi-nfc-sheet/buildinfo.Version=1.0.0 \
//	  -X github.com/dotside-studios/davi-nfc-sheet/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/dotside-studios/davi-nfc-sheet/buildinfo.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import (
	"fmt"
	"runtime"
	"strings"
)

// Application metadata, overridable at build time via ldflags
var (
	// Name is the technical application name
	Name = "davi-nfc-sheet"

	// DirName is the config directory name within user config paths
	DirName = "davi-nfc-sheet"

	// DisplayName is the user-facing name (UI, mDNS, titles)
	DisplayName = "Davi NFC Sheet"

	Description = "Scan-on-demand NFC badge reader"

	// Version is the semantic version (set via ldflags for releases)
	Version = "dev"

	Commit    = ""
	BuildTime = ""
)

// FullVersion returns the version string with optional commit info,
// e.g. "1.0.0 (abc1234)".
func FullVersion() string {
	if Commit != "" {
		return fmt.Sprintf("%s (%s)", Version, Commit)
	}
	return Version
}

// UserAgent returns a user agent string for HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", Name, Version)
}

// BuildInfo returns a multi-line string with full build information.
func BuildInfo() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", Name, FullVersion())
	fmt.Fprintf(&sb, "  %s\n", Description)
	fmt.Fprintf(&sb, "  Go: %s\n", runtime.Version())
	fmt.Fprintf(&sb, "  OS/Arch: %s/%s", runtime.GOOS, runtime.GOARCH)
	if BuildTime != "" {
		fmt.Fprintf(&sb, "\n  Built: %s", BuildTime)
	}
	return sb.String()
}

// IsDev returns true if this is a development build.
func IsDev() bool {
	return Version == "dev"
}
