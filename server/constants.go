package server

import (
	"time"

	"github.com/dotside-studios/davi-nfc-sheet/buildinfo"
)

// mDNS service discovery
var (
	MDNSServiceType = "_nfc-sheet._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// WebSocket message types for client-server communication
const (
	WSMessageTypeScan          = "scan"
	WSMessageTypeCancel        = "cancel"
	WSMessageTypeStatus        = "status"
	WSMessageTypeSessionStatus = "sessionStatus"
	WSMessageTypeScanResult    = "scanResult"
	WSMessageTypeError         = "error"
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)

const (
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)
