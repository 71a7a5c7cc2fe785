package session

import "github.com/dotside-studios/davi-nfc-sheet/nfc"

// Driver is a platform reader able to run scan sessions.
type Driver interface {
	// ReadingAvailable reports whether a session can be started right now.
	ReadingAvailable() bool
	// NewSession creates an inactive session that reports to delegate.
	NewSession(delegate Delegate) Handle
}

// Handle is one reading session. Each Handle is used for exactly one
// session and never reused.
//
// Drivers deliver at most one SessionDetected and exactly one
// SessionInvalidated per handle, on the controller's queue.
// SessionInvalidated may follow SessionDetected when the session tears
// itself down after the first read.
type Handle interface {
	ID() string
	AlertMessage() string
	SetAlertMessage(msg string)
	Begin()
	Invalidate()
}

// Delegate receives session lifecycle callbacks.
type Delegate interface {
	SessionActivated(h Handle)
	SessionDetected(h Handle, messages []*nfc.NDEFMessage)
	SessionInvalidated(h Handle, err error)
}
