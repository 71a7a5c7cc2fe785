package nfc

import (
	"fmt"
	"sync"
)

// MockDevice is a test implementation of Device that simulates NFC hardware.
//
// Example:
//
//	mock := NewMockDevice()
//	mock.AddTag(NewMockTag("04A1B2C3"))
//	tags, _ := mock.GetTags()
type MockDevice struct {
	// DeviceName is the simulated device name returned by String()
	DeviceName string

	// DeviceConnection is the simulated connection string returned by Connection()
	DeviceConnection string

	// IsOpen tracks whether the device is currently open
	IsOpen bool

	// InitError, if set, will be returned by InitiatorInit()
	InitError error

	// CloseError, if set, will be returned by Close()
	CloseError error

	// GetTagsFunc allows custom GetTags behavior for testing
	// If nil, returns Tags or GetTagsError
	GetTagsFunc func() ([]Tag, error)

	// Tags is the list of tags returned by GetTags()
	Tags []Tag

	// GetTagsError, if set, will be returned by GetTags()
	GetTagsError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu sync.Mutex
}

// NewMockDevice creates a new MockDevice with default values.
func NewMockDevice() *MockDevice {
	return &MockDevice{
		DeviceName:       "Mock NFC Reader",
		DeviceConnection: "mock:usb:001",
		IsOpen:           true,
		CallLog:          make([]string, 0),
	}
}

// Close simulates closing the device.
func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Close")

	if !m.IsOpen {
		return fmt.Errorf("device already closed")
	}

	m.IsOpen = false
	return m.CloseError
}

// Reopen marks a closed device open again, as a fresh OpenDevice would.
func (m *MockDevice) Reopen(connection string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.IsOpen = true
	if connection != "" {
		m.DeviceConnection = connection
	}
}

// InitiatorInit simulates device initialization.
func (m *MockDevice) InitiatorInit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "InitiatorInit")

	if !m.IsOpen {
		return fmt.Errorf("device not open")
	}

	return m.InitError
}

// String returns the simulated device name.
func (m *MockDevice) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "String")
	return m.DeviceName
}

// Connection returns the simulated connection string.
func (m *MockDevice) Connection() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Connection")
	return m.DeviceConnection
}

// GetTags simulates detecting tags on the device.
func (m *MockDevice) GetTags() ([]Tag, error) {
	m.mu.Lock()
	fn := m.GetTagsFunc
	m.CallLog = append(m.CallLog, "GetTags")
	if !m.IsOpen {
		m.mu.Unlock()
		return nil, fmt.Errorf("device not open")
	}
	if fn == nil {
		defer m.mu.Unlock()
		if m.GetTagsError != nil {
			return nil, m.GetTagsError
		}
		// Return a copy to prevent external modification
		tagsCopy := make([]Tag, len(m.Tags))
		copy(tagsCopy, m.Tags)
		return tagsCopy, nil
	}
	m.mu.Unlock()
	return fn()
}

// SetTags sets the tags that will be returned by GetTags().
func (m *MockDevice) SetTags(tags []Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Tags = tags
}

// AddTag adds a tag to the list returned by GetTags().
func (m *MockDevice) AddTag(tag Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Tags = append(m.Tags, tag)
}

// ClearTags removes all tags from the list returned by GetTags().
func (m *MockDevice) ClearTags() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Tags = make([]Tag, 0)
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockDevice) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}

// CountCalls returns how many times method appears in the call log.
func (m *MockDevice) CountCalls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.CallLog {
		if c == method {
			n++
		}
	}
	return n
}
