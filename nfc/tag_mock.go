package nfc

import (
	"sync"
)

// MockTag is a test implementation of Tag that simulates NFC tag behavior.
//
// Example:
//
//	tag := NewMockTag("04A1B2C3")
//	tag.SetMessage(NewTextMessage("hello", "en"))
//	data, _ := tag.ReadData()
type MockTag struct {
	// TagUID is the UID returned by UID()
	TagUID string

	// TagType is the type string returned by Type()
	TagType string

	// Data is the data returned by ReadData()
	Data []byte

	// ReadDataFunc allows custom ReadData behavior
	// If nil, returns Data or ReadDataError
	ReadDataFunc func() ([]byte, error)

	// ReadDataError, if set, will be returned by ReadData()
	ReadDataError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu sync.Mutex
}

// NewMockTag creates a new MockTag with default values.
func NewMockTag(uid string) *MockTag {
	return &MockTag{
		TagUID:  uid,
		TagType: CardTypeMifareUltralight,
		Data:    []byte{},
		CallLog: make([]string, 0),
	}
}

// UID returns the tag's UID.
func (m *MockTag) UID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "UID")
	return m.TagUID
}

// Type returns the tag's type string.
func (m *MockTag) Type() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Type")
	return m.TagType
}

// ReadData returns the configured data.
func (m *MockTag) ReadData() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "ReadData")

	if m.ReadDataFunc != nil {
		return m.ReadDataFunc()
	}
	if m.ReadDataError != nil {
		return nil, m.ReadDataError
	}

	dataCopy := make([]byte, len(m.Data))
	copy(dataCopy, m.Data)
	return dataCopy, nil
}

// SetMessage stores msg on the tag wrapped in an NDEF Message TLV, the way
// a Type 2 tag lays it out.
func (m *MockTag) SetMessage(msg *NDEFMessage) error {
	raw, err := msg.Encode()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Data = TLVEncode(raw, TLVNDEF)
	return nil
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockTag) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}
