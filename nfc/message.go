package nfc

import "fmt"

// Type Name Format values (NFC Forum NDEF 1.0, section 3.2.6).
const (
	TNFEmpty       byte = 0x00
	TNFWellKnown   byte = 0x01
	TNFMedia       byte = 0x02
	TNFAbsoluteURI byte = 0x03
	TNFExternal    byte = 0x04
	TNFUnknown     byte = 0x05
	TNFUnchanged   byte = 0x06
)

// NDEFRecord represents a single NDEF record within a message.
//
// The session layer never looks inside a record; helpers like GetText and
// GetURI are for callers formatting results.
type NDEFRecord struct {
	TNF     byte   // Type Name Format (0x00-0x07)
	Type    []byte // Record type (e.g., "T" for text, "U" for URI)
	ID      []byte // Optional record ID
	Payload []byte // Record payload data
}

// GetText extracts text from a Text Record (TNF=0x01, Type='T').
// Returns (text, true) if this is a text record, or ("", false) otherwise.
func (r *NDEFRecord) GetText() (string, bool) {
	if !r.IsTextRecord() {
		return "", false
	}
	text, err := parseTextRecordPayload(r.Payload)
	if err != nil {
		return "", false
	}
	return text, true
}

// GetURI extracts URI from a URI Record (TNF=0x01, Type='U').
func (r *NDEFRecord) GetURI() (string, bool) {
	if !r.IsURIRecord() {
		return "", false
	}
	uri, err := parseURIRecordPayload(r.Payload)
	if err != nil {
		return "", false
	}
	return uri, true
}

// IsTextRecord returns true if this is a Text Record.
func (r *NDEFRecord) IsTextRecord() bool {
	return r.TNF == TNFWellKnown && len(r.Type) == 1 && r.Type[0] == 'T'
}

// IsURIRecord returns true if this is a URI Record.
func (r *NDEFRecord) IsURIRecord() bool {
	return r.TNF == TNFWellKnown && len(r.Type) == 1 && r.Type[0] == 'U'
}

// NDEFMessage is one decoded NDEF message: an ordered list of records as
// read from a tag.
type NDEFMessage struct {
	records []NDEFRecord
}

// NewNDEFMessage creates a new empty NDEF message.
func NewNDEFMessage() *NDEFMessage {
	return &NDEFMessage{records: []NDEFRecord{}}
}

// NewTextMessage builds a message holding a single text record.
func NewTextMessage(text, lang string) *NDEFMessage {
	return NewNDEFMessage().AddText(text, lang)
}

// AddRecord adds a raw NDEF record to the message.
func (m *NDEFMessage) AddRecord(record NDEFRecord) *NDEFMessage {
	m.records = append(m.records, record)
	return m
}

// AddText adds an NDEF Text Record to the message.
func (m *NDEFMessage) AddText(text, lang string) *NDEFMessage {
	m.records = append(m.records, NDEFRecord{
		TNF:     TNFWellKnown,
		Type:    []byte("T"),
		Payload: MakeTextRecordPayload(text, lang),
	})
	return m
}

// AddURI adds an NDEF URI Record to the message.
func (m *NDEFMessage) AddURI(uri string) *NDEFMessage {
	m.records = append(m.records, NDEFRecord{
		TNF:     TNFWellKnown,
		Type:    []byte("U"),
		Payload: MakeURIRecordPayload(uri),
	})
	return m
}

// Records returns the records in this message.
func (m *NDEFMessage) Records() []NDEFRecord {
	return m.records
}

// Len returns the number of records.
func (m *NDEFMessage) Len() int {
	return len(m.records)
}

// Encode converts the NDEF message to bytes.
func (m *NDEFMessage) Encode() ([]byte, error) {
	if len(m.records) == 0 {
		return nil, fmt.Errorf("cannot encode empty NDEF message")
	}
	return encodeNDEFRecords(m.records)
}

// GetText returns the text content from the first Text Record in the message.
func (m *NDEFMessage) GetText() (string, error) {
	for _, r := range m.records {
		if text, ok := r.GetText(); ok {
			return text, nil
		}
	}
	return "", fmt.Errorf("no text record found in NDEF message")
}

// GetURI returns the URI from the first URI Record in the message.
func (m *NDEFMessage) GetURI() (string, error) {
	for _, r := range m.records {
		if uri, ok := r.GetURI(); ok {
			return uri, nil
		}
	}
	return "", fmt.Errorf("no URI record found in NDEF message")
}

// DecodeNDEF parses raw bytes into an NDEFMessage.
// Returns error if the data is not valid NDEF format.
func DecodeNDEF(data []byte) (*NDEFMessage, error) {
	records, err := parseNDEFRecords(data)
	if err != nil {
		return nil, err
	}
	return &NDEFMessage{records: records}, nil
}

// DecodeTagData turns the raw bytes returned by Tag.ReadData into the NDEF
// messages they carry. Data wrapped in a TLV block may hold several NDEF
// Message TLVs; bare NDEF bytes hold exactly one message.
func DecodeTagData(data []byte) ([]*NDEFMessage, error) {
	if len(data) == 0 {
		return nil, NewEmptyTagError("DecodeTagData")
	}

	if IsTLVBlock(data) {
		blobs := TLVFindAllNDEF(data)
		messages := make([]*NDEFMessage, 0, len(blobs))
		for i, blob := range blobs {
			if len(blob) == 0 {
				continue
			}
			msg, err := DecodeNDEF(blob)
			if err != nil {
				return nil, NewInvalidDataError("DecodeTagData", fmt.Errorf("message %d: %w", i, err))
			}
			messages = append(messages, msg)
		}
		if len(messages) == 0 {
			return nil, NewEmptyTagError("DecodeTagData")
		}
		return messages, nil
	}

	msg, err := DecodeNDEF(data)
	if err != nil {
		return nil, NewInvalidDataError("DecodeTagData", err)
	}
	return []*NDEFMessage{msg}, nil
}
