package nfc

import "fmt"

// NDEFRecordPayload represents an NDEF record in JSON-friendly format.
// This structure is used for WebSocket clients, phone readers and API responses.
type NDEFRecordPayload struct {
	Type     string `json:"type"`               // "text", "uri" or the raw record type
	Content  string `json:"content,omitempty"`  // Decoded content (text or URI)
	Language string `json:"language,omitempty"` // Language code for text records
	TNF      uint8  `json:"tnf"`
	ID       string `json:"id,omitempty"`
	Payload  []byte `json:"payload,omitempty"` // Raw payload data
}

// NDEFMessagePayload represents an NDEF message in JSON-friendly format.
type NDEFMessagePayload struct {
	Type    string              `json:"type"` // always "ndef"
	Records []NDEFRecordPayload `json:"records"`
}

// ToPayload converts an NDEFMessage to a JSON-friendly payload structure.
func (m *NDEFMessage) ToPayload() *NDEFMessagePayload {
	if m == nil {
		return nil
	}

	payload := &NDEFMessagePayload{
		Type:    "ndef",
		Records: make([]NDEFRecordPayload, 0, len(m.records)),
	}

	for _, record := range m.records {
		recordPayload := NDEFRecordPayload{
			TNF:     record.TNF,
			Payload: record.Payload,
		}
		if len(record.ID) > 0 {
			recordPayload.ID = string(record.ID)
		}

		if text, ok := record.GetText(); ok {
			recordPayload.Type = "text"
			recordPayload.Content = text
			recordPayload.Language = textRecordLanguage(record.Payload)
		} else if uri, ok := record.GetURI(); ok {
			recordPayload.Type = "uri"
			recordPayload.Content = uri
		} else {
			recordPayload.Type = string(record.Type)
		}

		payload.Records = append(payload.Records, recordPayload)
	}

	return payload
}

// MessagesToPayload converts a list of messages for JSON output.
func MessagesToPayload(messages []*NDEFMessage) []*NDEFMessagePayload {
	out := make([]*NDEFMessagePayload, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ToPayload())
	}
	return out
}

// MessageFromPayload rebuilds an NDEFMessage from its JSON form. Text and
// URI records may carry only Content; any other record needs its raw
// Payload and Type.
func MessageFromPayload(p *NDEFMessagePayload) (*NDEFMessage, error) {
	if p == nil || len(p.Records) == 0 {
		return nil, fmt.Errorf("NDEF payload has no records")
	}

	msg := NewNDEFMessage()
	for i, r := range p.Records {
		switch {
		case r.Type == "text" && len(r.Payload) == 0:
			msg.AddText(r.Content, r.Language)
		case r.Type == "uri" && len(r.Payload) == 0:
			msg.AddURI(r.Content)
		case r.Type == "text":
			msg.AddRecord(NDEFRecord{TNF: TNFWellKnown, Type: []byte("T"), ID: []byte(r.ID), Payload: r.Payload})
		case r.Type == "uri":
			msg.AddRecord(NDEFRecord{TNF: TNFWellKnown, Type: []byte("U"), ID: []byte(r.ID), Payload: r.Payload})
		case r.TNF > 0x07:
			return nil, fmt.Errorf("record %d: invalid TNF %d", i, r.TNF)
		default:
			msg.AddRecord(NDEFRecord{TNF: r.TNF, Type: []byte(r.Type), ID: []byte(r.ID), Payload: r.Payload})
		}
	}
	return msg, nil
}
