package nfc

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

// uriPrefixes maps URI identifier codes to their abbreviated prefixes
// (NFC Forum URI RTD, table 3).
var uriPrefixes = []string{
	"",
	"http://www.",
	"https://www.",
	"http://",
	"https://",
	"tel:",
	"mailto:",
	"ftp://anonymous:anonymous@",
	"ftp://ftp.",
	"ftps://",
	"sftp://",
	"smb://",
	"nfs://",
	"ftp://",
	"dav://",
	"news:",
	"telnet://",
	"imap:",
	"rtsp://",
	"urn:",
	"pop:",
	"sip:",
	"sips:",
	"tftp:",
	"btspp://",
	"btl2cap://",
	"btgoep://",
	"tcpobex://",
	"irdaobex://",
	"file://",
	"urn:epc:id:",
	"urn:epc:tag:",
	"urn:epc:pat:",
	"urn:epc:raw:",
	"urn:epc:",
	"urn:nfc:",
}

// EncodeNdefMessageWithTextRecord creates an NDEF message containing a single Text Record.
func EncodeNdefMessageWithTextRecord(text string, langCodeStr string) []byte {
	data, _ := NewTextMessage(text, langCodeStr).Encode()
	return data
}

// MakeTextRecordPayload creates an NDEF Text Record payload with the specified text and language code.
func MakeTextRecordPayload(text string, langCodeStr string) []byte {
	if langCodeStr == "" {
		langCodeStr = "en"
	}
	langCode := []byte(langCodeStr)
	if len(langCode) > 0x3F {
		langCode = langCode[:0x3F]
	}
	payload := make([]byte, 1+len(langCode)+len(text))
	payload[0] = byte(len(langCode)) // UTF-8
	copy(payload[1:], langCode)
	copy(payload[1+len(langCode):], text)
	return payload
}

// MakeURIRecordPayload creates the payload for an NDEF URI record,
// abbreviating the longest matching well-known prefix.
func MakeURIRecordPayload(uri string) []byte {
	code := 0
	for i, prefix := range uriPrefixes {
		if prefix != "" && strings.HasPrefix(uri, prefix) && len(prefix) > len(uriPrefixes[code]) {
			code = i
		}
	}
	rest := uri[len(uriPrefixes[code]):]
	payload := make([]byte, 1+len(rest))
	payload[0] = byte(code)
	copy(payload[1:], rest)
	return payload
}

// parseTextRecordPayload extracts text from an NDEF Text Record's payload.
func parseTextRecordPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", fmt.Errorf("text record payload too short (status byte missing)")
	}
	status := payload[0]
	langLength := int(status & 0x3F)
	isUTF16 := (status & 0x80) != 0

	textDataStart := 1 + langLength
	if textDataStart > len(payload) {
		return "", fmt.Errorf("text record payload too short (language code or text missing)")
	}
	textBytes := payload[textDataStart:]

	if isUTF16 {
		if len(textBytes)%2 != 0 {
			return "", fmt.Errorf("invalid UTF-16 text length: %d", len(textBytes))
		}
		return decodeUTF16(textBytes), nil
	}
	return string(textBytes), nil
}

// decodeUTF16 decodes UTF-16 text, honouring a byte order mark and
// defaulting to big endian as the Text RTD requires.
func decodeUTF16(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var order binary.ByteOrder = binary.BigEndian
	switch {
	case b[0] == 0xFF && b[1] == 0xFE:
		order, b = binary.LittleEndian, b[2:]
	case b[0] == 0xFE && b[1] == 0xFF:
		b = b[2:]
	}
	u16s := make([]uint16, len(b)/2)
	for i := range u16s {
		u16s[i] = order.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u16s))
}

// textRecordLanguage extracts the language code from a text record payload.
func textRecordLanguage(payload []byte) string {
	if len(payload) < 1 {
		return ""
	}
	langLen := int(payload[0] & 0x3F)
	if langLen > 0 && len(payload) >= 1+langLen {
		return string(payload[1 : 1+langLen])
	}
	return ""
}

// parseURIRecordPayload extracts URI from an NDEF URI record payload.
func parseURIRecordPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", fmt.Errorf("URI record payload too short")
	}
	code := int(payload[0])
	prefix := ""
	if code < len(uriPrefixes) {
		prefix = uriPrefixes[code]
	}
	return prefix + string(payload[1:]), nil
}

// parseNDEFRecords parses raw NDEF message bytes into records. Parsing stops
// after the record with the ME flag set.
func parseNDEFRecords(ndefMessage []byte) ([]NDEFRecord, error) {
	if len(ndefMessage) == 0 {
		return nil, fmt.Errorf("empty NDEF message")
	}

	var records []NDEFRecord
	offset := 0

	for offset < len(ndefMessage) {
		header := ndefMessage[offset]
		me := (header & 0x40) != 0
		chunked := (header & 0x20) != 0
		sr := (header & 0x10) != 0
		il := (header & 0x08) != 0
		tnf := header & 0x07

		if chunked {
			return nil, fmt.Errorf("invalid NDEF message: chunked records are not supported (offset %d)", offset)
		}

		pos := offset + 1
		if pos >= len(ndefMessage) {
			return nil, fmt.Errorf("invalid NDEF message: truncated type length at offset %d", pos)
		}
		typeLength := int(ndefMessage[pos])
		pos++

		var payloadLength int
		if sr {
			if pos >= len(ndefMessage) {
				return nil, fmt.Errorf("invalid NDEF message: truncated short record payload length at offset %d", pos)
			}
			payloadLength = int(ndefMessage[pos])
			pos++
		} else {
			if pos+4 > len(ndefMessage) {
				return nil, fmt.Errorf("invalid NDEF message: truncated payload length at offset %d", pos)
			}
			payloadLength = int(binary.BigEndian.Uint32(ndefMessage[pos : pos+4]))
			pos += 4
		}

		var idLength int
		if il {
			if pos >= len(ndefMessage) {
				return nil, fmt.Errorf("invalid NDEF message: truncated ID length at offset %d", pos)
			}
			idLength = int(ndefMessage[pos])
			pos++
		}

		if pos+typeLength+idLength+payloadLength > len(ndefMessage) {
			return nil, fmt.Errorf("invalid NDEF message: record at offset %d overruns buffer", offset)
		}

		record := NDEFRecord{TNF: tnf}
		if typeLength > 0 {
			record.Type = append([]byte(nil), ndefMessage[pos:pos+typeLength]...)
		}
		pos += typeLength
		if idLength > 0 {
			record.ID = append([]byte(nil), ndefMessage[pos:pos+idLength]...)
		}
		pos += idLength
		record.Payload = append([]byte(nil), ndefMessage[pos:pos+payloadLength]...)
		pos += payloadLength

		records = append(records, record)
		offset = pos

		if me {
			break
		}
	}

	return records, nil
}

// encodeNDEFRecords encodes records into raw NDEF message bytes, setting
// MB on the first record and ME on the last.
func encodeNDEFRecords(records []NDEFRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("cannot encode empty record list")
	}

	var result []byte
	for i, record := range records {
		if len(record.Type) > 0xFF || len(record.ID) > 0xFF {
			return nil, fmt.Errorf("record %d: type or ID longer than 255 bytes", i)
		}

		payloadLen := len(record.Payload)
		isShort := payloadLen <= 0xFF
		hasID := len(record.ID) > 0

		header := record.TNF & 0x07
		if i == 0 {
			header |= 0x80
		}
		if i == len(records)-1 {
			header |= 0x40
		}
		if isShort {
			header |= 0x10
		}
		if hasID {
			header |= 0x08
		}

		result = append(result, header, byte(len(record.Type)))
		if isShort {
			result = append(result, byte(payloadLen))
		} else {
			result = binary.BigEndian.AppendUint32(result, uint32(payloadLen))
		}
		if hasID {
			result = append(result, byte(len(record.ID)))
		}
		result = append(result, record.Type...)
		result = append(result, record.ID...)
		result = append(result, record.Payload...)
	}

	return result, nil
}
