package nfc

// TLV types used on NFC Forum Type 1/2 tags and MIFARE Classic NDEF sectors.
const (
	TLVNull        = 0x00
	TLVLockCtrl    = 0x01
	TLVMemCtrl     = 0x02
	TLVNDEF        = 0x03
	TLVProprietary = 0xFD
	TLVTerminator  = 0xFE
)

// TLVEncode encodes data into TLV format followed by a Terminator TLV.
// Returns: [Type][Length][Value][0xFE]
func TLVEncode(data []byte, tlvType byte) []byte {
	length := len(data)
	result := []byte{tlvType}

	if length < 0xFF {
		result = append(result, byte(length))
	} else {
		// Long format: 0xFF followed by 2-byte big-endian length
		result = append(result, 0xFF, byte(length>>8), byte(length&0xFF))
	}

	result = append(result, data...)
	return append(result, TLVTerminator)
}

// IsTLVBlock reports whether data starts with a TLV that can precede an
// NDEF message. Bare NDEF records start with a header byte that has the MB
// flag (0x80) set, so they never collide with these types.
func IsTLVBlock(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	switch data[0] {
	case TLVNull, TLVLockCtrl, TLVMemCtrl, TLVNDEF:
		return true
	}
	return false
}

// tlvHeader returns the value length and the offset of the value relative to
// the type byte. ok is false when the header is truncated.
func tlvHeader(data []byte) (length, valueOffset int, ok bool) {
	if len(data) < 2 {
		return 0, 0, false
	}
	if data[1] == 0xFF {
		if len(data) < 4 {
			return 0, 0, false
		}
		return int(data[2])<<8 | int(data[3]), 4, true
	}
	return int(data[1]), 2, true
}

// TLVFindNDEF finds the first NDEF Message TLV in a TLV block.
func TLVFindNDEF(data []byte) ([]byte, bool) {
	all := TLVFindAllNDEF(data)
	if len(all) == 0 {
		return nil, false
	}
	return all[0], true
}

// TLVFindAllNDEF walks a TLV block and returns the value of every NDEF
// Message TLV, in order. Walking stops at the Terminator TLV or at the first
// malformed TLV.
func TLVFindAllNDEF(data []byte) [][]byte {
	var found [][]byte
	offset := 0

	for offset < len(data) {
		switch data[offset] {
		case TLVNull:
			offset++
			continue
		case TLVTerminator:
			return found
		}

		length, valueOffset, ok := tlvHeader(data[offset:])
		if !ok {
			return found
		}
		valueStart := offset + valueOffset
		if valueStart+length > len(data) {
			return found
		}

		if data[offset] == TLVNDEF {
			found = append(found, data[valueStart:valueStart+length])
		}
		offset = valueStart + length
	}

	return found
}
