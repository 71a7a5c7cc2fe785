package nfc

import (
	"github.com/clausecker/freefare"
)

// Ultralight user memory starts at page 4; pages 0-3 hold UID, lock and
// capability container bytes.
const ultralightFirstDataPage = 4

// ultralightTag reads the Type 2 data area of a MIFARE Ultralight tag.
type ultralightTag struct {
	tag freefare.UltralightTag
}

func newUltralightTag(tag freefare.UltralightTag) *ultralightTag {
	return &ultralightTag{tag: tag}
}

func (u *ultralightTag) UID() string {
	return u.tag.UID()
}

func (u *ultralightTag) Type() string {
	switch u.tag.Type() {
	case freefare.Ultralight:
		return CardTypeMifareUltralight
	case freefare.UltralightC:
		return CardTypeUltralightC
	default:
		return CardTypeUnknown
	}
}

func (u *ultralightTag) lastPage() byte {
	if u.tag.Type() == freefare.UltralightC {
		return 0x27
	}
	return 0x0F
}

// ReadData reads user pages until the TLV terminator or the end of memory.
func (u *ultralightTag) ReadData() ([]byte, error) {
	if err := u.tag.Connect(); err != nil {
		return nil, NewTagRemovedError("ReadData", err)
	}
	defer u.tag.Disconnect()

	var data []byte
	for page := byte(ultralightFirstDataPage); page <= u.lastPage(); page++ {
		pageData, err := u.tag.ReadPage(page)
		if err != nil {
			if len(data) == 0 {
				if IsTagRemovedError(err) {
					return nil, NewTagRemovedError("ReadData", err)
				}
				return nil, NewReadError("ReadData", err)
			}
			break
		}
		data = append(data, pageData[:]...)
		if tlvComplete(data) {
			break
		}
	}
	return data, nil
}

// tlvComplete reports whether data already holds a terminated TLV sequence.
func tlvComplete(data []byte) bool {
	offset := 0
	for offset < len(data) {
		switch data[offset] {
		case TLVNull:
			offset++
			continue
		case TLVTerminator:
			return true
		}
		length, valueOffset, ok := tlvHeader(data[offset:])
		if !ok {
			return false
		}
		offset += valueOffset + length
	}
	return false
}
