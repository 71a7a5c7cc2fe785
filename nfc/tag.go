package nfc

// Tag represents an NFC tag present in the reader's field.
//
// ReadData returns the tag's NDEF area: either a TLV block (Type 2 and
// MIFARE Classic tags) or a bare NDEF message. DecodeTagData accepts both.
type Tag interface {
	UID() string
	Type() string
	ReadData() ([]byte, error)
}

// ReadMessages reads a tag and decodes every NDEF message it carries.
func ReadMessages(tag Tag) ([]*NDEFMessage, error) {
	data, err := tag.ReadData()
	if err != nil {
		if IsTagRemovedError(err) && GetErrorCode(err) != ErrCodeTagRemoved {
			return nil, NewTagRemovedError("ReadMessages", err)
		}
		return nil, err
	}
	return DecodeTagData(data)
}
