package nfc

import (
	"fmt"
	"log"

	"github.com/clausecker/freefare"
)

// classicTag reads the NFC Forum application of a MIFARE Classic tag.
type classicTag struct {
	tag freefare.ClassicTag
}

func newClassicTag(tag freefare.ClassicTag) *classicTag {
	return &classicTag{tag: tag}
}

func (c *classicTag) UID() string {
	return c.tag.UID()
}

func (c *classicTag) Type() string {
	switch c.tag.Type() {
	case freefare.Classic1k:
		return CardTypeMifareClassic1K
	case freefare.Classic4k:
		return CardTypeMifareClassic4K
	default:
		return CardTypeUnknown
	}
}

// ReadData returns the TLV area of the NFC Forum application (AID 0x03E1).
// A tag still in factory state yields no data and no error.
func (c *classicTag) ReadData() ([]byte, error) {
	if err := c.tag.Connect(); err != nil {
		return nil, NewTagRemovedError("ReadData", err)
	}
	defer c.tag.Disconnect()

	mad, err := c.tag.ReadMad()
	if err != nil {
		madSector := byte(0x00)
		if c.tag.Type() == freefare.Classic4k {
			madSector = 0x10
		}
		trailer := freefare.ClassicSectorLastBlock(madSector)
		if authErr := c.tag.Authenticate(trailer, FactoryKey, int(freefare.KeyA)); authErr == nil {
			log.Printf("classicTag.ReadData: no MAD on %s, tag is in factory state", c.UID())
			return nil, nil
		}
		return nil, NewAuthError("ReadData", c.UID(), fmt.Errorf("read MAD: %w", err))
	}

	buffer := make([]byte, 4096)
	n, err := c.tag.ReadApplication(mad, freefare.MadNFCForumAid, buffer, PublicKey, int(freefare.KeyA))
	if err != nil {
		if IsTagRemovedError(err) {
			return nil, NewTagRemovedError("ReadData", err)
		}
		return nil, NewReadError("ReadData", err)
	}
	return buffer[:n], nil
}
