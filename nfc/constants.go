package nfc

import "time"

// Card type names reported by Tag.Type.
const (
	CardTypeMifareClassic1K  = "MIFARE Classic 1K"
	CardTypeMifareClassic4K  = "MIFARE Classic 4K"
	CardTypeMifareUltralight = "MIFARE Ultralight"
	CardTypeUltralightC      = "MIFARE Ultralight C"
	CardTypeUnknown          = "Unknown"
)

// Device enumeration
const (
	DeviceEnumRetries  = 3
	DeviceEnumInterval = 100 * time.Millisecond
)

// MIFARE Classic keys
var (
	// FactoryKey is the factory default key (all 0xFF)
	FactoryKey = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	// PublicKey is the NFC Forum public key A for NDEF sectors
	PublicKey = [6]byte{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}
)
