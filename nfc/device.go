package nfc

// Device represents an NFC reader hardware device.
//
// A Device is obtained from a Manager and polls the RF field for tags.
//
// Example:
//
//	manager := nfc.NewManager()
//	device, err := manager.OpenDevice("")
//	defer device.Close()
type Device interface {
	Close() error
	InitiatorInit() error
	String() string
	Connection() string
	GetTags() ([]Tag, error)
}
