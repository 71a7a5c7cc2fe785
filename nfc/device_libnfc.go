package nfc

import (
	"log"

	"github.com/clausecker/freefare"
	"github.com/clausecker/nfc/v2"
)

// libnfcDevice implements Device using an actual nfc.Device from libnfc.
type libnfcDevice struct {
	device nfc.Device
}

// NewDevice creates a new Device from an nfc.Device.
func NewDevice(dev nfc.Device) Device {
	return &libnfcDevice{device: dev}
}

func (d *libnfcDevice) Close() error {
	return d.device.Close()
}

func (d *libnfcDevice) InitiatorInit() error {
	if err := d.device.InitiatorInit(); err != nil {
		return NewDeviceIOError("InitiatorInit", err)
	}
	return nil
}

func (d *libnfcDevice) String() string {
	return d.device.String()
}

func (d *libnfcDevice) Connection() string {
	return d.device.Connection()
}

// GetTags polls the field once and returns the NDEF-capable tags found.
// Tags freefare recognises but cannot read NDEF from are skipped.
func (d *libnfcDevice) GetTags() ([]Tag, error) {
	ffTags, err := freefare.GetTags(d.device)
	if err != nil {
		return nil, NewDeviceIOError("GetTags", err)
	}

	var found []Tag
	seen := make(map[string]bool)
	for _, ffTag := range ffTags {
		uid := ffTag.UID()
		if seen[uid] {
			continue
		}
		seen[uid] = true

		switch t := ffTag.(type) {
		case freefare.ClassicTag:
			found = append(found, newClassicTag(t))
		case freefare.UltralightTag:
			found = append(found, newUltralightTag(t))
		default:
			log.Printf("Skipping unsupported tag: UID %s, Type %T", uid, t)
		}
	}
	return found, nil
}
