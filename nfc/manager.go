package nfc

// Manager handles NFC device discovery.
//
// Example:
//
//	manager := nfc.NewManager()
//	devices, _ := manager.ListDevices()
//	device, _ := manager.OpenDevice(devices[0])
//	tags, _ := device.GetTags()
type Manager interface {
	OpenDevice(deviceStr string) (Device, error)
	ListDevices() ([]string, error)
}

// NewManager creates a new Manager using the default libnfc/freefare implementation.
//
// Example:
//
//	manager := nfc.NewManager()
func NewManager() Manager {
	return &defaultManager{}
}

// OnceLister is implemented by managers whose ListDevices retries and that
// can also enumerate in a single attempt.
type OnceLister interface {
	ListDevicesOnce() ([]string, error)
}

// ListDevicesOnce lists readers without retrying when m supports it, and
// falls back to m.ListDevices otherwise.
func ListDevicesOnce(m Manager) ([]string, error) {
	if l, ok := m.(OnceLister); ok {
		return l.ListDevicesOnce()
	}
	return m.ListDevices()
}
