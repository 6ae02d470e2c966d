package domain

type DeviceType string

const (
	DeviceTypeLight  DeviceType = "light"
	DeviceTypePlug   DeviceType = "plug"
	DeviceTypeSwitch DeviceType = "switch"
	DeviceTypeFan    DeviceType = "fan"
	DeviceTypeOther  DeviceType = "other"
)

// DeviceInfo is one entry of the /lights listing.
type DeviceInfo struct {
	Name       string     `json:"name"`
	DeviceID   string     `json:"device_id"`
	Type       DeviceType `json:"type"`
	Power      string     `json:"power,omitempty"`
	Brightness *int       `json:"brightness,omitempty"`
	Color      string     `json:"color,omitempty"`
}

// DeviceState is what a vendor reports for a device. Unknown values stay nil.
type DeviceState struct {
	Power      *bool
	Brightness *int
	Color      *RGB
}
