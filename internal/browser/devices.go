package browser

// Device kinds used in trial keys and output rows.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
)

const mobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

// Device is an emulation profile for one trial session.
type Device struct {
	Kind      string
	Width     int
	Height    int
	UserAgent string
	IsMobile  bool
}

// ViewportLabel is the WxH string recorded in output rows.
func (d Device) ViewportLabel() string {
	if d.Kind == DeviceMobile {
		return "390x844"
	}
	return "1366x768"
}

// Desktop is the default desktop profile.
func Desktop() Device {
	return Device{Kind: DeviceDesktop, Width: 1366, Height: 768}
}

// Mobile emulates a current iPhone.
func Mobile() Device {
	return Device{Kind: DeviceMobile, Width: 390, Height: 844, UserAgent: mobileUserAgent, IsMobile: true}
}

// Devices returns the full profile set every candidate is measured under.
func Devices() []Device {
	return []Device{Desktop(), Mobile()}
}
