package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceProfiles(t *testing.T) {
	desktop := Desktop()
	assert.Equal(t, DeviceDesktop, desktop.Kind)
	assert.Equal(t, "1366x768", desktop.ViewportLabel())
	assert.False(t, desktop.IsMobile)
	assert.Empty(t, desktop.UserAgent, "desktop uses the browser's own UA")

	mobile := Mobile()
	assert.Equal(t, DeviceMobile, mobile.Kind)
	assert.Equal(t, "390x844", mobile.ViewportLabel())
	assert.True(t, mobile.IsMobile)
	assert.Contains(t, mobile.UserAgent, "iPhone")
}

func TestDevicesOrder(t *testing.T) {
	devices := Devices()
	assert.Len(t, devices, 2)
	assert.Equal(t, DeviceDesktop, devices[0].Kind)
	assert.Equal(t, DeviceMobile, devices[1].Kind)
}
