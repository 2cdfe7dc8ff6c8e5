package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectDevicePrimaryDefault(t *testing.T) {
	devices := []DeviceInfo{
		{Index: 0, Name: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true},
		{Index: 1, Name: "sony", Description: "Sony WH-1000XM6", Available: true},
	}

	selection, err := selectDevice(devices, Preference{Name: "default", Fallback: "default"})
	require.NoError(t, err)
	require.Equal(t, "elgato", selection.Device.Name)
	require.Empty(t, selection.Warning)
}

func TestSelectDeviceByIndex(t *testing.T) {
	devices := []DeviceInfo{
		{Index: 0, Name: "elgato", Available: true, Default: true},
		{Index: 4, Name: "sony", Available: true},
	}
	index := 4
	selection, err := selectDevice(devices, Preference{Name: "elgato", Index: &index})
	require.NoError(t, err)
	require.Equal(t, "sony", selection.Device.Name)

	missing := 9
	_, err = selectDevice(devices, Preference{Index: &missing})
	require.ErrorContains(t, err, "index 9 not found")
}

func TestSelectDeviceMutedPrimaryUsesFallback(t *testing.T) {
	devices := []DeviceInfo{
		{Name: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Muted: true, Default: true},
		{Name: "sony", Description: "Sony WH-1000XM6", Available: true},
	}

	selection, err := selectDevice(devices, Preference{Name: "elgato", Fallback: "sony"})
	require.NoError(t, err)
	require.Equal(t, "sony", selection.Device.Name)
	require.Contains(t, selection.Warning, "muted")
	require.True(t, selection.Fallback)
}

func TestSelectDeviceFailsWhenSelectedAndFallbackMuted(t *testing.T) {
	devices := []DeviceInfo{
		{Name: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Muted: true, Default: true},
	}

	_, err := selectDevice(devices, Preference{Name: "default", Fallback: "default"})
	require.ErrorContains(t, err, "muted")
}

func TestSelectDeviceUnknownName(t *testing.T) {
	devices := []DeviceInfo{{Name: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true}}

	_, err := selectDevice(devices, Preference{Name: "missing"})
	require.ErrorContains(t, err, "did not match")
}

func TestSelectDeviceEmptyList(t *testing.T) {
	_, err := selectDevice(nil, Preference{})
	require.Error(t, err)
}

func TestDeviceMatchesByNameAndDescription(t *testing.T) {
	dev := DeviceInfo{Name: "alsa_input.usb-elgato", Description: "Elgato Wave 3 Mono"}
	require.True(t, deviceMatches(dev, "elgato"))
	require.True(t, deviceMatches(dev, "wave 3"))
	require.False(t, deviceMatches(dev, "missing"))
	require.False(t, deviceMatches(dev, ""))
}
