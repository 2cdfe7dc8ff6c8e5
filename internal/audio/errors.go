package audio

import "fmt"

// DeviceError reports a failed acquire, read, or write on an audio device.
// Capture and playback return it instead of propagating driver faults.
type DeviceError struct {
	Op     string
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	device := e.Device
	if device == "" {
		device = "default"
	}
	return fmt.Sprintf("audio %s %q: %v", e.Op, device, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}
