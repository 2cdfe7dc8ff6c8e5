package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Preference is the configured device choice. Index, when set, wins over Name.
type Preference struct {
	Name     string
	Fallback string
	Index    *int
}

// Selection is the resolved device plus optional fallback warning context.
type Selection struct {
	Device   DeviceInfo
	Warning  string
	Fallback bool
}

// SelectInput resolves pref against live Pulse sources.
func SelectInput(ctx context.Context, pref Preference) (Selection, error) {
	devices, err := ListInputDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDevice(devices, pref)
}

// SelectOutput resolves pref against live Pulse sinks.
func SelectOutput(ctx context.Context, pref Preference) (Selection, error) {
	devices, err := ListOutputDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDevice(devices, pref)
}

// selectDevice applies the selection policy to a pre-fetched device list.
func selectDevice(devices []DeviceInfo, pref Preference) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio devices found")
	}

	input := strings.TrimSpace(strings.ToLower(pref.Name))
	fallback := strings.TrimSpace(strings.ToLower(pref.Fallback))

	var defaultDevice, byInput, byFallback *DeviceInfo
	for i := range devices {
		dev := &devices[i]
		if dev.Default {
			defaultDevice = dev
		}
		if byInput == nil && pref.Index != nil && dev.Index == *pref.Index {
			byInput = dev
		}
		if byInput == nil && pref.Index == nil && isNamed(input) && deviceMatches(*dev, input) {
			byInput = dev
		}
		if byFallback == nil && isNamed(fallback) && deviceMatches(*dev, fallback) {
			byFallback = dev
		}
	}

	chooseDefault := func() (*DeviceInfo, error) {
		if defaultDevice == nil {
			return nil, errors.New("default audio device is unavailable")
		}
		return defaultDevice, nil
	}

	var primary *DeviceInfo
	switch {
	case pref.Index != nil:
		if byInput == nil {
			return Selection{}, fmt.Errorf("audio device index %d not found", *pref.Index)
		}
		primary = byInput
	case !isNamed(input):
		d, err := chooseDefault()
		if err != nil {
			return Selection{}, err
		}
		primary = d
	case byInput != nil:
		primary = byInput
	default:
		return Selection{}, fmt.Errorf("audio device %q did not match any device", input)
	}

	if primary.Available && !primary.Muted {
		return Selection{Device: *primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	var fallbackDevice *DeviceInfo
	if isNamed(fallback) {
		if byFallback == nil {
			return Selection{}, fmt.Errorf("audio device %q is %s and fallback %q not found", primary.Name, reason, fallback)
		}
		fallbackDevice = byFallback
	} else {
		d, err := chooseDefault()
		if err != nil {
			return Selection{}, fmt.Errorf("audio device %q is %s and no usable fallback: %w", primary.Name, reason, err)
		}
		fallbackDevice = d
	}

	if !fallbackDevice.Available {
		return Selection{}, fmt.Errorf("audio fallback device %q is not available", fallbackDevice.Name)
	}
	if fallbackDevice.Muted {
		return Selection{}, fmt.Errorf("audio fallback device %q is muted", fallbackDevice.Name)
	}

	return Selection{
		Device:   *fallbackDevice,
		Warning:  fmt.Sprintf("audio device %q is %s; falling back to %q", primary.Name, reason, fallbackDevice.Name),
		Fallback: primary.Name != fallbackDevice.Name,
	}, nil
}

func isNamed(term string) bool {
	return term != "" && term != "default"
}

// deviceMatches reports whether a search term matches a device name or description.
func deviceMatches(device DeviceInfo, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.Name), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}
