package pcm

import (
	"math"
	"time"
)

// Tone synthesizes a sine tone with a short linear attack and release.
// Volume is a fraction of full scale.
func Tone(frequencyHz float64, d time.Duration, volume float64, rate int) Frame {
	n := int(math.Round(d.Seconds() * float64(rate)))
	if n <= 0 || frequencyHz <= 0 || volume <= 0 {
		return owned(nil, rate, time.Time{})
	}

	ramp := min(n/10, rate/200) // at most 5ms
	if ramp < 1 {
		ramp = 1
	}

	out := make([]int16, n)
	for i := range out {
		envelope := 1.0
		if i < ramp {
			envelope = float64(i) / float64(ramp)
		}
		if tail := n - i - 1; tail < ramp {
			envelope = math.Min(envelope, float64(tail)/float64(ramp))
		}
		t := float64(i) / float64(rate)
		out[i] = clip(math.Sin(2*math.Pi*frequencyHz*t) * volume * envelope * fullScale)
	}
	return owned(out, rate, time.Time{})
}
