package pcm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResampleIdentity(t *testing.T) {
	for _, rate := range []int{8000, 16000, 22050, 44100, 48000} {
		frame := sineFrame(440, 5000, rate/10, rate)
		out, err := Resample(frame, rate)
		require.NoError(t, err)
		require.True(t, frame.Equal(out), "rate=%d", rate)
	}
}

func TestResampleOutputLength(t *testing.T) {
	cases := []struct {
		n, from, to, want int
	}{
		{1001, 16000, 8000, 501},
		{16000, 16000, 48000, 48000},
		{44100, 44100, 16000, 16000},
		{3, 48000, 16000, 1},
		{0, 48000, 16000, 0},
	}
	for _, tc := range cases {
		out, err := Resample(NewFrame(make([]int16, tc.n), tc.from, time.Time{}), tc.to)
		require.NoError(t, err)
		require.Equal(t, tc.want, out.Len(), "%d@%d->%d", tc.n, tc.from, tc.to)
		require.Equal(t, tc.to, out.SampleRate())
	}
}

func TestResamplePreservesInBandTone(t *testing.T) {
	frame := sineFrame(200, 10000, 16000, 16000)

	down, err := Resample(frame, 8000)
	require.NoError(t, err)
	require.InEpsilon(t, RMS(frame), RMS(down), 0.03)

	up, err := Resample(frame, 48000)
	require.NoError(t, err)
	require.InEpsilon(t, RMS(frame), RMS(up), 0.03)
}

func TestResampleAttenuatesAboveTargetNyquist(t *testing.T) {
	frame := sineFrame(6000, 10000, 48000, 48000)
	down, err := Resample(frame, 8000)
	require.NoError(t, err)
	require.Less(t, RMS(down), RMS(frame)*0.2)
}

func TestResampleRejectsInvalidRates(t *testing.T) {
	_, err := Resample(NewFrame([]int16{1}, 16000, time.Time{}), 0)
	require.ErrorIs(t, err, ErrInvalidRate)

	_, err = Resample(NewFrame([]int16{1}, 0, time.Time{}), 16000)
	require.ErrorIs(t, err, ErrInvalidRate)
}
