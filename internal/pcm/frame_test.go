package pcm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrameDurationIsSampleCountOverRate(t *testing.T) {
	cases := []struct {
		samples int
		rate    int
	}{
		{0, 16000},
		{1, 16000},
		{185000, 16000},
		{44100, 44100},
		{12345, 22050},
	}
	for _, tc := range cases {
		frame := NewFrame(make([]int16, tc.samples), tc.rate, time.Time{})
		require.Equal(t, float64(tc.samples)/float64(tc.rate), frame.DurationSeconds())
	}

	require.Equal(t, 11.5625, NewFrame(make([]int16, 185000), 16000, time.Time{}).DurationSeconds())
	require.Equal(t, 500*time.Millisecond, NewFrame(make([]int16, 8000), 16000, time.Time{}).Duration())
}

func TestFrameIsImmutable(t *testing.T) {
	src := []int16{1, 2, 3}
	frame := NewFrame(src, 16000, time.Time{})
	src[0] = 99

	got := frame.Samples()
	require.Equal(t, []int16{1, 2, 3}, got)

	got[1] = 42
	require.Equal(t, int16(2), frame.At(1))
}

func TestFrameEqualIgnoresTimestamp(t *testing.T) {
	a := NewFrame([]int16{1, 2}, 8000, time.Unix(1, 0))
	b := NewFrame([]int16{1, 2}, 8000, time.Unix(2, 0))
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(NewFrame([]int16{1, 2}, 16000, time.Time{})))
	require.False(t, a.Equal(NewFrame([]int16{1, 3}, 8000, time.Time{})))
}

func TestFrameZeroRateDuration(t *testing.T) {
	require.Zero(t, Frame{}.DurationSeconds())
	require.Zero(t, Frame{}.Duration())
	require.True(t, Frame{}.Empty())
}

func TestPCM16LERoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, MaxSample, MinSample, 1234}
	encoded := EncodePCM16LE(samples)
	require.Len(t, encoded, 12)
	require.Equal(t, []byte{0xff, 0x7f}, encoded[6:8])

	decoded, err := DecodePCM16LE(encoded)
	require.NoError(t, err)
	require.Equal(t, samples, decoded)

	frame, err := FromPCM16LE(encoded, 16000, time.Time{})
	require.NoError(t, err)
	require.Equal(t, encoded, frame.Bytes())
}

func TestDecodePCM16LERejectsOddLength(t *testing.T) {
	_, err := DecodePCM16LE([]byte{1, 2, 3})
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple of 2")
}

func TestDownmixInterleaved(t *testing.T) {
	stereo := []int{100, 300, -100, -300, 7, 8}
	require.Equal(t, []int16{200, -200, 8}, DownmixInterleaved(stereo, 2, 16))

	require.Equal(t, []int16{1, 2}, DownmixInterleaved([]int{1, 2}, 1, 16))
	require.Equal(t, []int16{256}, DownmixInterleaved([]int{65536}, 1, 24))
	require.Equal(t, []int16{0, MinSample}, DownmixInterleaved([]int{128, 0}, 1, 8))
}

func TestToneShape(t *testing.T) {
	frame := Tone(440, 100*time.Millisecond, 0.5, 16000)
	require.Equal(t, 1600, frame.Len())
	require.Equal(t, int16(0), frame.At(0))
	require.InDelta(t, 0.5*fullScale/1.41421356, RMS(frame), 600)

	require.True(t, Tone(0, time.Second, 1, 16000).Empty())
}
