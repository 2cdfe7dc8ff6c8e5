package audiofile

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/rbright/murmur/internal/pcm"
)

const wavFormatPCM = 1

var errInvalidWAV = errors.New("invalid wav data")

// DecodeWAV reads a PCM WAV container and downmixes it to a mono frame.
func DecodeWAV(data []byte) (pcm.Frame, Info, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return pcm.Frame{}, Info{}, errInvalidWAV
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return pcm.Frame{}, Info{}, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate <= 0 {
		return pcm.Frame{}, Info{}, errInvalidWAV
	}

	channels := buf.Format.NumChannels
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(decoder.BitDepth)
	}

	mono := pcm.DownmixInterleaved(buf.Data, channels, bitDepth)
	frame := pcm.NewFrame(mono, buf.Format.SampleRate, zeroTime)
	info := Info{
		Format:          "wav",
		SampleRate:      buf.Format.SampleRate,
		Channels:        channels,
		DurationSeconds: frame.DurationSeconds(),
	}
	return frame, info, nil
}

// EncodeWAV writes frame as a 16-bit mono PCM WAV container.
func EncodeWAV(frame pcm.Frame) ([]byte, error) {
	if frame.SampleRate() <= 0 {
		return nil, pcm.ErrInvalidRate
	}

	out := &seekBuffer{}
	encoder := wav.NewEncoder(out, frame.SampleRate(), 16, 1, wavFormatPCM)

	samples := frame.Samples()
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: frame.SampleRate()},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return out.Bytes(), nil
}

// seekBuffer is an in-memory io.WriteSeeker for the wav encoder, which
// rewrites the header sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.buf) {
		if end > cap(b.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.buf)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek: negative position %d", next)
	}
	b.pos = int(next)
	return next, nil
}

func (b *seekBuffer) Bytes() []byte {
	return b.buf
}
