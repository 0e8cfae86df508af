package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChannelCount is returned when a decode is requested for
	// fewer than one channel.
	ErrInvalidChannelCount = errors.New("channel count must be at least 1")

	// ErrInvalidSampleRate is returned for non-positive sample rates.
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
)

// SampleBuffer holds normalized multichannel audio samples.
// Every channel slice has exactly FrameCount entries; sample values are
// in [-1.0, 1.0] (the positive end tops out at 32767/32768 for decoded
// 16-bit input).
type SampleBuffer struct {
	ChannelCount int
	SampleRate   int
	FrameCount   int
	Channels     [][]float64
}

// Decode converts raw little-endian signed 16-bit PCM into a normalized
// SampleBuffer. The input is interleaved per channel: sample i of channel c
// sits at byte offset 2*(i*channelCount + c). A trailing incomplete frame
// is dropped, never padded.
func Decode(raw []byte, sampleRate, channelCount int) (*SampleBuffer, error) {
	if channelCount < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidChannelCount, channelCount)
	}

	if sampleRate < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidSampleRate, sampleRate)
	}

	frameCount := len(raw) / 2 / channelCount

	channels := make([][]float64, channelCount)
	for c := 0; c < channelCount; c++ {
		samples := make([]float64, frameCount)
		for i := 0; i < frameCount; i++ {
			off := 2 * (i*channelCount + c)
			v := int16(uint16(raw[off]) | uint16(raw[off+1])<<8)
			samples[i] = float64(v) / 32768.0
		}
		channels[c] = samples
	}

	return &SampleBuffer{
		ChannelCount: channelCount,
		SampleRate:   sampleRate,
		FrameCount:   frameCount,
		Channels:     channels,
	}, nil
}

// Duration returns the buffer length in seconds.
func (b *SampleBuffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.FrameCount) / float64(b.SampleRate)
}

// Interleaved quantizes the buffer back to interleaved 16-bit samples in
// the same channel-minor, frame-major order Decode consumes. Each float is
// clamped to [-1.0, 1.0] and scaled asymmetrically (32767 for positive
// values, 32768 for negative) to mirror the decoder's normalization.
func (b *SampleBuffer) Interleaved() []int16 {
	out := make([]int16, b.FrameCount*b.ChannelCount)
	for i := 0; i < b.FrameCount; i++ {
		for c := 0; c < b.ChannelCount; c++ {
			out[i*b.ChannelCount+c] = quantize(b.Channels[c][i])
		}
	}
	return out
}

// quantize converts one normalized sample to int16, truncating toward zero.
func quantize(s float64) int16 {
	if s > 1.0 {
		s = 1.0
	}
	if s < -1.0 {
		s = -1.0
	}
	if s >= 0 {
		return int16(s * 32767)
	}
	return int16(s * 32768)
}
