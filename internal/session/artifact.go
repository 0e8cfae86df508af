package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/skypro1111/newscast-audio-service/internal/audio"
	"github.com/skypro1111/newscast-audio-service/internal/playback"
)

// Artifact is the materialized broadcast audio for one synthesis run: the
// encoded WAV container plus its playback state. An artifact exists only
// while its session is in the AudioReady stage, and its playback handle is
// released exactly once when the artifact is discarded or superseded.
type Artifact struct {
	wav      []byte
	buffer   *audio.SampleBuffer
	duration float64

	releaseOnce sync.Once

	mu       sync.Mutex
	released bool
	handle   *playback.Handle
}

func newArtifact(wav []byte, buffer *audio.SampleBuffer) *Artifact {
	return &Artifact{
		wav:      wav,
		buffer:   buffer,
		duration: buffer.Duration(),
	}
}

// WAV returns the encoded container bytes.
func (a *Artifact) WAV() []byte {
	return a.wav
}

// Duration returns the artifact length in seconds.
func (a *Artifact) Duration() float64 {
	return a.duration
}

// Clock returns the artifact duration as an MM:SS string.
func (a *Artifact) Clock() string {
	return audio.FormatClock(a.duration)
}

// Play starts playback through the shared output, stopping any previous
// run of this artifact first.
func (a *Artifact) Play(ctx context.Context, out *playback.Output) (*playback.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return nil, fmt.Errorf("%w: artifact was released", ErrNoArtifact)
	}

	if a.handle != nil {
		a.handle.Release()
		a.handle = nil
	}

	h, err := out.Play(ctx, a.buffer)
	if err != nil {
		return nil, err
	}

	a.handle = h
	return h, nil
}

// Release revokes the artifact's playback handle. Exactly-once: repeated
// calls are no-ops.
func (a *Artifact) Release() {
	a.releaseOnce.Do(func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.released = true
		if a.handle != nil {
			a.handle.Release()
			a.handle = nil
		}
	})
}

// Released reports whether the artifact has been discarded.
func (a *Artifact) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}
