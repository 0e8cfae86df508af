package playback

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/skypro1111/newscast-audio-service/internal/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func shortBuffer(t *testing.T, seconds float64) *audio.SampleBuffer {
	t.Helper()
	frames := int(seconds * 24000)
	raw := make([]byte, frames*2)
	buf, err := audio.Decode(raw, 24000, 1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return buf
}

func TestDisabledOutputCompletesAfterDuration(t *testing.T) {
	out := NewOutput(Config{Enabled: false}, testLogger())
	defer out.Close()

	h, err := out.Play(context.Background(), shortBuffer(t, 0.05))
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Timed handle never completed")
	}

	if err := h.Err(); err != nil {
		t.Errorf("Unexpected playback error: %v", err)
	}
}

func TestHandleReleaseIdempotent(t *testing.T) {
	out := NewOutput(Config{Enabled: false}, testLogger())
	defer out.Close()

	h, err := out.Play(context.Background(), shortBuffer(t, 10))
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	h.Release()
	h.Release()
	h.Release()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Released handle should be done")
	}
}

func TestPlayEmptyBuffer(t *testing.T) {
	out := NewOutput(Config{Enabled: false}, testLogger())
	defer out.Close()

	_, err := out.Play(context.Background(), shortBuffer(t, 0))
	if !errors.Is(err, ErrPlaybackFailure) {
		t.Errorf("Expected ErrPlaybackFailure for empty buffer, got %v", err)
	}
}

func TestClosedOutputRejectsPlay(t *testing.T) {
	out := NewOutput(Config{Enabled: false}, testLogger())
	out.Close()

	_, err := out.Play(context.Background(), shortBuffer(t, 0.05))
	if !errors.Is(err, ErrOutputClosed) {
		t.Errorf("Expected ErrOutputClosed, got %v", err)
	}
}

func TestCloseReleasesActiveHandles(t *testing.T) {
	out := NewOutput(Config{Enabled: false}, testLogger())

	h, err := out.Play(context.Background(), shortBuffer(t, 10))
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	out.Close()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Close should resolve active handles")
	}
}

func TestWaitCancellationReleases(t *testing.T) {
	out := NewOutput(Config{Enabled: false}, testLogger())
	defer out.Close()

	h, err := out.Play(context.Background(), shortBuffer(t, 10))
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context error, got %v", err)
	}

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Cancelled wait should release the handle")
	}
}
