package playback

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/skypro1111/newscast-audio-service/internal/audio"
)

var (
	// ErrPlaybackFailure indicates playback could not be started.
	ErrPlaybackFailure = errors.New("playback failed to start")

	// ErrOutputClosed is returned for play requests after teardown.
	ErrOutputClosed = errors.New("playback output is closed")
)

// Config contains playback output configuration
type Config struct {
	Enabled       bool
	PlayerCommand string // external player binary, default "ffplay"
}

// Output is the process-wide playback subsystem shared by artifact
// playback and voice previews. The player binary is resolved on first use;
// Close tears down any in-flight playback and rejects further requests.
type Output struct {
	config Config
	logger *slog.Logger

	initOnce   sync.Once
	initErr    error
	playerPath string

	mu     sync.Mutex
	closed bool
	active map[*Handle]struct{}
}

// Handle tracks one playback run. Release is safe to call any number of
// times and from any exit path; Done is closed on natural end, stop, or
// startup failure.
type Handle struct {
	done chan struct{}
	stop func()

	stopOnce   sync.Once
	finishOnce sync.Once

	mu  sync.Mutex
	err error
}

// NewOutput creates the playback output subsystem
func NewOutput(config Config, logger *slog.Logger) *Output {
	if config.PlayerCommand == "" {
		config.PlayerCommand = "ffplay"
	}

	return &Output{
		config: config,
		logger: logger,
		active: make(map[*Handle]struct{}),
	}
}

// Play starts asynchronous playback of the buffer and returns its handle.
// With playback disabled the handle completes after the buffer's wall-clock
// duration, so artifact and preview lifecycles behave identically on
// headless hosts.
func (o *Output) Play(ctx context.Context, buf *audio.SampleBuffer) (*Handle, error) {
	if buf == nil || buf.FrameCount == 0 {
		return nil, fmt.Errorf("%w: empty sample buffer", ErrPlaybackFailure)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrOutputClosed
	}

	if !o.config.Enabled {
		h := newTimedHandle(buf.Duration())
		o.track(h)
		return h, nil
	}

	o.initOnce.Do(func() {
		path, err := exec.LookPath(o.config.PlayerCommand)
		if err != nil {
			o.initErr = fmt.Errorf("player %q not found: %w", o.config.PlayerCommand, err)
			return
		}
		o.playerPath = path
		o.logger.Info("Playback output initialized", slog.String("player", path))
	})
	if o.initErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaybackFailure, o.initErr)
	}

	cmd := exec.Command(o.playerPath,
		"-f", "s16le",
		"-ar", strconv.Itoa(buf.SampleRate),
		"-ac", strconv.Itoa(buf.ChannelCount),
		"-nodisp",
		"-autoexit",
		"-loglevel", "quiet",
		"-i", "-",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaybackFailure, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaybackFailure, err)
	}

	h := &Handle{
		done: make(chan struct{}),
		stop: func() {
			_ = cmd.Process.Kill()
		},
	}

	raw := pcmBytes(buf)
	go func() {
		if _, err := stdin.Write(raw); err != nil {
			h.setErr(fmt.Errorf("writing samples to player: %w", err))
		}
		_ = stdin.Close()
	}()

	go func() {
		if err := cmd.Wait(); err != nil {
			h.setErr(fmt.Errorf("player exited: %w", err))
		}
		h.finish()
	}()

	o.track(h)
	return h, nil
}

// Close stops all in-flight playback and shuts the subsystem down.
// Subsequent Play calls fail with ErrOutputClosed.
func (o *Output) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	handles := make([]*Handle, 0, len(o.active))
	for h := range o.active {
		handles = append(handles, h)
	}
	o.active = make(map[*Handle]struct{})
	o.mu.Unlock()

	for _, h := range handles {
		h.Release()
	}

	if o.logger != nil {
		o.logger.Info("Playback output closed")
	}
}

// ActiveCount returns the number of in-flight playback handles.
func (o *Output) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// track registers a handle and removes it again once playback resolves.
// Callers hold o.mu.
func (o *Output) track(h *Handle) {
	o.active[h] = struct{}{}
	go func() {
		<-h.done
		o.untrack(h)
	}()
}

func (o *Output) untrack(h *Handle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, h)
}

// newTimedHandle completes after the given wall-clock duration without
// touching any audio device.
func newTimedHandle(seconds float64) *Handle {
	h := &Handle{done: make(chan struct{})}
	timer := time.AfterFunc(time.Duration(seconds*float64(time.Second)), h.finish)
	h.stop = func() { timer.Stop() }
	return h
}

// Done resolves when playback finishes, fails, or is stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err reports the playback error, if any. Valid after Done resolves.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Release stops playback if still running. Idempotent.
func (h *Handle) Release() {
	h.stopOnce.Do(func() {
		if h.stop != nil {
			h.stop()
		}
	})
	h.finish()
}

// Wait blocks until playback completes or the context is cancelled;
// cancellation releases the handle.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		h.Release()
		return ctx.Err()
	}
}

func (h *Handle) setErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err == nil {
		h.err = err
	}
}

func (h *Handle) finish() {
	h.finishOnce.Do(func() {
		close(h.done)
	})
}

// pcmBytes converts the buffer to interleaved little-endian s16le bytes.
func pcmBytes(buf *audio.SampleBuffer) []byte {
	samples := buf.Interleaved()
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}
	return raw
}
