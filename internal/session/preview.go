package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skypro1111/newscast-audio-service/internal/audio"
	"github.com/skypro1111/newscast-audio-service/internal/gemini"
)

// PreviewVoice synthesizes a short sample phrase with the given voice and
// plays it through the shared output, blocking until playback finishes or
// ctx is cancelled. The preview slot holds at most one preview at a time;
// it is freed on every exit path, including synthesis failure, playback
// failure and cancellation.
func (s *Session) PreviewVoice(ctx context.Context, voiceID string) error {
	if !gemini.IsKnownVoice(voiceID) {
		return fmt.Errorf("%w: %s", ErrUnknownVoice, voiceID)
	}

	s.mu.Lock()
	if s.previewBusy {
		s.mu.Unlock()
		return ErrPreviewBusy
	}
	s.previewBusy = true
	s.touch()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.previewBusy = false
		s.mu.Unlock()
	}()

	raw, err := s.svc.SynthesizeSample(ctx, voiceID)
	if err != nil {
		s.metrics.RecordPreview(false)
		s.logger.Error("Voice sample synthesis failed",
			slog.String("voice", voiceID),
			slog.String("error", err.Error()),
		)
		return err
	}

	buf, err := audio.Decode(raw, gemini.SynthSampleRate, gemini.SynthChannelCount)
	if err != nil {
		s.metrics.RecordPreview(false)
		return fmt.Errorf("decode voice sample: %w", err)
	}

	h, err := s.output.Play(ctx, buf)
	if err != nil {
		s.metrics.RecordPreview(false)
		s.logger.Error("Voice preview playback failed",
			slog.String("voice", voiceID),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.metrics.RecordPreview(true)
	s.logger.Info("Voice preview started", slog.String("voice", voiceID))

	return h.Wait(ctx)
}

// PreviewActive reports whether a voice preview is currently in flight.
func (s *Session) PreviewActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previewBusy
}
