package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/newscast-audio-service/internal/audio"
	"github.com/skypro1111/newscast-audio-service/internal/gemini"
	"github.com/skypro1111/newscast-audio-service/internal/metrics"
	"github.com/skypro1111/newscast-audio-service/internal/playback"
)

// Stage is the current position in the broadcast workflow.
type Stage int

const (
	StageStart Stage = iota
	StageContentSelection
	StageScriptEditing
	StageAudioReady
)

// String returns the stage name used in API responses and logs.
func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StageContentSelection:
		return "content_selection"
	case StageScriptEditing:
		return "script_editing"
	case StageAudioReady:
		return "audio_ready"
	default:
		return "unknown"
	}
}

// Service is the upstream generative boundary consumed by sessions.
// *gemini.Client satisfies it.
type Service interface {
	FetchNews(ctx context.Context) ([]gemini.NewsItem, error)
	GenerateScript(ctx context.Context, items []gemini.NewsItem) ([]gemini.ScriptLine, error)
	SynthesizeSpeech(ctx context.Context, lines []gemini.ScriptLine, voice1, voice2 string) ([]byte, error)
	SynthesizeSample(ctx context.Context, voiceID string) ([]byte, error)
}

// Session owns one broadcast workflow: the fetched news items, the script
// being edited, the synthesized audio artifact and the stage that decides
// which of them are valid. All state is guarded by a single mutex; slow
// upstream calls run outside it and their results are accepted only if the
// stage token has not moved in the meantime.
type Session struct {
	ID        string
	CreatedAt time.Time

	svc     Service
	output  *playback.Output
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu           sync.Mutex
	stage        Stage
	token        uint64
	items        []gemini.NewsItem
	selected     map[string]struct{}
	script       []gemini.ScriptLine
	voice1       string
	voice2       string
	artifact     *Artifact
	overlayMsg   string
	busy         bool
	previewBusy  bool
	lastActivity time.Time
}

// AudioInfo describes the current artifact for API responses.
type AudioInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Clock           string  `json:"clock"`
	SizeBytes       int     `json:"size_bytes"`
}

// Info is a point-in-time snapshot of a session.
type Info struct {
	ID            string              `json:"id"`
	Stage         string              `json:"stage"`
	CreatedAt     time.Time           `json:"created_at"`
	LastActivity  time.Time           `json:"last_activity"`
	Error         string              `json:"error,omitempty"`
	NewsItems     []gemini.NewsItem   `json:"news_items,omitempty"`
	SelectedIDs   []string            `json:"selected_ids,omitempty"`
	Script        []gemini.ScriptLine `json:"script,omitempty"`
	Voice1        string              `json:"voice_host1"`
	Voice2        string              `json:"voice_host2"`
	Audio         *AudioInfo          `json:"audio,omitempty"`
	Busy          bool                `json:"busy"`
	PreviewActive bool                `json:"preview_active"`
}

func newSession(id string, svc Service, output *playback.Output, logger *slog.Logger,
	m *metrics.Metrics, voice1, voice2 string) *Session {

	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		svc:          svc,
		output:       output,
		logger:       logger.With(slog.String("session_id", id)),
		metrics:      m,
		stage:        StageStart,
		selected:     make(map[string]struct{}),
		voice1:       voice1,
		voice2:       voice2,
		lastActivity: now,
	}
}

// FetchNews retrieves a fresh set of news items and moves the session to
// the content selection stage. The previous item set is replaced wholesale
// and the selection is cleared, keeping it a subset of the live items.
func (s *Session) FetchNews(ctx context.Context) error {
	token, err := s.beginOp(StageStart, StageContentSelection)
	if err != nil {
		return err
	}

	items, err := s.svc.FetchNews(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != token {
		s.metrics.RecordStaleResultDiscarded()
		s.logger.Info("Discarded stale news fetch result")
		return ErrStaleResult
	}
	s.busy = false
	s.touch()

	if err != nil {
		s.metrics.RecordNewsFetch(false)
		s.overlayMsg = "Could not fetch the news. Please try again."
		s.logger.Error("News fetch failed", slog.String("error", err.Error()))
		return err
	}

	s.items = items
	s.selected = make(map[string]struct{})
	s.metrics.RecordNewsFetch(true)
	s.transition(StageContentSelection)
	s.logger.Info("News fetched", slog.Int("items", len(items)))
	return nil
}

// ToggleItem flips the selection state of one news item.
func (s *Session) ToggleItem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageContentSelection {
		return fmt.Errorf("%w: %s", ErrInvalidStage, s.stage)
	}

	if !s.hasItem(id) {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}

	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
	} else {
		s.selected[id] = struct{}{}
	}
	s.touch()
	return nil
}

// SelectAll selects every fetched item; if everything is already selected
// it clears the selection instead.
func (s *Session) SelectAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageContentSelection {
		return fmt.Errorf("%w: %s", ErrInvalidStage, s.stage)
	}

	if len(s.selected) == len(s.items) {
		s.selected = make(map[string]struct{})
	} else {
		for _, item := range s.items {
			s.selected[item.ID] = struct{}{}
		}
	}
	s.touch()
	return nil
}

// GenerateScript produces the dialogue script for the selected items and
// moves the session to the script editing stage. Requires a non-empty
// selection.
func (s *Session) GenerateScript(ctx context.Context) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.stage != StageContentSelection {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidStage, s.stage)
	}
	if len(s.selected) == 0 {
		s.mu.Unlock()
		return ErrEmptySelection
	}

	selected := make([]gemini.NewsItem, 0, len(s.selected))
	for _, item := range s.items {
		if _, ok := s.selected[item.ID]; ok {
			selected = append(selected, item)
		}
	}
	s.busy = true
	token := s.token
	s.mu.Unlock()

	lines, err := s.svc.GenerateScript(ctx, selected)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != token {
		s.metrics.RecordStaleResultDiscarded()
		s.logger.Info("Discarded stale script result")
		return ErrStaleResult
	}
	s.busy = false
	s.touch()

	if err != nil {
		s.metrics.RecordScriptGeneration(false)
		s.overlayMsg = "Could not generate the script. Please try again."
		s.logger.Error("Script generation failed", slog.String("error", err.Error()))
		return err
	}

	s.script = lines
	s.metrics.RecordScriptGeneration(true)
	s.transition(StageScriptEditing)
	s.logger.Info("Script generated",
		slog.Int("selected_items", len(selected)),
		slog.Int("lines", len(lines)),
	)
	return nil
}

// UpdateLine replaces the text of one script line. The speaker is fixed
// after generation.
func (s *Session) UpdateLine(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageScriptEditing {
		return fmt.Errorf("%w: %s", ErrInvalidStage, s.stage)
	}

	for i := range s.script {
		if s.script[i].ID == id {
			s.script[i].Text = text
			s.touch()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownLine, id)
}

// SetVoices assigns the host voices used for synthesis and previews.
func (s *Session) SetVoices(voice1, voice2 string) error {
	if !gemini.IsKnownVoice(voice1) {
		return fmt.Errorf("%w: %s", ErrUnknownVoice, voice1)
	}
	if !gemini.IsKnownVoice(voice2) {
		return fmt.Errorf("%w: %s", ErrUnknownVoice, voice2)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice1 = voice1
	s.voice2 = voice2
	s.touch()
	return nil
}

// Synthesize runs the full audio pipeline: speech synthesis, PCM decode,
// WAV encode, artifact installation. On success the session reaches the
// audio ready stage; any prior artifact is released before the new one is
// installed, so at most one artifact is ever alive.
func (s *Session) Synthesize(ctx context.Context) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.stage != StageScriptEditing {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidStage, s.stage)
	}
	if len(s.script) == 0 {
		s.mu.Unlock()
		return ErrEmptyScript
	}

	script := make([]gemini.ScriptLine, len(s.script))
	copy(script, s.script)
	voice1, voice2 := s.voice1, s.voice2
	s.busy = true
	token := s.token
	s.mu.Unlock()

	startTime := time.Now()

	// Decode strictly precedes encode precedes installation; no partial
	// artifact is ever observable.
	var artifact *Artifact
	raw, err := s.svc.SynthesizeSpeech(ctx, script, voice1, voice2)
	if err == nil {
		var buf *audio.SampleBuffer
		buf, err = audio.Decode(raw, gemini.SynthSampleRate, gemini.SynthChannelCount)
		if err == nil {
			var wav []byte
			wav, err = audio.EncodeWAV(buf)
			if err == nil {
				artifact = newArtifact(wav, buf)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != token {
		if artifact != nil {
			artifact.Release()
		}
		s.metrics.RecordStaleResultDiscarded()
		s.logger.Info("Discarded stale synthesis result")
		return ErrStaleResult
	}
	s.busy = false
	s.touch()

	if err != nil {
		s.metrics.RecordSynthesisFailure()
		s.overlayMsg = "Could not generate the audio. Please try again."
		s.logger.Error("Synthesis pipeline failed", slog.String("error", err.Error()))
		return err
	}

	if s.artifact != nil {
		s.artifact.Release()
	}
	s.artifact = artifact
	s.metrics.RecordSynthesis(time.Since(startTime).Seconds(), len(artifact.WAV()), artifact.Duration())
	s.transition(StageAudioReady)
	s.logger.Info("Broadcast synthesized",
		slog.Int("wav_bytes", len(artifact.WAV())),
		slog.String("duration", artifact.Clock()),
	)
	return nil
}

// Back returns from the audio ready stage to script editing, always
// releasing the artifact's playback handle first.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageAudioReady {
		return fmt.Errorf("%w: %s", ErrInvalidStage, s.stage)
	}

	if s.artifact != nil {
		s.artifact.Release()
		s.artifact = nil
	}
	s.transition(StageScriptEditing)
	s.touch()
	return nil
}

// Reset returns the session to the start stage from anywhere: the artifact
// is released, all content is dropped and the error overlay is cleared.
// Any in-flight pipeline result becomes stale.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.artifact != nil {
		s.artifact.Release()
		s.artifact = nil
	}
	s.items = nil
	s.selected = make(map[string]struct{})
	s.script = nil
	s.overlayMsg = ""
	s.busy = false
	s.transition(StageStart)
	s.touch()
	s.logger.Info("Session reset")
}

// PlayArtifact plays the broadcast audio through the shared output.
func (s *Session) PlayArtifact(ctx context.Context) error {
	s.mu.Lock()
	if s.stage != StageAudioReady || s.artifact == nil {
		s.mu.Unlock()
		return ErrNoArtifact
	}
	artifact := s.artifact
	s.touch()
	s.mu.Unlock()

	if _, err := artifact.Play(ctx, s.output); err != nil {
		s.mu.Lock()
		s.metrics.RecordPlaybackFailure()
		s.overlayMsg = "Could not play the audio."
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", playback.ErrPlaybackFailure, err)
	}
	return nil
}

// ArtifactWAV returns the encoded container for download.
func (s *Session) ArtifactWAV() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != StageAudioReady || s.artifact == nil {
		return nil, ErrNoArtifact
	}
	s.touch()
	return s.artifact.WAV(), nil
}

// GetInfo returns a snapshot of the session.
func (s *Session) GetInfo() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:            s.ID,
		Stage:         s.stage.String(),
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.lastActivity,
		Error:         s.overlayMsg,
		Voice1:        s.voice1,
		Voice2:        s.voice2,
		Busy:          s.busy,
		PreviewActive: s.previewBusy,
	}

	if len(s.items) > 0 {
		info.NewsItems = make([]gemini.NewsItem, len(s.items))
		copy(info.NewsItems, s.items)
	}

	if len(s.selected) > 0 {
		info.SelectedIDs = make([]string, 0, len(s.selected))
		for _, item := range s.items {
			if _, ok := s.selected[item.ID]; ok {
				info.SelectedIDs = append(info.SelectedIDs, item.ID)
			}
		}
	}

	if len(s.script) > 0 {
		info.Script = make([]gemini.ScriptLine, len(s.script))
		copy(info.Script, s.script)
	}

	if s.artifact != nil {
		info.Audio = &AudioInfo{
			DurationSeconds: s.artifact.Duration(),
			Clock:           s.artifact.Clock(),
			SizeBytes:       len(s.artifact.WAV()),
		}
	}

	return info
}

// Stage returns the current workflow stage.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// LastActivity returns the time of the last session operation.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// HasLiveArtifact reports whether an unreleased artifact is installed.
func (s *Session) HasLiveArtifact() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact != nil && !s.artifact.Released()
}

// teardown releases all session resources; used by the manager.
func (s *Session) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.artifact != nil {
		s.artifact.Release()
		s.artifact = nil
	}
	s.transition(StageStart)
}

// beginOp validates the stage and marks the session busy, returning the
// stage token the operation runs under. fromA/fromB are the stages the
// operation may start from.
func (s *Session) beginOp(fromA, fromB Stage) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return 0, ErrBusy
	}
	if s.stage != fromA && s.stage != fromB {
		return 0, fmt.Errorf("%w: %s", ErrInvalidStage, s.stage)
	}
	s.busy = true
	return s.token, nil
}

// transition changes the stage and advances the token, invalidating any
// pipeline result still in flight. Callers hold s.mu.
func (s *Session) transition(stage Stage) {
	s.stage = stage
	s.token++
}

// touch updates the activity timestamp. Callers hold s.mu.
func (s *Session) touch() {
	s.lastActivity = time.Now()
}

func (s *Session) hasItem(id string) bool {
	for _, item := range s.items {
		if item.ID == id {
			return true
		}
	}
	return false
}
