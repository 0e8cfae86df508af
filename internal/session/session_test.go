package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/skypro1111/newscast-audio-service/internal/gemini"
	"github.com/skypro1111/newscast-audio-service/internal/metrics"
	"github.com/skypro1111/newscast-audio-service/internal/playback"
)

// One registry per test binary; promauto panics on re-registration.
var testMetrics = metrics.NewMetrics()

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeService is a configurable stand-in for the generative backend.
type fakeService struct {
	mu sync.Mutex

	fetchNews        func(ctx context.Context) ([]gemini.NewsItem, error)
	generateScript   func(ctx context.Context, items []gemini.NewsItem) ([]gemini.ScriptLine, error)
	synthesizeSpeech func(ctx context.Context, lines []gemini.ScriptLine, voice1, voice2 string) ([]byte, error)
	synthesizeSample func(ctx context.Context, voiceID string) ([]byte, error)
}

func (f *fakeService) FetchNews(ctx context.Context) ([]gemini.NewsItem, error) {
	f.mu.Lock()
	fn := f.fetchNews
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return testItems(3), nil
}

func (f *fakeService) GenerateScript(ctx context.Context, items []gemini.NewsItem) ([]gemini.ScriptLine, error) {
	f.mu.Lock()
	fn := f.generateScript
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, items)
	}
	return testScript(5), nil
}

func (f *fakeService) SynthesizeSpeech(ctx context.Context, lines []gemini.ScriptLine, voice1, voice2 string) ([]byte, error) {
	f.mu.Lock()
	fn := f.synthesizeSpeech
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, lines, voice1, voice2)
	}
	return make([]byte, 8000), nil
}

func (f *fakeService) SynthesizeSample(ctx context.Context, voiceID string) ([]byte, error) {
	f.mu.Lock()
	fn := f.synthesizeSample
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, voiceID)
	}
	return make([]byte, 2400), nil
}

func testItems(n int) []gemini.NewsItem {
	items := make([]gemini.NewsItem, n)
	for i := range items {
		items[i] = gemini.NewsItem{
			ID:       fmt.Sprintf("item-%d", i),
			Headline: fmt.Sprintf("Headline %d", i),
			Summary:  fmt.Sprintf("Summary %d", i),
		}
	}
	return items
}

func testScript(n int) []gemini.ScriptLine {
	lines := make([]gemini.ScriptLine, n)
	for i := range lines {
		speaker := gemini.SpeakerHost1
		if i%2 == 1 {
			speaker = gemini.SpeakerHost2
		}
		lines[i] = gemini.ScriptLine{
			ID:      fmt.Sprintf("line-%d", i),
			Speaker: speaker,
			Text:    fmt.Sprintf("Line %d", i),
		}
	}
	return lines
}

func newTestSession(t *testing.T, svc Service) (*Session, *playback.Output) {
	t.Helper()
	out := playback.NewOutput(playback.Config{Enabled: false}, testLogger())
	t.Cleanup(func() { out.Close() })
	if svc == nil {
		svc = &fakeService{}
	}
	return newSession("test-session", svc, out, testLogger(), testMetrics, "Kore", "Puck"), out
}

// advance walks a fresh session to the given stage with the fake backend.
func advance(t *testing.T, s *Session, target Stage) {
	t.Helper()
	ctx := context.Background()

	if target >= StageContentSelection {
		if err := s.FetchNews(ctx); err != nil {
			t.Fatalf("FetchNews failed: %v", err)
		}
	}
	if target >= StageScriptEditing {
		if err := s.SelectAll(); err != nil {
			t.Fatalf("SelectAll failed: %v", err)
		}
		if err := s.GenerateScript(ctx); err != nil {
			t.Fatalf("GenerateScript failed: %v", err)
		}
	}
	if target >= StageAudioReady {
		if err := s.Synthesize(ctx); err != nil {
			t.Fatalf("Synthesize failed: %v", err)
		}
	}
}

func TestFullWorkflow(t *testing.T) {
	s, _ := newTestSession(t, nil)
	ctx := context.Background()

	if s.Stage() != StageStart {
		t.Fatalf("New session should be at start, got %s", s.Stage())
	}

	if err := s.FetchNews(ctx); err != nil {
		t.Fatalf("FetchNews failed: %v", err)
	}
	if s.Stage() != StageContentSelection {
		t.Fatalf("Expected content selection stage, got %s", s.Stage())
	}

	if err := s.ToggleItem("item-0"); err != nil {
		t.Fatalf("ToggleItem failed: %v", err)
	}
	if err := s.ToggleItem("item-2"); err != nil {
		t.Fatalf("ToggleItem failed: %v", err)
	}

	if err := s.GenerateScript(ctx); err != nil {
		t.Fatalf("GenerateScript failed: %v", err)
	}
	if s.Stage() != StageScriptEditing {
		t.Fatalf("Expected script editing stage, got %s", s.Stage())
	}

	info := s.GetInfo()
	if len(info.Script) != 5 {
		t.Errorf("Expected 5 script lines, got %d", len(info.Script))
	}
	if len(info.SelectedIDs) != 2 {
		t.Errorf("Expected 2 selected items, got %d", len(info.SelectedIDs))
	}

	if err := s.Synthesize(ctx); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if s.Stage() != StageAudioReady {
		t.Fatalf("Expected audio ready stage, got %s", s.Stage())
	}

	wav, err := s.ArtifactWAV()
	if err != nil {
		t.Fatalf("ArtifactWAV failed: %v", err)
	}
	// 8000 raw PCM bytes plus the 44-byte header.
	if len(wav) != 8044 {
		t.Errorf("Expected 8044 WAV bytes, got %d", len(wav))
	}

	info = s.GetInfo()
	if info.Audio == nil {
		t.Fatal("Expected audio info in audio ready stage")
	}
	if info.Audio.Clock != "00:00" {
		t.Errorf("Expected 00:00 clock for a sub-second artifact, got %s", info.Audio.Clock)
	}
	if !s.HasLiveArtifact() {
		t.Error("Artifact should be live in audio ready stage")
	}
}

func TestFetchNewsReplacesItemsAndClearsSelection(t *testing.T) {
	s, _ := newTestSession(t, nil)
	ctx := context.Background()
	advance(t, s, StageContentSelection)

	if err := s.ToggleItem("item-1"); err != nil {
		t.Fatalf("ToggleItem failed: %v", err)
	}

	if err := s.FetchNews(ctx); err != nil {
		t.Fatalf("Second FetchNews failed: %v", err)
	}

	info := s.GetInfo()
	if len(info.SelectedIDs) != 0 {
		t.Errorf("Refetch should clear the selection, got %v", info.SelectedIDs)
	}
	if len(info.NewsItems) != 3 {
		t.Errorf("Expected 3 items after refetch, got %d", len(info.NewsItems))
	}
}

func TestToggleUnknownItem(t *testing.T) {
	s, _ := newTestSession(t, nil)
	advance(t, s, StageContentSelection)

	if err := s.ToggleItem("no-such-item"); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("Expected ErrUnknownItem, got %v", err)
	}
}

func TestSelectAllTogglesOff(t *testing.T) {
	s, _ := newTestSession(t, nil)
	advance(t, s, StageContentSelection)

	if err := s.SelectAll(); err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if got := len(s.GetInfo().SelectedIDs); got != 3 {
		t.Fatalf("Expected 3 selected, got %d", got)
	}

	if err := s.SelectAll(); err != nil {
		t.Fatalf("Second SelectAll failed: %v", err)
	}
	if got := len(s.GetInfo().SelectedIDs); got != 0 {
		t.Errorf("SelectAll with everything selected should clear, got %d", got)
	}
}

func TestGenerateScriptEmptySelection(t *testing.T) {
	s, _ := newTestSession(t, nil)
	advance(t, s, StageContentSelection)

	if err := s.GenerateScript(context.Background()); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("Expected ErrEmptySelection, got %v", err)
	}
}

func TestUpdateLine(t *testing.T) {
	s, _ := newTestSession(t, nil)
	advance(t, s, StageScriptEditing)

	if err := s.UpdateLine("line-2", "Rewritten text"); err != nil {
		t.Fatalf("UpdateLine failed: %v", err)
	}

	info := s.GetInfo()
	if info.Script[2].Text != "Rewritten text" {
		t.Errorf("Line text not updated: %q", info.Script[2].Text)
	}
	if info.Script[2].Speaker != gemini.SpeakerHost1 {
		t.Errorf("Speaker should be unchanged, got %q", info.Script[2].Speaker)
	}

	if err := s.UpdateLine("no-such-line", "x"); !errors.Is(err, ErrUnknownLine) {
		t.Errorf("Expected ErrUnknownLine, got %v", err)
	}
}

func TestSetVoices(t *testing.T) {
	s, _ := newTestSession(t, nil)

	if err := s.SetVoices("Zephyr", "Fenrir"); err != nil {
		t.Fatalf("SetVoices failed: %v", err)
	}
	info := s.GetInfo()
	if info.Voice1 != "Zephyr" || info.Voice2 != "Fenrir" {
		t.Errorf("Voices not applied: %s/%s", info.Voice1, info.Voice2)
	}

	if err := s.SetVoices("NotAVoice", "Kore"); !errors.Is(err, ErrUnknownVoice) {
		t.Errorf("Expected ErrUnknownVoice, got %v", err)
	}
}

func TestBackReleasesArtifact(t *testing.T) {
	s, _ := newTestSession(t, nil)
	advance(t, s, StageAudioReady)

	s.mu.Lock()
	artifact := s.artifact
	s.mu.Unlock()

	if err := s.Back(); err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	if s.Stage() != StageScriptEditing {
		t.Errorf("Expected script editing after back, got %s", s.Stage())
	}
	if !artifact.Released() {
		t.Error("Back should release the artifact")
	}
	if _, err := s.ArtifactWAV(); !errors.Is(err, ErrNoArtifact) {
		t.Errorf("Expected ErrNoArtifact after back, got %v", err)
	}
}

func TestResetClearsEverything(t *testing.T) {
	fake := &fakeService{
		fetchNews: func(ctx context.Context) ([]gemini.NewsItem, error) {
			return nil, errors.New("upstream down")
		},
	}
	s, _ := newTestSession(t, fake)

	if err := s.FetchNews(context.Background()); err == nil {
		t.Fatal("Expected fetch failure")
	}
	if s.GetInfo().Error == "" {
		t.Fatal("Fetch failure should set the error overlay")
	}

	fake.mu.Lock()
	fake.fetchNews = nil
	fake.mu.Unlock()
	advance(t, s, StageAudioReady)

	if s.GetInfo().Error == "" {
		t.Fatal("Overlay should survive later successes; only reset clears it")
	}

	s.mu.Lock()
	artifact := s.artifact
	s.mu.Unlock()

	s.Reset()

	info := s.GetInfo()
	if info.Stage != "start" {
		t.Errorf("Expected start stage after reset, got %s", info.Stage)
	}
	if info.Error != "" {
		t.Errorf("Reset should clear the overlay, got %q", info.Error)
	}
	if len(info.NewsItems) != 0 || len(info.Script) != 0 || len(info.SelectedIDs) != 0 {
		t.Error("Reset should drop all content")
	}
	if !artifact.Released() {
		t.Error("Reset should release the artifact")
	}
}

func TestStaleResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeService{
		fetchNews: func(ctx context.Context) ([]gemini.NewsItem, error) {
			<-release
			return testItems(3), nil
		},
	}
	s, _ := newTestSession(t, fake)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.FetchNews(context.Background())
	}()

	// Wait for the fetch to claim the busy slot before resetting.
	waitFor(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.busy
	})

	s.Reset()
	close(release)

	if err := <-errCh; !errors.Is(err, ErrStaleResult) {
		t.Errorf("Expected ErrStaleResult, got %v", err)
	}
	if s.Stage() != StageStart {
		t.Errorf("Stale result must not change the stage, got %s", s.Stage())
	}
	if len(s.GetInfo().NewsItems) != 0 {
		t.Error("Stale result must not install items")
	}
}

func TestStaleSynthesisReleasesArtifact(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeService{
		synthesizeSpeech: func(ctx context.Context, lines []gemini.ScriptLine, v1, v2 string) ([]byte, error) {
			<-release
			return make([]byte, 8000), nil
		},
	}
	s, _ := newTestSession(t, fake)
	advance(t, s, StageScriptEditing)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Synthesize(context.Background())
	}()

	waitFor(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.busy
	})

	s.Reset()
	close(release)

	if err := <-errCh; !errors.Is(err, ErrStaleResult) {
		t.Errorf("Expected ErrStaleResult, got %v", err)
	}
	if s.HasLiveArtifact() {
		t.Error("Stale synthesis must not leave a live artifact")
	}
}

func TestBusyRejection(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeService{
		generateScript: func(ctx context.Context, items []gemini.NewsItem) ([]gemini.ScriptLine, error) {
			<-release
			return testScript(5), nil
		},
	}
	s, _ := newTestSession(t, fake)
	advance(t, s, StageContentSelection)
	if err := s.SelectAll(); err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.GenerateScript(context.Background())
	}()

	waitFor(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.busy
	})

	if err := s.GenerateScript(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	if err := s.FetchNews(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy for concurrent fetch, got %v", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("Original operation failed: %v", err)
	}
}

func TestStageGuards(t *testing.T) {
	s, _ := newTestSession(t, nil)

	if err := s.ToggleItem("item-0"); !errors.Is(err, ErrInvalidStage) {
		t.Errorf("ToggleItem at start: expected ErrInvalidStage, got %v", err)
	}
	if err := s.GenerateScript(context.Background()); !errors.Is(err, ErrInvalidStage) {
		t.Errorf("GenerateScript at start: expected ErrInvalidStage, got %v", err)
	}
	if err := s.Synthesize(context.Background()); !errors.Is(err, ErrInvalidStage) {
		t.Errorf("Synthesize at start: expected ErrInvalidStage, got %v", err)
	}
	if err := s.Back(); !errors.Is(err, ErrInvalidStage) {
		t.Errorf("Back at start: expected ErrInvalidStage, got %v", err)
	}
	if err := s.PlayArtifact(context.Background()); !errors.Is(err, ErrNoArtifact) {
		t.Errorf("PlayArtifact at start: expected ErrNoArtifact, got %v", err)
	}
}

func TestSynthesizeReplacesArtifact(t *testing.T) {
	s, _ := newTestSession(t, nil)
	advance(t, s, StageAudioReady)

	s.mu.Lock()
	first := s.artifact
	s.mu.Unlock()

	if err := s.Back(); err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	if err := s.Synthesize(context.Background()); err != nil {
		t.Fatalf("Second Synthesize failed: %v", err)
	}

	if !first.Released() {
		t.Error("Superseded artifact should be released")
	}
	if !s.HasLiveArtifact() {
		t.Error("New artifact should be live")
	}
}

func TestPlayArtifact(t *testing.T) {
	s, _ := newTestSession(t, nil)
	advance(t, s, StageAudioReady)

	if err := s.PlayArtifact(context.Background()); err != nil {
		t.Fatalf("PlayArtifact failed: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition never became true")
}
