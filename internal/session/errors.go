package session

import "errors"

var (
	// ErrEmptySelection rejects script generation with no items selected.
	ErrEmptySelection = errors.New("no news items selected")

	// ErrEmptyScript rejects synthesis with an empty script.
	ErrEmptyScript = errors.New("script is empty")

	// ErrBusy rejects a pipeline operation while another is in flight.
	ErrBusy = errors.New("another operation is in flight")

	// ErrPreviewBusy rejects a voice preview while one is already playing.
	ErrPreviewBusy = errors.New("a voice preview is already playing")

	// ErrInvalidStage rejects an operation not valid in the current stage.
	ErrInvalidStage = errors.New("operation not valid in current stage")

	// ErrStaleResult marks a pipeline result that arrived after the
	// session had already moved to a different stage.
	ErrStaleResult = errors.New("stale pipeline result discarded")

	// ErrNoArtifact is returned when no broadcast audio is available.
	ErrNoArtifact = errors.New("no audio artifact available")

	// ErrUnknownItem is returned for selection changes on unknown item IDs.
	ErrUnknownItem = errors.New("unknown news item")

	// ErrUnknownLine is returned for edits to unknown script line IDs.
	ErrUnknownLine = errors.New("unknown script line")

	// ErrUnknownVoice is returned for voice IDs outside the catalog.
	ErrUnknownVoice = errors.New("unknown voice")

	// ErrTooManySessions rejects session creation above the configured bound.
	ErrTooManySessions = errors.New("too many active sessions")
)
