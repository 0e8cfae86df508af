package gemini

// Speaker identifies who delivers a script line.
type Speaker string

const (
	SpeakerHost1       Speaker = "Host 1"
	SpeakerHost2       Speaker = "Host 2"
	SpeakerSoundEffect Speaker = "Sound Effect"
)

// Valid reports whether the speaker is one of the three broadcast roles.
func (s Speaker) Valid() bool {
	switch s {
	case SpeakerHost1, SpeakerHost2, SpeakerSoundEffect:
		return true
	}
	return false
}

// NewsItem is a single fetched news story. Items are immutable once
// fetched; the whole set is replaced on every fetch.
type NewsItem struct {
	ID       string `json:"id"`
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
}

// ScriptLine is one line of the generated broadcast script. The text may
// be edited after generation; the speaker is fixed.
type ScriptLine struct {
	ID      string  `json:"id"`
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}
