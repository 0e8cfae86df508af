package gemini

// VoiceProfile is a static catalog entry for a prebuilt TTS voice.
type VoiceProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Prebuilt voices offered by the TTS model. The catalog is read-only.
var voiceCatalog = []VoiceProfile{
	{ID: "Kore", DisplayName: "Female - Soft, Melodic"},
	{ID: "Puck", DisplayName: "Male - Young, Energetic"},
	{ID: "Charon", DisplayName: "Male - Low, Authoritative"},
	{ID: "Zephyr", DisplayName: "Female - Warm, Friendly"},
	{ID: "Fenrir", DisplayName: "Male - Deep, Serious"},
}

// Voices returns the available voice profiles.
func Voices() []VoiceProfile {
	out := make([]VoiceProfile, len(voiceCatalog))
	copy(out, voiceCatalog)
	return out
}

// IsKnownVoice reports whether the given ID is in the voice catalog.
func IsKnownVoice(id string) bool {
	for _, v := range voiceCatalog {
		if v.ID == id {
			return true
		}
	}
	return false
}
