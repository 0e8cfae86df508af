// Package playback owns the shared audio output subsystem. Both the
// broadcast artifact player and the voice preview controller play through
// one process-wide Output; every playback run yields a Handle whose
// release is guaranteed to be safe on all exit paths.
package playback
