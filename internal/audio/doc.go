// Package audio handles PCM sample decoding and WAV container encoding.
// It converts raw little-endian 16-bit speech payloads into normalized
// multichannel sample buffers and serializes them into canonical RIFF/WAVE
// byte streams for playback and export.
package audio
