// Package session implements the broadcast workflow state machine.
//
// A session walks through four stages: start, content selection, script
// editing and audio ready. News fetching, script generation and speech
// synthesis run outside the session lock; each result is accepted only if
// the session's stage token has not moved since the operation began, so a
// reset or stage change reliably discards late results.
//
// A session holds at most one audio artifact, alive exactly while the
// session is in the audio ready stage. Voice previews occupy a single
// slot per session and always free it, whatever the outcome.
//
// The Manager owns the session pool, reclaims idle sessions and tears
// everything down on shutdown, including the shared playback output.
package session
