// Package gemini is the service-boundary adapter for the generative API.
// It fetches news stories, generates two-host dialogue scripts, and
// synthesizes speech, validating every response strictly against the
// expected shape before anything enters the core pipeline.
package gemini
