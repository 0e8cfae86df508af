// Package config provides configuration loading and validation for the
// newscast audio service. It handles YAML-based configuration with struct
// validation and supports overriding the generative API key through the
// GEMINI_API_KEY environment variable.
package config
