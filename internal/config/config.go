package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Audio    AudioConfig    `yaml:"audio"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Playback PlaybackConfig `yaml:"playback"`
	Session  SessionConfig  `yaml:"session"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// AudioConfig contains audio format parameters
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`
}

// GeminiConfig contains generative API configuration
type GeminiConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	NewsModel     string `yaml:"news_model"`
	ScriptModel   string `yaml:"script_model"`
	TTSModel      string `yaml:"tts_model"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	StationName   string `yaml:"station_name"`
	StationSlogan string `yaml:"station_slogan"`
	MaxNewsItems  int    `yaml:"max_news_items"`
}

// PlaybackConfig contains local audio playback configuration
type PlaybackConfig struct {
	Enabled       bool   `yaml:"enabled"`
	PlayerCommand string `yaml:"player_command"`
}

// SessionConfig contains session pool configuration
type SessionConfig struct {
	Timeout         int    `yaml:"timeout"`          // seconds
	CleanupInterval int    `yaml:"cleanup_interval"` // seconds
	MaxSessions     int    `yaml:"max_sessions"`
	DefaultVoice1   string `yaml:"default_voice_host1"`
	DefaultVoice2   string `yaml:"default_voice_host2"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file. The GEMINI_API_KEY
// environment variable overrides the api_key from the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Gemini.Validate(); err != nil {
		return fmt.Errorf("gemini config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 24000 {
		return fmt.Errorf("sample_rate must be 24000 Hz for speech synthesis output, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono) for speech synthesis output, got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	return nil
}

// Validate validates generative API configuration
func (g *GeminiConfig) Validate() error {
	if g.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set it or export GEMINI_API_KEY)")
	}

	if g.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", g.Timeout)
	}

	if g.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", g.MaxRetries)
	}

	if g.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", g.MaxConcurrent)
	}

	if g.MaxNewsItems < 1 {
		return fmt.Errorf("max_news_items must be at least 1, got %d", g.MaxNewsItems)
	}

	return nil
}

// Validate validates playback configuration
func (p *PlaybackConfig) Validate() error {
	if p.Enabled && p.PlayerCommand == "" {
		return fmt.Errorf("player_command cannot be empty when playback is enabled")
	}

	return nil
}

// Validate validates session pool configuration
func (s *SessionConfig) Validate() error {
	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	if s.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval must be at least 1 second, got %d", s.CleanupInterval)
	}

	if s.MaxSessions < 0 {
		return fmt.Errorf("max_sessions cannot be negative, got %d", s.MaxSessions)
	}

	if s.DefaultVoice1 == "" || s.DefaultVoice2 == "" {
		return fmt.Errorf("default host voices cannot be empty")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetTimeoutDuration returns the generative API timeout as a time.Duration
func (g *GeminiConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(g.Timeout) * time.Second
}

// GetTimeoutDuration returns the session idle timeout as a time.Duration
func (s *SessionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetCleanupIntervalDuration returns the cleanup sweep interval as a time.Duration
func (s *SessionConfig) GetCleanupIntervalDuration() time.Duration {
	return time.Duration(s.CleanupInterval) * time.Second
}
