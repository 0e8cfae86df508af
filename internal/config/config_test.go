package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
		},
		Audio: AudioConfig{
			SampleRate: 24000,
			Channels:   1,
			BitDepth:   16,
		},
		Gemini: GeminiConfig{
			APIKey:        "test-key",
			Timeout:       120,
			MaxRetries:    2,
			MaxConcurrent: 4,
			MaxNewsItems:  20,
		},
		Playback: PlaybackConfig{
			Enabled:       true,
			PlayerCommand: "ffplay",
		},
		Session: SessionConfig{
			Timeout:         1800,
			CleanupInterval: 60,
			MaxSessions:     100,
			DefaultVoice1:   "Kore",
			DefaultVoice2:   "Puck",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name:        "empty http address",
			mutate:      func(c *Config) { c.HTTP.Address = "" },
			expectError: true,
			errorMsg:    "address cannot be empty",
		},
		{
			name:        "invalid audio sample rate",
			mutate:      func(c *Config) { c.Audio.SampleRate = 16000 },
			expectError: true,
			errorMsg:    "sample_rate must be 24000 Hz",
		},
		{
			name:        "invalid audio channels",
			mutate:      func(c *Config) { c.Audio.Channels = 2 },
			expectError: true,
			errorMsg:    "channels must be 1",
		},
		{
			name:        "missing api key",
			mutate:      func(c *Config) { c.Gemini.APIKey = "" },
			expectError: true,
			errorMsg:    "api_key cannot be empty",
		},
		{
			name:        "negative retries",
			mutate:      func(c *Config) { c.Gemini.MaxRetries = -1 },
			expectError: true,
			errorMsg:    "max_retries cannot be negative",
		},
		{
			name: "playback enabled without player",
			mutate: func(c *Config) {
				c.Playback.Enabled = true
				c.Playback.PlayerCommand = ""
			},
			expectError: true,
			errorMsg:    "player_command cannot be empty",
		},
		{
			name: "playback disabled without player is fine",
			mutate: func(c *Config) {
				c.Playback.Enabled = false
				c.Playback.PlayerCommand = ""
			},
			expectError: false,
		},
		{
			name:        "empty default voice",
			mutate:      func(c *Config) { c.Session.DefaultVoice1 = "" },
			expectError: true,
			errorMsg:    "default host voices cannot be empty",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
http:
  port: 8080
  address: "0.0.0.0"
audio:
  sample_rate: 24000
  channels: 1
  bit_depth: 16
gemini:
  api_key: "test-key"
  timeout: 120
  max_retries: 2
  max_concurrent: 4
  max_news_items: 20
playback:
  enabled: false
session:
  timeout: 1800
  cleanup_interval: 60
  max_sessions: 100
  default_voice_host1: "Kore"
  default_voice_host2: "Puck"
logging:
  level: "info"
  format: "json"
  output: "stdout"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
http:
  port: not_a_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
http:
  port: 8080
  # missing address
`,
			expectError: true,
			errorMsg:    "address cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Errorf("Expected error for nonexistent file but got none")
	}
	if !contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestEnvironmentKeyOverride(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	configYAML := `
http:
  port: 8080
  address: "0.0.0.0"
audio:
  sample_rate: 24000
  channels: 1
  bit_depth: 16
gemini:
  api_key: "file-key"
  timeout: 120
  max_retries: 2
  max_concurrent: 4
  max_news_items: 20
playback:
  enabled: false
session:
  timeout: 1800
  cleanup_interval: 60
  max_sessions: 100
  default_voice_host1: "Kore"
  default_voice_host2: "Puck"
logging:
  level: "info"
  format: "json"
  output: "stdout"
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	t.Setenv("GEMINI_API_KEY", "env-key")

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Gemini.APIKey != "env-key" {
		t.Errorf("Expected environment override 'env-key', got '%s'", config.Gemini.APIKey)
	}
}

func TestDurationHelpers(t *testing.T) {
	gemini := GeminiConfig{Timeout: 120}
	if gemini.GetTimeoutDuration() != 120*time.Second {
		t.Errorf("Expected 120 seconds, got %v", gemini.GetTimeoutDuration())
	}

	session := SessionConfig{Timeout: 1800, CleanupInterval: 60}
	if session.GetTimeoutDuration() != 30*time.Minute {
		t.Errorf("Expected 30 minutes, got %v", session.GetTimeoutDuration())
	}
	if session.GetCleanupIntervalDuration() != time.Minute {
		t.Errorf("Expected 1 minute, got %v", session.GetCleanupIntervalDuration())
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{
			name: "valid json to stdout",
			config: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			valid: true,
		},
		{
			name: "valid text to stderr",
			config: LoggingConfig{
				Level:  "debug",
				Format: "text",
				Output: "stderr",
			},
			valid: true,
		},
		{
			name: "invalid log level",
			config: LoggingConfig{
				Level:  "trace",
				Format: "json",
				Output: "stdout",
			},
			valid: false,
		},
		{
			name: "invalid format",
			config: LoggingConfig{
				Level:  "info",
				Format: "xml",
				Output: "stdout",
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

// Helper function to check if a string contains a substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > len(substr) && findSubstring(s, substr)))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
