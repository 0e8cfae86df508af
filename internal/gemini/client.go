package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Raw speech payloads produced by the TTS model: signed 16-bit PCM,
// mono, 24000 Hz, base64-encoded in transit.
const (
	SynthSampleRate   = 24000
	SynthChannelCount = 1
)

var (
	// ErrServiceFailure indicates the generative API was unreachable or
	// returned an error status.
	ErrServiceFailure = errors.New("generative service failure")

	// ErrMalformedResponse indicates the service responded with data that
	// does not match the expected shape.
	ErrMalformedResponse = errors.New("malformed service response")
)

// Config contains generative API client configuration
type Config struct {
	BaseURL       string
	APIKey        string
	NewsModel     string
	ScriptModel   string
	TTSModel      string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int

	// Broadcast identity woven into the prompts
	StationName   string
	StationSlogan string
	MaxNewsItems  int
}

// Client provides access to the generative API: news retrieval, script
// generation and speech synthesis
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Concurrency limiting semaphore

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a new generative API client
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	if config.NewsModel == "" {
		config.NewsModel = "gemini-2.5-flash"
	}

	if config.ScriptModel == "" {
		config.ScriptModel = "gemini-2.5-pro"
	}

	if config.TTSModel == "" {
		config.TTSModel = "gemini-2.5-flash-preview-tts"
	}

	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 2
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	if config.StationName == "" {
		config.StationName = "Newscast Radio"
	}

	if config.MaxNewsItems <= 0 {
		config.MaxNewsItems = 20
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// API wire types for the generateContent endpoint.

type generateRequest struct {
	Contents         []apiContent      `json:"contents"`
	Tools            []apiTool         `json:"tools,omitempty"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type apiContent struct {
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text       string         `json:"text,omitempty"`
	InlineData *apiInlineData `json:"inlineData,omitempty"`
}

type apiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type apiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type generationConfig struct {
	ResponseMIMEType   string        `json:"responseMimeType,omitempty"`
	ResponseSchema     *apiSchema    `json:"responseSchema,omitempty"`
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type apiSchema struct {
	Type        string                `json:"type"`
	Description string                `json:"description,omitempty"`
	Items       *apiSchema            `json:"items,omitempty"`
	Properties  map[string]*apiSchema `json:"properties,omitempty"`
	Required    []string              `json:"required,omitempty"`
}

type speechConfig struct {
	VoiceConfig             *voiceConfig             `json:"voiceConfig,omitempty"`
	MultiSpeakerVoiceConfig *multiSpeakerVoiceConfig `json:"multiSpeakerVoiceConfig,omitempty"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig *prebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type multiSpeakerVoiceConfig struct {
	SpeakerVoiceConfigs []speakerVoiceConfig `json:"speakerVoiceConfigs"`
}

type speakerVoiceConfig struct {
	Speaker     string      `json:"speaker"`
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []apiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// FetchNews retrieves the current top news stories as headline/summary
// pairs. The returned set replaces any previously fetched items; IDs are
// assigned locally.
func (c *Client) FetchNews(ctx context.Context) ([]NewsItem, error) {
	date := time.Now().Format("January 2, 2006")
	prompt := fmt.Sprintf(
		"Find the %d most important and recent news stories for today, %s. "+
			"Use reliable sources such as major news portals and verified journalist accounts. "+
			"For each story, provide a headline and a brief summary. "+
			"Format the output as a JSON array of objects with the keys \"headline\" and \"summary\". "+
			"Do not include introductory text or explanations, only the JSON array.",
		c.config.MaxNewsItems, date)

	req := &generateRequest{
		Contents: []apiContent{{Parts: []apiPart{{Text: prompt}}}},
		Tools:    []apiTool{{GoogleSearch: &struct{}{}}},
	}

	resp, err := c.generate(ctx, c.config.NewsModel, req)
	if err != nil {
		return nil, err
	}

	text, err := firstText(resp)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Headline string `json:"headline"`
		Summary  string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &raw); err != nil {
		return nil, fmt.Errorf("%w: news payload is not a JSON array: %v", ErrMalformedResponse, err)
	}

	items := make([]NewsItem, 0, len(raw))
	for i, r := range raw {
		if strings.TrimSpace(r.Headline) == "" || strings.TrimSpace(r.Summary) == "" {
			return nil, fmt.Errorf("%w: news item %d is missing headline or summary", ErrMalformedResponse, i)
		}
		items = append(items, NewsItem{
			ID:       uuid.NewString(),
			Headline: r.Headline,
			Summary:  r.Summary,
		})
	}

	return items, nil
}

// GenerateScript produces a two-host dialogue script covering the given
// news items. Every returned line carries one of the three broadcast roles;
// anything else is rejected as malformed.
func (c *Client) GenerateScript(ctx context.Context, items []NewsItem) ([]ScriptLine, error) {
	var stories strings.Builder
	for _, item := range items {
		fmt.Fprintf(&stories, "- Headline: %s\n  Summary: %s\n\n", item.Headline, item.Summary)
	}

	prompt := fmt.Sprintf(`Act as an expert radio scriptwriter for "%s". The station slogan is "%s".
Your task is to create a DETAILED and EXTENSIVE radio news script for two presenters. Do not use proper names for the presenters, only the labels "Host 1" and "Host 2".

The goal is a one-to-two-minute discussion of EACH story. Do not just read the summaries; create a dynamic, conversational dialogue between the hosts. They should comment on the story, add context, and react naturally, including verbal expressions like "mhm", "right", "exactly", "how interesting".

Cover these stories in depth:
%s
The script must include:
1. An energetic, memorable introduction naming the station and its slogan.
2. The extensive development of the stories with a fluid dialogue between the hosts.
3. A professional sign-off that invites listeners to keep tuning in and repeats the station name and slogan.
4. Clear sound effect cues (for example, "[Sound effect: energetic news sting]").

The response must be a JSON array of objects. Each object represents one script line and has two properties:
- "speaker": one of "Host 1", "Host 2", or "Sound Effect".
- "line": the dialogue text or the effect description.`,
		c.config.StationName, c.config.StationSlogan, stories.String())

	req := &generateRequest{
		Contents: []apiContent{{Parts: []apiPart{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema: &apiSchema{
				Type: "ARRAY",
				Items: &apiSchema{
					Type: "OBJECT",
					Properties: map[string]*apiSchema{
						"speaker": {
							Type:        "STRING",
							Description: "The speaker. Options: 'Host 1', 'Host 2', 'Sound Effect'.",
						},
						"line": {
							Type:        "STRING",
							Description: "The dialogue line or the sound effect description.",
						},
					},
					Required: []string{"speaker", "line"},
				},
			},
		},
	}

	resp, err := c.generate(ctx, c.config.ScriptModel, req)
	if err != nil {
		return nil, err
	}

	text, err := firstText(resp)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Speaker string `json:"speaker"`
		Line    string `json:"line"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &raw); err != nil {
		return nil, fmt.Errorf("%w: script payload is not a JSON array: %v", ErrMalformedResponse, err)
	}

	lines := make([]ScriptLine, 0, len(raw))
	for i, r := range raw {
		speaker := Speaker(r.Speaker)
		if !speaker.Valid() {
			return nil, fmt.Errorf("%w: script line %d has unknown speaker %q", ErrMalformedResponse, i, r.Speaker)
		}
		if strings.TrimSpace(r.Line) == "" {
			return nil, fmt.Errorf("%w: script line %d is empty", ErrMalformedResponse, i)
		}
		lines = append(lines, ScriptLine{
			ID:      uuid.NewString(),
			Speaker: speaker,
			Text:    r.Line,
		})
	}

	return lines, nil
}

// SynthesizeSpeech renders the script as raw PCM speech using the two
// assigned host voices. Sound effect lines are excluded from the request.
// The returned bytes are the decoded s16le mono 24kHz payload.
func (c *Client) SynthesizeSpeech(ctx context.Context, lines []ScriptLine, voice1, voice2 string) ([]byte, error) {
	var prompt strings.Builder
	prompt.WriteString("TTS the following conversation between two radio news hosts, Host 1 and Host 2:\n")
	for _, line := range lines {
		if line.Speaker == SpeakerSoundEffect {
			continue
		}
		fmt.Fprintf(&prompt, "%s: %s\n", line.Speaker, line.Text)
	}

	req := &generateRequest{
		Contents: []apiContent{{Parts: []apiPart{{Text: prompt.String()}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				MultiSpeakerVoiceConfig: &multiSpeakerVoiceConfig{
					SpeakerVoiceConfigs: []speakerVoiceConfig{
						{
							Speaker:     string(SpeakerHost1),
							VoiceConfig: voiceConfig{PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: voice1}},
						},
						{
							Speaker:     string(SpeakerHost2),
							VoiceConfig: voiceConfig{PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: voice2}},
						},
					},
				},
			},
		},
	}

	resp, err := c.generate(ctx, c.config.TTSModel, req)
	if err != nil {
		return nil, err
	}

	return firstAudio(resp)
}

// SynthesizeSample renders a short fixed phrase with a single voice for
// previewing. Same payload encoding as SynthesizeSpeech.
func (c *Client) SynthesizeSample(ctx context.Context, voiceID string) ([]byte, error) {
	sampleText := fmt.Sprintf("This is a voice test for %s.", c.config.StationName)

	req := &generateRequest{
		Contents: []apiContent{{Parts: []apiPart{{Text: sampleText}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: &voiceConfig{
					PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: voiceID},
				},
			},
		},
	}

	resp, err := c.generate(ctx, c.config.TTSModel, req)
	if err != nil {
		return nil, err
	}

	return firstAudio(resp)
}

// generate performs a generateContent call with concurrency limiting and a
// retry loop with exponential backoff.
func (c *Client) generate(ctx context.Context, model string, request *generateRequest) (*generateResponse, error) {
	// Acquire semaphore for concurrency limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		response, err := c.doRequest(ctx, model, request)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return response, nil
		}

		lastErr = err

		if !isRetryable(err) {
			break
		}
	}

	c.incrementFailedRequests()
	return nil, lastErr
}

// doRequest performs a single generateContent HTTP request
func (c *Client) doRequest(ctx context.Context, model string, request *generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.config.BaseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.config.APIKey)
	httpReq.Header.Set("User-Agent", "newscast-audio-service/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceFailure, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrServiceFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: string(respBody)}
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, fmt.Errorf("%w: response is not valid JSON: %v", ErrMalformedResponse, err)
	}

	return &genResp, nil
}

// statusError carries a non-2xx HTTP status for retry classification.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("generative service failure: HTTP %d: %s", e.code, e.body)
}

func (e *statusError) Unwrap() error { return ErrServiceFailure }

// isRetryable reports whether a request error is worth retrying: network
// failures, 429 and 5xx. Malformed responses and client errors are not.
func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	return errors.Is(err, ErrServiceFailure)
}

// firstText extracts the first text part of the first candidate.
func firstText(resp *generateResponse) (string, error) {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text, nil
			}
		}
	}
	return "", fmt.Errorf("%w: no text content in response", ErrMalformedResponse)
}

// firstAudio extracts and decodes the first inline audio payload of the
// first candidate.
func firstAudio(resp *generateResponse) ([]byte, error) {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				raw, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("%w: audio payload is not valid base64: %v", ErrMalformedResponse, err)
				}
				return raw, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no audio data in response", ErrMalformedResponse)
}

// stripCodeFence removes a surrounding markdown code fence if the model
// wrapped its JSON output in one. The content itself is still parsed
// strictly afterwards.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.avgResponseTime == 0 {
		c.avgResponseTime = duration
	} else {
		// Exponential moving average
		c.avgResponseTime = time.Duration(float64(c.avgResponseTime)*0.8 + float64(duration)*0.2)
	}
}
