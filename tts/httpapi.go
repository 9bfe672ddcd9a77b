package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	// defaultHTTPTimeout bounds a single synthesis request.
	defaultHTTPTimeout = 30 * time.Second

	// serverErrorThreshold is the HTTP status code threshold for server errors.
	serverErrorThreshold = 500

	artifactFilePermissions = 0o644
)

// HTTPProvider synthesizes speech through an HTTP synthesis server
// (a local Coqui or Melo endpoint, or any API with the same shape).
type HTTPProvider struct {
	name      string
	endpoint  string
	apiKey    string
	client    *http.Client
	available bool
}

// HTTPOption configures the HTTP provider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		p.client = client
	}
}

// WithAPIKey sets a bearer token for authenticated endpoints.
func WithAPIKey(key string) HTTPOption {
	return func(p *HTTPProvider) {
		p.apiKey = key
	}
}

// NewHTTPProvider creates an HTTP synthesis provider named name that posts
// to endpoint.
func NewHTTPProvider(name, endpoint string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *HTTPProvider) Name() string {
	return p.name
}

// Initialize probes the endpoint with a HEAD request.
func (p *HTTPProvider) Initialize(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return NewSynthesisError(p.name, "", "endpoint unreachable", err, true)
	}
	resp.Body.Close()
	p.available = true
	return nil
}

// Available reports whether the provider initialized successfully.
func (p *HTTPProvider) Available() bool {
	return p.available
}

// synthesisRequest is the request body for the synthesis endpoint.
type synthesisRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice,omitempty"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Model    string  `json:"model,omitempty"`
}

// synthesisErrorResponse represents an error response from the endpoint.
type synthesisErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// GenerateSpeech posts text to the synthesis endpoint and writes the audio
// response to outputPath.
func (p *HTTPProvider) GenerateSpeech(ctx context.Context, text, outputPath string, params Params) error {
	if text == "" {
		return ErrEmptyText
	}
	if !p.available {
		return ErrProviderUnavailable
	}

	reqBody := synthesisRequest{
		Text:     text,
		Voice:    params.Voice,
		Language: params.Language,
		Speed:    params.Speed,
		Model:    params.Model,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return NewSynthesisError(p.name, "", "request failed", err, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return p.handleError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewSynthesisError(p.name, "", "failed to read audio response", err, true)
	}
	if len(audio) == 0 {
		return NewSynthesisError(p.name, "", "empty audio response", ErrSynthesisFailed, false)
	}

	if err := os.WriteFile(outputPath, audio, artifactFilePermissions); err != nil {
		return fmt.Errorf("failed to write audio artifact: %w", err)
	}
	return nil
}

// handleError processes a non-200 response from the synthesis endpoint.
func (p *HTTPProvider) handleError(resp *http.Response) error {
	var errResp synthesisErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return NewSynthesisError(
			p.name,
			fmt.Sprintf("%d", resp.StatusCode),
			"unknown error",
			err,
			resp.StatusCode >= serverErrorThreshold,
		)
	}

	retryable := resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= serverErrorThreshold

	var cause error
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	case http.StatusBadRequest:
		if errResp.Error.Code == "invalid_voice" {
			cause = ErrInvalidVoice
		}
	case http.StatusServiceUnavailable:
		cause = ErrServiceUnavailable
	}

	return NewSynthesisError(p.name, errResp.Error.Code, errResp.Error.Message, cause, retryable)
}

// SupportedFormats returns audio formats the endpoint produces.
func (p *HTTPProvider) SupportedFormats() []AudioFormat {
	return []AudioFormat{FormatWAV, FormatMP3}
}

// Cleanup releases the provider.
func (p *HTTPProvider) Cleanup() error {
	p.available = false
	p.client.CloseIdleConnections()
	return nil
}
