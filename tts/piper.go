package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// defaultPiperTimeout bounds a single piper invocation.
	defaultPiperTimeout = 30 * time.Second

	defaultPiperBinary = "piper"
)

// PiperProvider synthesizes speech by running the piper binary locally,
// piping text on stdin and collecting a WAV file.
type PiperProvider struct {
	binary    string
	modelPath string
	timeout   time.Duration
	available bool
}

// PiperOption configures the piper provider.
type PiperOption func(*PiperProvider)

// WithPiperBinary sets the piper executable path.
func WithPiperBinary(path string) PiperOption {
	return func(p *PiperProvider) {
		p.binary = path
	}
}

// WithPiperTimeout sets the per-invocation timeout.
func WithPiperTimeout(d time.Duration) PiperOption {
	return func(p *PiperProvider) {
		p.timeout = d
	}
}

// NewPiperProvider creates a piper subprocess provider using the given
// voice model file.
func NewPiperProvider(modelPath string, opts ...PiperOption) *PiperProvider {
	p := &PiperProvider{
		binary:    defaultPiperBinary,
		modelPath: modelPath,
		timeout:   defaultPiperTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *PiperProvider) Name() string {
	return "piper"
}

// Initialize verifies the binary is on PATH and the model file exists.
func (p *PiperProvider) Initialize(_ context.Context) error {
	if _, err := exec.LookPath(p.binary); err != nil {
		return fmt.Errorf("piper binary not found: %w", err)
	}
	if _, err := os.Stat(p.modelPath); err != nil {
		return fmt.Errorf("piper model not found: %w", err)
	}
	p.available = true
	return nil
}

// Available reports whether the provider initialized successfully.
func (p *PiperProvider) Available() bool {
	return p.available
}

// GenerateSpeech runs piper with text on stdin, writing WAV to outputPath.
func (p *PiperProvider) GenerateSpeech(ctx context.Context, text, outputPath string, params Params) error {
	if text == "" {
		return ErrEmptyText
	}
	if !p.available {
		return ErrProviderUnavailable
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{"--model", p.modelPath, "--output_file", outputPath}
	if params.Speed != 0 {
		// Piper expresses rate as length scale, the inverse of speed.
		args = append(args, "--length_scale", fmt.Sprintf("%.3f", 1/params.Speed))
	}
	if params.Voice != "" {
		args = append(args, "--speaker", params.Voice)
	}

	cmd := exec.CommandContext(runCtx, p.binary, args...)
	cmd.Stdin = strings.NewReader(text)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Drop any partial artifact so the cache never sees it.
		_ = os.Remove(outputPath)
		if runCtx.Err() == context.DeadlineExceeded {
			return NewSynthesisError("piper", "timeout", "synthesis timed out", runCtx.Err(), true)
		}
		return NewSynthesisError("piper", "",
			fmt.Sprintf("piper failed: %s", stderr.String()), err, false)
	}

	if info, err := os.Stat(outputPath); err != nil || info.Size() == 0 {
		_ = os.Remove(outputPath)
		return NewSynthesisError("piper", "", "no audio produced", ErrSynthesisFailed, false)
	}
	return nil
}

// SupportedFormats returns the formats piper produces.
func (p *PiperProvider) SupportedFormats() []AudioFormat {
	return []AudioFormat{FormatWAV}
}

// Cleanup releases the provider.
func (p *PiperProvider) Cleanup() error {
	p.available = false
	return nil
}
