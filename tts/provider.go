// Package tts defines the speech synthesis provider abstraction and the
// ordered fallback factory that selects among configured providers.
package tts

import (
	"context"
	"fmt"
	"strings"
)

// Common audio constants.
const (
	sampleRateDefault = 22050
	bitDepthDefault   = 16
)

// Provider converts notification text to an audio artifact on disk.
// Implementations wrap one synthesis backend (HTTP API, local subprocess).
type Provider interface {
	// Name returns the provider identifier (for logging and cache keys).
	Name() string

	// Initialize prepares the provider for use. It is called once before
	// any synthesis; a failed Initialize marks the provider unavailable.
	Initialize(ctx context.Context) error

	// Available reports whether the provider is ready to synthesize.
	Available() bool

	// GenerateSpeech synthesizes text into an audio file at outputPath.
	// On failure no partial artifact remains at outputPath.
	GenerateSpeech(ctx context.Context, text, outputPath string, params Params) error

	// SupportedFormats returns the audio formats the provider can produce.
	SupportedFormats() []AudioFormat

	// Cleanup releases provider resources. Safe to call more than once.
	Cleanup() error
}

// Params are the synthesis parameters that shape the generated audio.
// Two calls with equal text and equal Params produce the same artifact,
// which is what the speech cache keys on.
type Params struct {
	// Voice is the provider-specific voice or speaker identifier.
	Voice string `yaml:"voice"`

	// Language is the synthesis language code (e.g. "pt-br", "en").
	Language string `yaml:"language"`

	// Speed is the speech rate multiplier. Zero means provider default.
	Speed float64 `yaml:"speed"`

	// Model is the synthesis model, for providers that offer several.
	Model string `yaml:"model"`
}

// Canonical returns a deterministic serialization of the parameters.
// Field order and formatting are fixed; cache keys depend on this being
// stable across runs.
func (p Params) Canonical() string {
	var b strings.Builder
	fmt.Fprintf(&b, "voice=%s;lang=%s;speed=%.3f;model=%s",
		p.Voice, p.Language, p.Speed, p.Model)
	return b.String()
}

// AudioFormat describes an audio output format.
type AudioFormat struct {
	// Name is the format identifier ("wav", "mp3").
	Name string

	// MIMEType is the content type (e.g. "audio/wav").
	MIMEType string

	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// BitDepth is the bits per sample (for PCM formats).
	BitDepth int

	// Channels is the number of audio channels (1=mono, 2=stereo).
	Channels int
}

// String returns the format name.
func (f AudioFormat) String() string {
	return f.Name
}

// Common audio formats.
var (
	// FormatWAV is WAV format, the native output of most local engines.
	FormatWAV = AudioFormat{
		Name:       "wav",
		MIMEType:   "audio/wav",
		SampleRate: sampleRateDefault,
		BitDepth:   bitDepthDefault,
		Channels:   1,
	}

	// FormatMP3 is MP3 format, what the playback path consumes.
	FormatMP3 = AudioFormat{
		Name:       "mp3",
		MIMEType:   "audio/mpeg",
		SampleRate: sampleRateDefault,
		Channels:   1,
	}
)
