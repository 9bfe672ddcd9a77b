package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"github.com/bellhopd/bellhop/logger"
	"github.com/bellhopd/bellhop/speechcache"
	"github.com/bellhopd/bellhop/tts"
)

// Synthesizer produces playable MP3 artifacts for notification text,
// consulting the speech cache before the provider chain. Concurrent
// requests for the same text collapse into one synthesis.
type Synthesizer struct {
	factory    *tts.Factory
	cache      *speechcache.Store
	transcoder *tts.Transcoder
	params     tts.Params
	group      singleflight.Group
}

// NewSynthesizer creates a synthesizer over the provider factory and cache.
// A nil transcoder means providers are trusted to emit playable audio.
func NewSynthesizer(factory *tts.Factory, cache *speechcache.Store, transcoder *tts.Transcoder, params tts.Params) *Synthesizer {
	return &Synthesizer{
		factory:    factory,
		cache:      cache,
		transcoder: transcoder,
		params:     params,
	}
}

// Speech returns the path of a playable artifact for text, synthesizing it
// on a cache miss. The cache is keyed per provider, so a fallback switch
// never serves another provider's audio.
func (s *Synthesizer) Speech(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", tts.ErrEmptyText
	}

	for _, provider := range s.factory.Providers() {
		if path, ok := s.cache.Lookup(ctx, text, provider.Name(), s.params); ok {
			return path, nil
		}
	}

	key := speechcache.NormalizeText(text) + "|" + s.params.Canonical()
	path, err, _ := s.group.Do(key, func() (any, error) {
		return s.synthesize(ctx, text)
	})
	if err != nil {
		return "", err
	}
	return path.(string), nil
}

// synthesize runs the provider chain into a scratch file, transcodes the
// result into the cache location, and commits it.
func (s *Synthesizer) synthesize(ctx context.Context, text string) (string, error) {
	scratch, err := os.MkdirTemp("", "bellhop-synth-")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() {
		if removeErr := os.RemoveAll(scratch); removeErr != nil {
			logger.Warn("failed to remove scratch directory",
				"path", scratch, "error", removeErr)
		}
	}()

	rawPath := filepath.Join(scratch, "speech.wav")
	providerName, err := s.factory.GenerateSpeech(ctx, text, rawPath, s.params)
	if err != nil {
		return "", err
	}

	artifactPath := s.cache.PathFor(speechcache.Key(text, providerName, s.params))
	if s.transcoder != nil {
		if err := s.transcoder.WAVToMP3(ctx, rawPath, artifactPath); err != nil {
			return "", fmt.Errorf("transcode failed: %w", err)
		}
	} else {
		raw, readErr := os.ReadFile(rawPath)
		if readErr != nil {
			return "", fmt.Errorf("failed to read synthesis output: %w", readErr)
		}
		if writeErr := os.WriteFile(artifactPath, raw, 0o644); writeErr != nil {
			return "", fmt.Errorf("failed to place artifact: %w", writeErr)
		}
	}

	return s.cache.Commit(ctx, text, providerName, s.params)
}
