package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/bellhopd/bellhop/logger"
	metrics "github.com/bellhopd/bellhop/metrics/prometheus"
)

// Builder constructs a provider from its configuration map.
type Builder func(config map[string]string) (Provider, error)

// Factory builds and holds speech providers. Registration order defines the
// fallback order: GenerateSpeech tries each available provider in the order
// it was registered and stops at the first success.
type Factory struct {
	names     []string
	builders  map[string]Builder
	providers []Provider
}

// NewFactory creates an empty provider factory.
func NewFactory() *Factory {
	return &Factory{
		builders: make(map[string]Builder),
	}
}

// Register adds a provider builder under name. Registering the same name
// twice replaces the builder but keeps the original position.
func (f *Factory) Register(name string, builder Builder) {
	if _, exists := f.builders[name]; !exists {
		f.names = append(f.names, name)
	}
	f.builders[name] = builder
}

// Names returns the registered provider names in fallback order.
func (f *Factory) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Initialize builds and initializes every registered provider. A provider
// whose build or Initialize fails is logged and skipped; it never joins the
// fallback chain. Initialize fails only when no provider comes up.
func (f *Factory) Initialize(ctx context.Context, configs map[string]map[string]string) error {
	f.providers = f.providers[:0]

	for _, name := range f.names {
		provider, err := f.builders[name](configs[name])
		if err != nil {
			logger.Warn("provider construction failed, skipping",
				"provider", name, "error", err)
			continue
		}
		if err := provider.Initialize(ctx); err != nil {
			logger.Warn("provider initialization failed, skipping",
				"provider", name, "error", err)
			continue
		}
		logger.Info("speech provider ready", "provider", provider.Name())
		f.providers = append(f.providers, provider)
	}

	if len(f.providers) == 0 {
		return ErrNoProviders
	}
	return nil
}

// Providers returns the initialized providers in fallback order.
func (f *Factory) Providers() []Provider {
	out := make([]Provider, len(f.providers))
	copy(out, f.providers)
	return out
}

// Provider returns the initialized provider with the given name.
func (f *Factory) Provider(name string) (Provider, error) {
	for _, p := range f.providers {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("provider %q: %w", name, ErrProviderUnavailable)
}

// GenerateSpeech synthesizes text via the fallback chain. Each available
// provider is tried in registration order; the name of the provider that
// produced the artifact is returned so callers can key the cache on it.
func (f *Factory) GenerateSpeech(ctx context.Context, text, outputPath string, params Params) (string, error) {
	if text == "" {
		return "", ErrEmptyText
	}

	var lastErr error
	for _, provider := range f.providers {
		if !provider.Available() {
			continue
		}

		logger.SynthesisCall(provider.Name(), text)
		start := time.Now()
		err := provider.GenerateSpeech(ctx, text, outputPath, params)
		elapsed := time.Since(start).Seconds()

		if err == nil {
			metrics.RecordSynthesis(provider.Name(), "success", elapsed)
			logger.SynthesisResult(provider.Name(), nil)
			return provider.Name(), nil
		}

		metrics.RecordSynthesis(provider.Name(), "error", elapsed)
		logger.SynthesisResult(provider.Name(), err)
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("all providers failed: %w", lastErr)
	}
	return "", ErrNoProviders
}

// Cleanup releases all provider resources.
func (f *Factory) Cleanup() {
	for _, provider := range f.providers {
		if err := provider.Cleanup(); err != nil {
			logger.Warn("provider cleanup failed",
				"provider", provider.Name(), "error", err)
		}
	}
	f.providers = nil
}
