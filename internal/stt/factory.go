package stt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/nikhilbhutani/sttgateway/internal/config"
)

// Factory builds a provider and its call timeout from configuration.
type Factory func(ctx context.Context, cfg config.STTConfig) (Provider, time.Duration)

var registry = map[string]Factory{
	"openai": func(_ context.Context, cfg config.STTConfig) (Provider, time.Duration) {
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		}), cfg.OpenAI.Timeout
	},
	"local": func(_ context.Context, cfg config.STTConfig) (Provider, time.Duration) {
		return NewLocalWhisper(LocalConfig{BaseURL: cfg.Local.BaseURL}), cfg.Local.Timeout
	},
	"deepgram": func(_ context.Context, cfg config.STTConfig) (Provider, time.Duration) {
		return NewDeepgramProvider(DeepgramConfig{
			APIKey:  cfg.Deepgram.APIKey,
			BaseURL: cfg.Deepgram.BaseURL,
			Model:   cfg.Deepgram.Model,
		}), cfg.Deepgram.Timeout
	},
	"azure": func(_ context.Context, cfg config.STTConfig) (Provider, time.Duration) {
		return NewAzureProvider(AzureConfig{
			Key:     cfg.Azure.Key,
			Region:  cfg.Azure.Region,
			BaseURL: cfg.Azure.BaseURL,
		}), cfg.Azure.Timeout
	},
	"google": func(ctx context.Context, cfg config.STTConfig) (Provider, time.Duration) {
		return NewGoogleProvider(ctx, GoogleConfig{CredentialsFile: cfg.Google.CredentialsFile}), cfg.Google.Timeout
	},
}

// Register adds or replaces a provider factory. It must be called before
// NewChainFromConfig.
func Register(name string, f Factory) {
	registry[name] = f
}

// Registered lists the known provider names.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewChainFromConfig builds the chain in the order cfg.Providers lists. The
// returned closer releases provider clients that hold connections.
func NewChainFromConfig(ctx context.Context, cfg config.STTConfig, logger *slog.Logger) (*Chain, func() error, error) {
	seen := make(map[string]bool, len(cfg.Providers))
	var (
		entries []Entry
		closers []io.Closer
	)
	for _, name := range cfg.Providers {
		if seen[name] {
			return nil, nil, fmt.Errorf("provider %q listed twice in STT_PROVIDERS", name)
		}
		seen[name] = true

		f, ok := registry[name]
		if !ok {
			return nil, nil, fmt.Errorf("unknown stt provider %q (known: %v)", name, Registered())
		}
		p, timeout := f(ctx, cfg)
		if c, ok := p.(io.Closer); ok {
			closers = append(closers, c)
		}
		entries = append(entries, Entry{Provider: p, Timeout: timeout})
	}

	opts := []ChainOption{WithLogger(logger)}
	switch cfg.Detector {
	case "", "none":
	case "local":
		opts = append(opts, WithDetector(NewLocalWhisper(LocalConfig{BaseURL: cfg.Local.BaseURL}), cfg.Local.DetectTimeout))
	case "deepgram":
		opts = append(opts, WithDetector(NewDeepgramProvider(DeepgramConfig{
			APIKey:  cfg.Deepgram.APIKey,
			BaseURL: cfg.Deepgram.BaseURL,
			Model:   cfg.Deepgram.Model,
		}), cfg.Deepgram.DetectTimeout))
	default:
		return nil, nil, fmt.Errorf("unknown stt detector %q", cfg.Detector)
	}

	closeAll := func() error {
		var first error
		for _, c := range closers {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return NewChain(entries, opts...), closeAll, nil
}
