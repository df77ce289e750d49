package stt

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/nikhilbhutani/sttgateway/internal/config"
)

func TestNewChainFromConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.STTConfig{
		Providers: []string{"deepgram", "openai", "azure", "local"},
		Detector:  "local",
		OpenAI:    config.OpenAISTTConfig{Timeout: 30 * time.Second},
		Local:     config.LocalSTTConfig{DetectTimeout: time.Second},
	}

	chain, closeAll, err := NewChainFromConfig(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("NewChainFromConfig: %v", err)
	}
	defer closeAll()

	if got := chain.Providers(); !reflect.DeepEqual(got, cfg.Providers) {
		t.Fatalf("providers = %v, want %v", got, cfg.Providers)
	}
	if chain.Detector() != "local" {
		t.Fatalf("detector = %q", chain.Detector())
	}
	if chain.entries[1].Timeout != 30*time.Second {
		t.Fatalf("openai timeout = %s", chain.entries[1].Timeout)
	}
}

func TestNewChainFromConfig_Errors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := map[string]config.STTConfig{
		"unknown provider": {Providers: []string{"openai", "whisperx"}},
		"duplicate":        {Providers: []string{"openai", "openai"}},
		"unknown detector": {Providers: []string{"openai"}, Detector: "magic"},
	}
	for name, cfg := range tests {
		if _, _, err := NewChainFromConfig(context.Background(), cfg, logger); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestRegister(t *testing.T) {
	Register("mock", func(context.Context, config.STTConfig) (Provider, time.Duration) {
		return &mockProvider{name: "mock", result: &Result{Text: "ok"}}, time.Second
	})
	defer delete(registry, "mock")

	chain, _, err := NewChainFromConfig(context.Background(), config.STTConfig{Providers: []string{"mock"}, Detector: "none"}, slog.Default())
	if err != nil {
		t.Fatalf("NewChainFromConfig: %v", err)
	}
	if got := chain.Providers(); len(got) != 1 || got[0] != "mock" {
		t.Fatalf("providers = %v", got)
	}
}
