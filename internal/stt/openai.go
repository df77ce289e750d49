package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/nikhilbhutani/sttgateway/internal/audio"
	"github.com/nikhilbhutani/sttgateway/internal/language"
)

// OpenAIConfig holds configuration for the OpenAI Whisper backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.openai.com/v1"
	Model   string // default: "whisper-1"
}

// OpenAIProvider transcribes audio using OpenAI's Whisper API.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *openai.Client
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}
}

func (o *OpenAIProvider) Name() string { return "openai" }

func (o *OpenAIProvider) Transcribe(ctx context.Context, src *audio.Source, locale string) (*Result, error) {
	if o.cfg.APIKey == "" {
		return nil, unconfigured(o.Name(), "OPENAI_API_KEY is not set")
	}
	data, err := src.Bytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.cfg.Model,
		FilePath: src.Filename,
		Reader:   bytes.NewReader(data),
		Language: language.ForProvider(o.Name(), locale).Code,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, o.classify(err)
	}

	detected := locale
	if code, ok := language.Canonicalize(resp.Language); ok {
		detected = code
	}
	return &Result{
		Text:     resp.Text,
		Language: detected,
		Provider: o.Name(),
		Duration: resp.Duration,
	}, nil
}

func (o *OpenAIProvider) classify(err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(o.Name(), apiErr.HTTPStatusCode, []byte(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return statusError(o.Name(), reqErr.HTTPStatusCode, []byte(http.StatusText(reqErr.HTTPStatusCode)))
	}
	return transportError(o.Name(), err)
}
