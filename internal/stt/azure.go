package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/nikhilbhutani/sttgateway/internal/audio"
	"github.com/nikhilbhutani/sttgateway/internal/language"
)

// AzureConfig holds configuration for Azure's short-audio speech REST API.
type AzureConfig struct {
	Key     string
	Region  string
	BaseURL string // default: "https://{region}.stt.speech.microsoft.com"
}

// AzureProvider calls the short-audio recognition endpoint, which accepts
// WAV (PCM) and Ogg/Opus bodies of up to sixty seconds.
type AzureProvider struct {
	cfg        AzureConfig
	httpClient *http.Client
}

func NewAzureProvider(cfg AzureConfig) *AzureProvider {
	if cfg.BaseURL == "" && cfg.Region != "" {
		cfg.BaseURL = fmt.Sprintf("https://%s.stt.speech.microsoft.com", cfg.Region)
	}
	return &AzureProvider{cfg: cfg, httpClient: &http.Client{}}
}

func (a *AzureProvider) Name() string { return "azure" }

var azureContentTypes = map[string]string{
	"audio/wav": "audio/wav; codecs=audio/pcm; samplerate=16000",
	"audio/ogg": "audio/ogg; codecs=opus",
}

type azureResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	Duration          int64  `json:"Duration"` // 100ns ticks
	NBest             []struct {
		Confidence float64 `json:"Confidence"`
		Display    string  `json:"Display"`
	} `json:"NBest"`
}

func (a *AzureProvider) Transcribe(ctx context.Context, src *audio.Source, locale string) (*Result, error) {
	if a.cfg.Key == "" || a.cfg.BaseURL == "" {
		return nil, unconfigured(a.Name(), "AZURE_SPEECH_KEY and AZURE_SPEECH_REGION must be set")
	}
	if locale == "" {
		locale = language.DefaultLocale
	}
	code := language.ForProvider(a.Name(), locale).Code

	data, err := src.Bytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("azure: %w", err)
	}
	contentType, ok := azureContentTypes[src.MimeType]
	if !ok {
		return nil, newError(a.Name(), ErrMalformed, fmt.Errorf("unsupported audio type %s", src.MimeType))
	}

	params := url.Values{}
	params.Set("language", code)
	params.Set("format", "detailed")
	endpoint := a.cfg.BaseURL + "/speech/recognition/conversation/cognitiveservices/v1?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, newError(a.Name(), ErrUnconfigured, err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.Key)
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(a.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(a.Name(), fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(a.Name(), resp.StatusCode, respBody)
	}

	var out azureResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, newError(a.Name(), ErrMalformed, fmt.Errorf("parse response: %w", err))
	}

	res := &Result{
		Language: code,
		Provider: a.Name(),
		Duration: float64(out.Duration) / 1e7,
	}
	switch out.RecognitionStatus {
	case "Success":
		res.Text = out.DisplayText
		if len(out.NBest) > 0 {
			res.Text = out.NBest[0].Display
			res.Confidence = confidence(out.NBest[0].Confidence)
		}
	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		// Silence or unintelligible audio is a valid, empty transcript.
	default:
		return nil, newError(a.Name(), ErrMalformed, fmt.Errorf("recognition status %q", out.RecognitionStatus))
	}
	return res, nil
}
