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

// DeepgramConfig holds configuration for the Deepgram pre-recorded API.
type DeepgramConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.deepgram.com"
	Model   string // default: "nova-2"
}

// DeepgramProvider calls Deepgram's /v1/listen endpoint. Remote sources are
// passed by URL so the audio is not downloaded twice.
type DeepgramProvider struct {
	cfg        DeepgramConfig
	httpClient *http.Client
}

func NewDeepgramProvider(cfg DeepgramConfig) *DeepgramProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepgram.com"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &DeepgramProvider{cfg: cfg, httpClient: &http.Client{}}
}

func (d *DeepgramProvider) Name() string { return "deepgram" }

type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage   string  `json:"detected_language"`
			LanguageConfidence float64 `json:"language_confidence"`
			Alternatives       []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *DeepgramProvider) Transcribe(ctx context.Context, src *audio.Source, locale string) (*Result, error) {
	params := url.Values{}
	params.Set("smart_format", "true")
	if code := language.ForProvider(d.Name(), locale).Code; code != "" {
		params.Set("language", code)
	} else {
		params.Set("detect_language", "true")
	}

	resp, err := d.listen(ctx, src, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Results.Channels) == 0 {
		return nil, newError(d.Name(), ErrMalformed, fmt.Errorf("response has no channels"))
	}

	ch := resp.Results.Channels[0]
	res := &Result{
		Language: locale,
		Provider: d.Name(),
		Duration: resp.Metadata.Duration,
	}
	if code, ok := language.Canonicalize(ch.DetectedLanguage); ok {
		res.Language = code
	}
	// No alternatives means nothing was said.
	if len(ch.Alternatives) > 0 {
		res.Text = ch.Alternatives[0].Transcript
		res.Confidence = confidence(ch.Alternatives[0].Confidence)
	}
	return res, nil
}

// DetectLanguage runs a detection-enabled request and keeps only the
// language guess.
func (d *DeepgramProvider) DetectLanguage(ctx context.Context, src *audio.Source) (*Detection, error) {
	params := url.Values{}
	params.Set("detect_language", "true")

	resp, err := d.listen(ctx, src, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Results.Channels) == 0 || resp.Results.Channels[0].DetectedLanguage == "" {
		return nil, newError(d.Name(), ErrMalformed, fmt.Errorf("no detected language in response"))
	}
	ch := resp.Results.Channels[0]
	det := &Detection{
		Language:   ch.DetectedLanguage,
		Confidence: ch.LanguageConfidence,
		Detector:   d.Name(),
	}
	if len(ch.Alternatives) > 0 {
		det.Text = ch.Alternatives[0].Transcript
	}
	return det, nil
}

func (d *DeepgramProvider) listen(ctx context.Context, src *audio.Source, params url.Values) (*deepgramResponse, error) {
	if d.cfg.APIKey == "" {
		return nil, unconfigured(d.Name(), "DEEPGRAM_API_KEY is not set")
	}
	params.Set("model", d.cfg.Model)

	var (
		body        io.Reader
		contentType string
	)
	if src.Remote() {
		payload, err := json.Marshal(map[string]string{"url": src.URL})
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body, contentType = bytes.NewReader(payload), "application/json"
	} else {
		data, err := src.Bytes(ctx)
		if err != nil {
			return nil, fmt.Errorf("deepgram: %w", err)
		}
		body, contentType = bytes.NewReader(data), src.MimeType
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/v1/listen?"+params.Encode(), body)
	if err != nil {
		return nil, newError(d.Name(), ErrUnconfigured, err)
	}
	httpReq.Header.Set("Authorization", "Token "+d.cfg.APIKey)
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(d.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(d.Name(), fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(d.Name(), resp.StatusCode, respBody)
	}

	var out deepgramResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, newError(d.Name(), ErrMalformed, fmt.Errorf("parse response: %w", err))
	}
	return &out, nil
}
