package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/nikhilbhutani/sttgateway/internal/audio"
	"github.com/nikhilbhutani/sttgateway/internal/language"
)

// LocalConfig holds configuration for the local whisper.cpp backend.
type LocalConfig struct {
	BaseURL       string // default: "http://localhost:8178"
	InferencePath string // default: "/inference"
}

// LocalWhisper talks to a whisper.cpp HTTP server. It costs nothing per call,
// so it also serves as the language detector.
// Start the server with: ./server -m models/ggml-base.bin --port 8178
type LocalWhisper struct {
	cfg        LocalConfig
	httpClient *http.Client
}

func NewLocalWhisper(cfg LocalConfig) *LocalWhisper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8178"
	}
	if cfg.InferencePath == "" {
		cfg.InferencePath = "/inference"
	}
	// Deadlines come from the caller's context.
	return &LocalWhisper{cfg: cfg, httpClient: &http.Client{}}
}

func (l *LocalWhisper) Name() string { return "local" }

type whisperResponse struct {
	Text                        string  `json:"text"`
	Language                    string  `json:"language"`
	Duration                    float64 `json:"duration"`
	DetectedLanguage            string  `json:"detected_language"`
	DetectedLanguageProbability float64 `json:"detected_language_probability"`
}

func (l *LocalWhisper) Transcribe(ctx context.Context, src *audio.Source, locale string) (*Result, error) {
	lang := language.ForProvider(l.Name(), locale).Code
	if lang == "" {
		lang = "auto"
	}
	resp, err := l.infer(ctx, src, map[string]string{"language": lang})
	if err != nil {
		return nil, err
	}

	detected := locale
	for _, candidate := range []string{resp.DetectedLanguage, resp.Language} {
		if code, ok := language.Canonicalize(candidate); ok {
			detected = code
			break
		}
	}
	res := &Result{
		Text:     resp.Text,
		Language: detected,
		Provider: l.Name(),
		Duration: resp.Duration,
	}
	if resp.DetectedLanguageProbability > 0 {
		res.Confidence = confidence(resp.DetectedLanguageProbability)
	}
	return res, nil
}

// DetectLanguage asks the server to stop after language identification.
func (l *LocalWhisper) DetectLanguage(ctx context.Context, src *audio.Source) (*Detection, error) {
	resp, err := l.infer(ctx, src, map[string]string{
		"language":        "auto",
		"detect_language": "true",
	})
	if err != nil {
		return nil, err
	}

	guess := resp.DetectedLanguage
	if guess == "" {
		guess = resp.Language
	}
	if guess == "" {
		return nil, newError(l.Name(), ErrMalformed, fmt.Errorf("no language in response"))
	}
	return &Detection{
		Language:   guess,
		Confidence: resp.DetectedLanguageProbability,
		Detector:   l.Name(),
		Text:       resp.Text,
	}, nil
}

// infer sends the audio as a multipart upload to the inference endpoint.
func (l *LocalWhisper) infer(ctx context.Context, src *audio.Source, fields map[string]string) (*whisperResponse, error) {
	data, err := src.Bytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("local: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", src.Filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err = fw.Write(data); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	_ = mw.WriteField("response_format", "verbose_json")
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if err = mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.BaseURL+l.cfg.InferencePath, &body)
	if err != nil {
		return nil, newError(l.Name(), ErrUnconfigured, err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(l.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(l.Name(), fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(l.Name(), resp.StatusCode, respBody)
	}

	var out whisperResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, newError(l.Name(), ErrMalformed, fmt.Errorf("parse response: %w", err))
	}
	return &out, nil
}
