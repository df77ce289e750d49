package stt

import (
	"context"

	"github.com/nikhilbhutani/sttgateway/internal/audio"
)

// Result is a finished transcription. Text may be empty when the audio held
// only silence.
type Result struct {
	Text       string   `json:"text"`
	Language   string   `json:"language"`
	Confidence *float64 `json:"confidence,omitempty"`
	Provider   string   `json:"provider"`
	Duration   float64  `json:"-"` // seconds, 0 when the provider does not report it
}

// Detection is a language guess from a detector.
type Detection struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence,omitempty"`
	Detector   string  `json:"detector"`
	Text       string  `json:"text,omitempty"`
}

// Provider is a speech-to-text backend. locale is a canonical xx-YY tag or
// empty for auto-detection; each provider maps it onto its own vocabulary.
// Failures are returned as *ProviderError.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, src *audio.Source, locale string) (*Result, error)
}

// Detector makes a cheap language guess ahead of transcription.
type Detector interface {
	Name() string
	DetectLanguage(ctx context.Context, src *audio.Source) (*Detection, error)
}

func confidence(v float64) *float64 {
	return &v
}
