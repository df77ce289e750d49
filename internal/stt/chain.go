package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/sttgateway/internal/audio"
	"github.com/nikhilbhutani/sttgateway/internal/language"
	"github.com/nikhilbhutani/sttgateway/internal/metrics"
)

// Entry is a provider in a chain together with its per-call timeout.
type Entry struct {
	Provider Provider
	Timeout  time.Duration
}

// Request is the input to one chain run.
type Request struct {
	Source         *audio.Source
	Candidates     []string // caller-supplied locales, in preference order
	FallbackLocale string
}

// Outcome describes a chain run. Result is nil when every provider failed.
type Outcome struct {
	Result    *Result
	Locale    string
	Detection *Detection
	Attempts  []Attempt
}

// Chain detects the spoken language once, then tries providers strictly in
// order until one returns a result. A provider is never called twice in a
// run, and nothing is called after the first success.
type Chain struct {
	entries       []Entry
	detector      Detector
	detectTimeout time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

type ChainOption func(*Chain)

// WithDetector sets the language detector and its timeout.
func WithDetector(d Detector, timeout time.Duration) ChainOption {
	return func(c *Chain) {
		c.detector = d
		c.detectTimeout = timeout
	}
}

func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) ChainOption {
	return func(c *Chain) { c.metrics = m }
}

func NewChain(entries []Entry, opts ...ChainOption) *Chain {
	c := &Chain{
		entries:       entries,
		detectTimeout: 2 * time.Second,
		logger:        slog.Default(),
		metrics:       metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Providers returns the provider names in call order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Provider.Name()
	}
	return names
}

// Detector returns the configured detector name, or "".
func (c *Chain) Detector() string {
	if c.detector == nil {
		return ""
	}
	return c.detector.Name()
}

// Run transcribes req.Source. It returns *AllFailedError when every provider
// failed, and an audio error when the source itself could not be read. In
// both cases the returned Outcome still carries the attempts made.
func (c *Chain) Run(ctx context.Context, req Request) (*Outcome, error) {
	out := &Outcome{}

	out.Detection = c.detect(ctx, req.Source)
	var guess string
	if out.Detection != nil {
		guess = out.Detection.Language
	}
	out.Locale = language.Normalize(guess, req.Candidates, req.FallbackLocale)

	for _, e := range c.entries {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("transcription cancelled: %w", err)
		}

		res, attempt := c.invoke(ctx, e, req.Source, out.Locale)
		if attempt.Err == nil {
			out.Result = res
			out.Attempts = append(out.Attempts, attempt)
			return out, nil
		}

		if isSourceError(attempt.Err) {
			return out, attempt.Err
		}
		out.Attempts = append(out.Attempts, attempt)
		c.logger.Warn("stt provider failed, trying next",
			"provider", attempt.Provider,
			"error", attempt.Err,
			"elapsed_ms", attempt.Elapsed.Milliseconds(),
		)
	}

	return out, &AllFailedError{Attempts: out.Attempts, Detection: out.Detection}
}

func (c *Chain) invoke(ctx context.Context, e Entry, src *audio.Source, locale string) (*Result, Attempt) {
	name := e.Provider.Name()
	callCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := e.Provider.Transcribe(callCtx, src, locale)
	attempt := Attempt{Provider: name, Elapsed: time.Since(start)}
	c.metrics.ProviderLatency.WithLabelValues(name).Observe(attempt.Elapsed.Seconds())

	switch {
	case err == nil && res == nil:
		err = newError(name, ErrMalformed, errors.New("empty result"))
	case err == nil:
		c.metrics.ProviderAttempts.WithLabelValues(name, "success").Inc()
		if res.Provider == "" {
			res.Provider = name
		}
		if res.Language == "" {
			res.Language = locale
		}
		return res, attempt
	}

	switch {
	case callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		// A slow download inside the provider's window counts against the provider.
		err = newError(name, ErrUnreachable, fmt.Errorf("timed out after %s: %v", e.Timeout, err))
	case isSourceError(err):
		attempt.Err = err
		c.metrics.ProviderAttempts.WithLabelValues(name, "source_error").Inc()
		return nil, attempt
	}
	pe := AsProviderError(name, err)
	attempt.Err = pe
	c.metrics.ProviderAttempts.WithLabelValues(name, kindLabel(pe.Kind)).Inc()
	return nil, attempt
}

// detect runs the detector under its own timeout. Failure only costs the
// language guess.
func (c *Chain) detect(ctx context.Context, src *audio.Source) *Detection {
	if c.detector == nil {
		return nil
	}
	name := c.detector.Name()
	detectCtx, cancel := context.WithTimeout(ctx, c.detectTimeout)
	defer cancel()

	det, err := c.detector.DetectLanguage(detectCtx, src)
	if err != nil || det == nil {
		c.metrics.DetectorCalls.WithLabelValues(name, "failure").Inc()
		c.logger.Info("language detection skipped", "detector", name, "error", err)
		return nil
	}
	c.metrics.DetectorCalls.WithLabelValues(name, "success").Inc()
	if det.Detector == "" {
		det.Detector = name
	}
	return det
}

func isSourceError(err error) bool {
	return errors.Is(err, audio.ErrSourceUnresolvable) || errors.Is(err, audio.ErrPayloadTooLarge)
}

func kindLabel(kind error) string {
	switch {
	case errors.Is(kind, ErrUnconfigured):
		return "unconfigured"
	case errors.Is(kind, ErrRateLimited):
		return "rate_limited"
	case errors.Is(kind, ErrMalformed):
		return "malformed"
	default:
		return "unreachable"
	}
}
