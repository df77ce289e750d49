package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nikhilbhutani/sttgateway/internal/audio"
	"github.com/nikhilbhutani/sttgateway/internal/metrics"
)

type mockProvider struct {
	name    string
	result  *Result
	err     error
	delay   time.Duration
	calls   int
	locales []string
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Transcribe(ctx context.Context, _ *audio.Source, locale string) (*Result, error) {
	m.calls++
	m.locales = append(m.locales, locale)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	res := *m.result
	return &res, nil
}

type mockDetector struct {
	guess string
	err   error
	calls int
}

func (m *mockDetector) Name() string { return "mock-detector" }

func (m *mockDetector) DetectLanguage(context.Context, *audio.Source) (*Detection, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &Detection{Language: m.guess, Confidence: 0.9}, nil
}

func testChain(det Detector, providers ...*mockProvider) *Chain {
	entries := make([]Entry, len(providers))
	for i, p := range providers {
		entries[i] = Entry{Provider: p, Timeout: time.Second}
	}
	opts := []ChainOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(metrics.NewMetrics(nil)),
	}
	if det != nil {
		opts = append(opts, WithDetector(det, 100*time.Millisecond))
	}
	return NewChain(entries, opts...)
}

func testSource() *audio.Source {
	return audio.FromBytes([]byte("audio"), "audio/wav")
}

func TestChain_FallsBackAfterUnreachable(t *testing.T) {
	det := &mockDetector{guess: "en"}
	first := &mockProvider{name: "primary", err: newError("primary", ErrUnreachable, errors.New("connection refused"))}
	second := &mockProvider{name: "secondary", result: &Result{Text: "hello world"}}
	third := &mockProvider{name: "tertiary", result: &Result{Text: "unused"}}

	out, err := testChain(det, first, second, third).Run(context.Background(), Request{Source: testSource()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Result.Text != "hello world" || out.Result.Provider != "secondary" {
		t.Fatalf("result = %+v", out.Result)
	}
	if det.calls != 1 {
		t.Fatalf("detector calls = %d, want 1", det.calls)
	}
	if first.calls+second.calls+third.calls != 2 {
		t.Fatalf("provider calls = %d/%d/%d, want exactly 2 in total", first.calls, second.calls, third.calls)
	}
	if third.calls != 0 {
		t.Fatal("provider called after a success")
	}
	if len(out.Attempts) != 2 || out.Attempts[0].Err == nil || out.Attempts[1].Err != nil {
		t.Fatalf("attempts = %+v", out.Attempts)
	}
}

func TestChain_AllFailed(t *testing.T) {
	providers := []*mockProvider{
		{name: "openai", err: newError("openai", ErrRateLimited, errors.New("status 429"))},
		{name: "deepgram", err: newError("deepgram", ErrUnconfigured, errors.New("DEEPGRAM_API_KEY is not set"))},
		{name: "google", err: errors.New("stream reset")},
	}
	det := &mockDetector{guess: "af"}

	out, err := testChain(det, providers...).Run(context.Background(), Request{Source: testSource()})

	var allFailed *AllFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("expected AllFailedError, got %v", err)
	}
	if out.Result != nil {
		t.Fatal("result must be nil when every provider failed")
	}
	if len(allFailed.Attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(allFailed.Attempts))
	}
	details := allFailed.Details()
	for _, name := range []string{"openai", "deepgram", "google"} {
		if !strings.Contains(details, name) {
			t.Errorf("details %q missing %s", details, name)
		}
	}
	if allFailed.Detection == nil || allFailed.Detection.Language != "af" {
		t.Fatalf("detection not attached: %+v", allFailed.Detection)
	}
	if !errors.Is(err, ErrRateLimited) || !errors.Is(err, ErrUnconfigured) || !errors.Is(err, ErrUnreachable) {
		t.Fatalf("aggregate error should expose every failure kind: %v", err)
	}
	for _, p := range providers {
		if p.calls != 1 {
			t.Fatalf("%s called %d times, want 1", p.name, p.calls)
		}
	}
}

func TestChain_EmptyTranscriptIsSuccess(t *testing.T) {
	silent := &mockProvider{name: "primary", result: &Result{Text: ""}}
	next := &mockProvider{name: "secondary", result: &Result{Text: "should not run"}}

	out, err := testChain(nil, silent, next).Run(context.Background(), Request{Source: testSource()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Result.Text != "" || out.Result.Provider != "primary" {
		t.Fatalf("result = %+v", out.Result)
	}
	if next.calls != 0 {
		t.Fatal("empty transcript must end the chain")
	}
}

func TestChain_TimeoutAdvances(t *testing.T) {
	slow := &mockProvider{name: "slow", delay: time.Minute, result: &Result{Text: "late"}}
	fast := &mockProvider{name: "fast", result: &Result{Text: "ok"}}

	c := testChain(nil, slow, fast)
	c.entries[0].Timeout = 20 * time.Millisecond

	start := time.Now()
	out, err := c.Run(context.Background(), Request{Source: testSource()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("hung provider blocked the chain")
	}
	if out.Result.Provider != "fast" {
		t.Fatalf("provider = %s", out.Result.Provider)
	}
	if !errors.Is(out.Attempts[0].Err, ErrUnreachable) {
		t.Fatalf("timeout should be classified unreachable, got %v", out.Attempts[0].Err)
	}
}

func TestChain_DetectorFailureIsNonFatal(t *testing.T) {
	det := &mockDetector{err: errors.New("detector down")}
	p := &mockProvider{name: "primary", result: &Result{Text: "hi"}}

	out, err := testChain(det, p).Run(context.Background(), Request{
		Source:         testSource(),
		Candidates:     []string{"zu-ZA"},
		FallbackLocale: "en-US",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Detection != nil {
		t.Fatalf("detection = %+v, want nil", out.Detection)
	}
	if out.Locale != "zu-ZA" || p.locales[0] != "zu-ZA" {
		t.Fatalf("locale = %q, provider saw %v", out.Locale, p.locales)
	}
}

func TestChain_NormalizesDetectorGuessAgainstCandidates(t *testing.T) {
	det := &mockDetector{guess: "af"}
	p := &mockProvider{name: "primary", result: &Result{Text: "goeie more"}}

	out, err := testChain(det, p).Run(context.Background(), Request{
		Source:     testSource(),
		Candidates: []string{"af-ZA", "en-ZA"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Locale != "af-ZA" || p.locales[0] != "af-ZA" {
		t.Fatalf("locale = %q, provider saw %v", out.Locale, p.locales)
	}
	if out.Result.Language != "af-ZA" {
		t.Fatalf("result language = %q", out.Result.Language)
	}
}

func TestChain_SourceErrorAborts(t *testing.T) {
	first := &mockProvider{name: "primary", err: fmt.Errorf("primary: %w", audio.ErrSourceUnresolvable)}
	second := &mockProvider{name: "secondary", result: &Result{Text: "x"}}

	_, err := testChain(nil, first, second).Run(context.Background(), Request{Source: testSource()})
	if !errors.Is(err, audio.ErrSourceUnresolvable) {
		t.Fatalf("expected source error, got %v", err)
	}
	var allFailed *AllFailedError
	if errors.As(err, &allFailed) {
		t.Fatal("source errors must not be reported as provider exhaustion")
	}
	if second.calls != 0 {
		t.Fatal("chain continued after the source failed")
	}
}

func TestChain_NoProviders(t *testing.T) {
	_, err := testChain(nil).Run(context.Background(), Request{Source: testSource()})
	var allFailed *AllFailedError
	if !errors.As(err, &allFailed) || allFailed.Details() != "no providers configured" {
		t.Fatalf("got %v", err)
	}
}

func TestChain_ExactlyOneOutcome(t *testing.T) {
	outcomes := [][]error{
		{nil},
		{ErrUnreachable, nil},
		{ErrMalformed, ErrRateLimited, nil},
		{ErrUnreachable, ErrUnreachable, ErrUnreachable},
	}
	for i, errs := range outcomes {
		providers := make([]*mockProvider, len(errs))
		for j, kind := range errs {
			name := fmt.Sprintf("p%d", j)
			providers[j] = &mockProvider{name: name, result: &Result{Text: "t"}}
			if kind != nil {
				providers[j].err = newError(name, kind, nil)
			}
		}
		out, err := testChain(nil, providers...).Run(context.Background(), Request{Source: testSource()})
		if (out.Result == nil) == (err == nil) {
			t.Fatalf("case %d: result=%v err=%v, want exactly one", i, out.Result, err)
		}
	}
}
