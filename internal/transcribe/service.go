package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/sttgateway/internal/audio"
	"github.com/nikhilbhutani/sttgateway/internal/metrics"
	"github.com/nikhilbhutani/sttgateway/internal/models"
	"github.com/nikhilbhutani/sttgateway/internal/quota"
	"github.com/nikhilbhutani/sttgateway/internal/stt"
	"github.com/nikhilbhutani/sttgateway/internal/tenant"
	"github.com/nikhilbhutani/sttgateway/internal/usage"
)

// Request is one transcription request from an authenticated caller.
type Request struct {
	Principal          tenant.Principal
	Audio              audio.Ref
	LanguageHint       string
	CandidateLanguages []string
}

// Response is a successful transcription plus the bookkeeping reported in
// response headers.
type Response struct {
	Result       *stt.Result
	Locale       string
	Quota        quota.Status
	Latency      time.Duration
	Units        float64
	CostEstimate float64
}

type Resolver interface {
	Resolve(ctx context.Context, ref audio.Ref) (*audio.Source, error)
}

type QuotaChecker interface {
	Check(ctx context.Context, userID, tenantID uuid.UUID, service string, estimatedUnits float64) quota.Status
	DefaultEstimate() float64
}

type Transcriber interface {
	Run(ctx context.Context, req stt.Request) (*stt.Outcome, error)
}

// UsageSink accepts records without blocking the caller.
type UsageSink interface {
	Dispatch(ctx context.Context, rec models.UsageRecord)
}

type Config struct {
	FallbackLocale string
	Prices         *usage.Prices // nil uses the built-in list
}

// Service runs the transcription pipeline: resolve audio, check quota,
// detect and normalize the language, walk the provider chain, record usage.
type Service struct {
	resolver Resolver
	quota    QuotaChecker
	chain    Transcriber
	usage    UsageSink
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewService(resolver Resolver, q QuotaChecker, chain Transcriber, sink UsageSink, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	if cfg.Prices == nil {
		cfg.Prices = usage.DefaultPrices
	}
	return &Service{
		resolver: resolver,
		quota:    q,
		chain:    chain,
		usage:    sink,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
}

// Transcribe returns either a result or an error, never both. Errors are
// ErrUnauthorized, ErrBadRequest, audio.ErrPayloadTooLarge,
// audio.ErrSourceUnresolvable, *QuotaExceededError or *stt.AllFailedError;
// anything else is internal.
func (s *Service) Transcribe(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	p := req.Principal
	if p.UserID == uuid.Nil || p.TenantID == uuid.Nil {
		return nil, ErrUnauthorized
	}

	if err := req.Audio.Validate(); err != nil {
		s.metrics.Transcriptions.WithLabelValues("bad_request").Inc()
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	src, err := s.resolver.Resolve(ctx, req.Audio)
	if err != nil {
		s.metrics.Transcriptions.WithLabelValues("source_error").Inc()
		return nil, err
	}

	estimate := s.quota.DefaultEstimate()
	status := s.quota.Check(ctx, p.UserID, p.TenantID, models.ServiceSTT, estimate)
	if !status.Allowed {
		s.metrics.Transcriptions.WithLabelValues("quota_exceeded").Inc()
		s.logger.Info("stt quota exceeded",
			"user_id", p.UserID, "tenant_id", p.TenantID, "tier", status.Tier, "reason", status.Reason)
		return nil, &QuotaExceededError{Status: status}
	}

	candidates := req.CandidateLanguages
	if req.LanguageHint != "" {
		candidates = append([]string{req.LanguageHint}, candidates...)
	}

	outcome, err := s.chain.Run(ctx, stt.Request{
		Source:         src,
		Candidates:     candidates,
		FallbackLocale: s.cfg.FallbackLocale,
	})
	latency := time.Since(start)

	if err != nil {
		var allFailed *stt.AllFailedError
		switch {
		case errors.As(err, &allFailed):
			s.metrics.Transcriptions.WithLabelValues("all_failed").Inc()
			s.usage.Dispatch(ctx, s.cfg.Prices.NewRecord(p.UserID, p.TenantID, models.ServiceSTT,
				lastProvider(outcome), outcomeLocale(outcome), 0, 0, latency, false))
			s.logger.Error("all stt providers failed",
				"tenant_id", p.TenantID, "details", allFailed.Details())
			return nil, allFailed
		case errors.Is(err, audio.ErrSourceUnresolvable), errors.Is(err, audio.ErrPayloadTooLarge):
			s.metrics.Transcriptions.WithLabelValues("source_error").Inc()
			return nil, err
		default:
			s.metrics.Transcriptions.WithLabelValues("error").Inc()
			if outcome != nil && len(outcome.Attempts) > 0 {
				s.usage.Dispatch(ctx, s.cfg.Prices.NewRecord(p.UserID, p.TenantID, models.ServiceSTT,
					lastProvider(outcome), outcomeLocale(outcome), 0, 0, latency, false))
			}
			return nil, fmt.Errorf("run provider chain: %w", err)
		}
	}

	res := outcome.Result
	units := estimate
	if res.Duration > 0 {
		units = res.Duration / 60
	}
	rec := s.cfg.Prices.NewRecord(p.UserID, p.TenantID, models.ServiceSTT,
		res.Provider, res.Language, units, utf8.RuneCountInString(res.Text), latency, true)
	s.usage.Dispatch(ctx, rec)

	s.metrics.Transcriptions.WithLabelValues("success").Inc()
	s.metrics.AudioMinutes.WithLabelValues(res.Provider).Add(units)

	return &Response{
		Result:       res,
		Locale:       outcome.Locale,
		Quota:        status,
		Latency:      latency,
		Units:        units,
		CostEstimate: rec.CostEstimate,
	}, nil
}

func lastProvider(o *stt.Outcome) string {
	if o == nil || len(o.Attempts) == 0 {
		return "none"
	}
	return o.Attempts[len(o.Attempts)-1].Provider
}

func outcomeLocale(o *stt.Outcome) string {
	if o == nil {
		return ""
	}
	return o.Locale
}
