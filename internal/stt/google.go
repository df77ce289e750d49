package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nikhilbhutani/sttgateway/internal/audio"
	"github.com/nikhilbhutani/sttgateway/internal/language"
)

// GoogleConfig holds configuration for Google Cloud Speech-to-Text.
type GoogleConfig struct {
	// CredentialsFile points at a service account key. Empty uses
	// GOOGLE_APPLICATION_CREDENTIALS / application default credentials.
	CredentialsFile string
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// GoogleProvider uses the synchronous Recognize RPC.
type GoogleProvider struct {
	client    *speech.Client
	recognize recognizeFunc
	initErr   error
}

// NewGoogleProvider dials the Speech API. A dial failure is kept and
// reported as ErrUnconfigured on every call so the chain can move on.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) *GoogleProvider {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return &GoogleProvider{initErr: fmt.Errorf("create speech client: %w", err)}
	}
	return &GoogleProvider{
		client: c,
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return c.Recognize(ctx, req)
		},
	}
}

func (g *GoogleProvider) Name() string { return "google" }

func (g *GoogleProvider) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GoogleProvider) Transcribe(ctx context.Context, src *audio.Source, locale string) (*Result, error) {
	if g.recognize == nil {
		if g.initErr != nil {
			return nil, newError(g.Name(), ErrUnconfigured, g.initErr)
		}
		return nil, unconfigured(g.Name(), "speech client is not initialised")
	}
	if locale == "" {
		locale = language.DefaultLocale
	}
	code := language.ForProvider(g.Name(), locale).Code

	recAudio, err := g.audioFor(ctx, src)
	if err != nil {
		return nil, err
	}
	cfg := &speechpb.RecognitionConfig{
		LanguageCode:               code,
		EnableAutomaticPunctuation: true,
	}
	cfg.Encoding, cfg.SampleRateHertz = googleEncoding(src.MimeType)

	resp, err := g.recognize(ctx, &speechpb.RecognizeRequest{Config: cfg, Audio: recAudio})
	if err != nil {
		return nil, g.classify(err)
	}

	res := &Result{
		Language: code,
		Provider: g.Name(),
		Duration: resp.GetTotalBilledTime().AsDuration().Seconds(),
	}
	var parts []string
	for i, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		if i == 0 {
			res.Confidence = confidence(float64(alts[0].GetConfidence()))
			if lc, ok := language.Canonicalize(r.GetLanguageCode()); ok {
				res.Language = lc
			}
		}
	}
	res.Text = strings.Join(parts, " ")
	return res, nil
}

// audioFor passes gs:// objects by reference; anything else is sent inline.
func (g *GoogleProvider) audioFor(ctx context.Context, src *audio.Source) (*speechpb.RecognitionAudio, error) {
	if src.Remote() && strings.HasPrefix(src.URL, "gs://") {
		return &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: src.URL},
		}, nil
	}
	data, err := src.Bytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}
	return &speechpb.RecognitionAudio{
		AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
	}, nil
}

func (g *GoogleProvider) classify(err error) *ProviderError {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return newError(g.Name(), ErrRateLimited, err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return newError(g.Name(), ErrMalformed, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return newError(g.Name(), ErrUnconfigured, err)
	default:
		return newError(g.Name(), ErrUnreachable, err)
	}
}

// googleEncoding picks the RecognitionConfig encoding for a MIME type. WAV
// and FLAC carry their parameters in the header.
func googleEncoding(mimeType string) (speechpb.RecognitionConfig_AudioEncoding, int32) {
	switch mimeType {
	case "audio/flac":
		return speechpb.RecognitionConfig_FLAC, 0
	case "audio/ogg":
		return speechpb.RecognitionConfig_OGG_OPUS, 48000
	case "audio/webm":
		return speechpb.RecognitionConfig_WEBM_OPUS, 48000
	case "audio/amr":
		return speechpb.RecognitionConfig_AMR, 8000
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, 0
	}
}
