package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nikhilbhutani/sttgateway/internal/audio"
	"github.com/nikhilbhutani/sttgateway/internal/quota"
	"github.com/nikhilbhutani/sttgateway/internal/stt"
	"github.com/nikhilbhutani/sttgateway/internal/tenant"
	"github.com/nikhilbhutani/sttgateway/internal/transcribe"
)

// Transcriber is the pipeline behind the transcribe endpoint.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Response, error)
}

type TranscribeHandler struct {
	svc      Transcriber
	maxBytes int64
	logger   *slog.Logger
}

// NewTranscribeHandler limits request bodies relative to maxAudioBytes, the
// largest decoded audio the gateway accepts.
func NewTranscribeHandler(svc Transcriber, maxAudioBytes int64, logger *slog.Logger) *TranscribeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscribeHandler{svc: svc, maxBytes: maxAudioBytes, logger: logger}
}

type transcribeRequest struct {
	AudioRef           audio.Ref `json:"audioRef"`
	LanguageHint       string    `json:"languageHint,omitempty"`
	CandidateLanguages []string  `json:"candidateLanguages,omitempty"`
}

type transcribeResponse struct {
	Text       string   `json:"text"`
	Language   string   `json:"language"`
	Confidence *float64 `json:"confidence,omitempty"`
	Provider   string   `json:"provider"`
}

type quotaExceededResponse struct {
	Error             string  `json:"error"`
	Reason            string  `json:"reason"`
	Tier              string  `json:"tier"`
	QuotaRemaining    float64 `json:"quotaRemaining"`
	FallbackAvailable bool    `json:"fallbackAvailable"`
}

type allFailedResponse struct {
	Error            string `json:"error"`
	Details          string `json:"details"`
	DetectedLanguage string `json:"detectedLanguage,omitempty"`
	FallbackText     string `json:"fallbackText,omitempty"` // the detector's raw transcript, if it produced one
}

// Transcribe accepts a JSON audio reference or a multipart upload.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	p, ok := tenant.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var (
		req transcribe.Request
		err error
	)
	if isMultipart(r) {
		req, err = h.parseMultipart(w, r)
	} else {
		req, err = h.parseJSON(w, r)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, audio.ErrPayloadTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Principal = p

	resp, err := h.svc.Transcribe(r.Context(), req)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	w.Header().Set("X-STT-Latency-Ms", strconv.FormatInt(resp.Latency.Milliseconds(), 10))
	w.Header().Set("X-STT-Cost-Estimate", strconv.FormatFloat(resp.CostEstimate, 'f', 6, 64))
	setQuotaHeaders(w, resp.Quota)
	writeJSON(w, http.StatusOK, transcribeResponse{
		Text:       resp.Result.Text,
		Language:   resp.Result.Language,
		Confidence: resp.Result.Confidence,
		Provider:   resp.Result.Provider,
	})
}

func (h *TranscribeHandler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var (
		quotaErr  *transcribe.QuotaExceededError
		allFailed *stt.AllFailedError
	)
	switch {
	case errors.Is(err, transcribe.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, transcribe.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, audio.ErrPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "audio payload too large")
	case errors.Is(err, audio.ErrSourceUnresolvable):
		writeError(w, http.StatusUnprocessableEntity, "audio source could not be resolved")
	case errors.As(err, &quotaErr):
		setQuotaHeaders(w, quotaErr.Status)
		writeJSON(w, http.StatusTooManyRequests, quotaExceededResponse{
			Error:             "Usage limit exceeded",
			Reason:            quotaErr.Status.Reason,
			Tier:              quotaErr.Status.Tier,
			QuotaRemaining:    quotaErr.Status.QuotaRemaining,
			FallbackAvailable: true,
		})
	case errors.As(err, &allFailed):
		body := allFailedResponse{Error: "All STT providers failed", Details: allFailed.Details()}
		if allFailed.Detection != nil {
			body.DetectedLanguage = allFailed.Detection.Language
			body.FallbackText = allFailed.Detection.Text
		}
		writeJSON(w, http.StatusInternalServerError, body)
	default:
		h.logger.Error("transcription failed", "request_path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func setQuotaHeaders(w http.ResponseWriter, s quota.Status) {
	w.Header().Set("X-Quota-Tier", s.Tier)
	w.Header().Set("X-Quota-Remaining", strconv.FormatFloat(s.QuotaRemaining, 'f', -1, 64))
}

func (h *TranscribeHandler) parseJSON(w http.ResponseWriter, r *http.Request) (transcribe.Request, error) {
	// Inline audio arrives base64 encoded.
	limit := h.maxBytes*4/3 + 64<<10
	if h.maxBytes <= 0 {
		limit = 64 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var body transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return transcribe.Request{}, err
		}
		return transcribe.Request{}, errors.New("invalid request body")
	}
	return transcribe.Request{
		Audio:              body.AudioRef,
		LanguageHint:       body.LanguageHint,
		CandidateLanguages: body.CandidateLanguages,
	}, nil
}

func (h *TranscribeHandler) parseMultipart(w http.ResponseWriter, r *http.Request) (transcribe.Request, error) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return transcribe.Request{}, err
		}
		return transcribe.Request{}, errors.New("invalid multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return transcribe.Request{}, errors.New("file field required")
	}
	defer file.Close()

	reader := io.Reader(file)
	if h.maxBytes > 0 {
		reader = io.LimitReader(file, h.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return transcribe.Request{}, errors.New("failed to read file")
	}
	if h.maxBytes > 0 && int64(len(data)) > h.maxBytes {
		return transcribe.Request{}, audio.ErrPayloadTooLarge
	}

	format := strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	if format == "" {
		format = header.Header.Get("Content-Type")
	}

	return transcribe.Request{
		Audio:              audio.Ref{Raw: data, Format: format},
		LanguageHint:       r.FormValue("language"),
		CandidateLanguages: splitList(r.MultipartForm.Value["candidateLanguages"]),
	}, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// splitList accepts both repeated fields and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
