package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

var (
	ErrNoSource           = errors.New("audio: no audio source given")
	ErrAmbiguousSource    = errors.New("audio: more than one audio source given")
	ErrSourceUnresolvable = errors.New("audio: source unresolvable")
	ErrPayloadTooLarge    = errors.New("audio: payload too large")
)

// DefaultMimeType is used when neither a declared format nor the content
// identifies the audio.
const DefaultMimeType = "audio/mpeg"

// Source is resolved audio: either bytes held in memory or a URL the audio
// can be fetched from. Providers that accept remote URLs read URL; the rest
// call Bytes, which downloads a URL source at most once.
type Source struct {
	URL      string
	MimeType string
	Filename string

	mu       sync.Mutex
	data     []byte
	loaded   bool
	maxBytes int64
	client   *http.Client
}

// FromBytes wraps in-memory audio.
func FromBytes(data []byte, mimeType string) *Source {
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	return &Source{
		MimeType: mimeType,
		Filename: "audio" + extensionFor(mimeType),
		data:     data,
		loaded:   true,
	}
}

// FromURL wraps a fetchable URL. maxBytes <= 0 disables the download ceiling.
func FromURL(url, mimeType string, maxBytes int64, client *http.Client) *Source {
	if mimeType == "" {
		mimeType = mimeFromPath(url)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Source{
		URL:      url,
		MimeType: mimeType,
		Filename: "audio" + extensionFor(mimeType),
		maxBytes: maxBytes,
		client:   client,
	}
}

// Remote reports whether the audio still lives behind a URL.
func (s *Source) Remote() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.loaded
}

// Bytes returns the audio payload, downloading it on first use.
func (s *Source) Bytes(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.data, nil
	}

	data, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.data = data
	s.loaded = true
	if s.MimeType == DefaultMimeType {
		if sniffed := sniff(data); sniffed != "" {
			s.MimeType = sniffed
			s.Filename = "audio" + extensionFor(sniffed)
		}
	}
	return data, nil
}

func (s *Source) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnresolvable, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch audio: %w", ErrSourceUnresolvable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: fetch audio: status %d", ErrSourceUnresolvable, resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if s.maxBytes > 0 {
		body = io.LimitReader(resp.Body, s.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read audio: %w", ErrSourceUnresolvable, err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: remote audio exceeds %d bytes", ErrPayloadTooLarge, s.maxBytes)
	}
	return data, nil
}
