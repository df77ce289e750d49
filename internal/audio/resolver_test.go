package audio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nikhilbhutani/sttgateway/internal/storage"
)

type fakeStorage struct {
	objects map[string]bool
	calls   []string
}

func (f *fakeStorage) SignedURL(_ context.Context, bucket, path string, expiry time.Duration) (string, error) {
	f.calls = append(f.calls, bucket+"/"+path)
	if !f.objects[bucket+"/"+path] {
		return "", fmt.Errorf("%w: %s/%s", storage.ErrObjectNotFound, bucket, path)
	}
	return fmt.Sprintf("https://cdn.example.com/%s/%s?exp=%d", bucket, path, int(expiry.Seconds())), nil
}

func newResolver(store storage.Storage) *Resolver {
	return NewResolver(store, ResolverConfig{DefaultBucket: "recordings", MaxBytes: 64})
}

func TestRefValidate(t *testing.T) {
	tests := []struct {
		name string
		ref  Ref
		want error
	}{
		{"none", Ref{}, ErrNoSource},
		{"format only", Ref{Format: "wav"}, ErrNoSource},
		{"path", Ref{Path: "a.wav"}, nil},
		{"raw", Ref{Raw: []byte{1}}, nil},
		{"path and url", Ref{Path: "a.wav", URL: "https://x/a.wav"}, ErrAmbiguousSource},
		{"data and raw", Ref{Data: "AA==", Raw: []byte{1}}, ErrAmbiguousSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.ref.Validate(); !errors.Is(err, tt.want) && err != tt.want {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBucketInference(t *testing.T) {
	r := newResolver(nil)
	tests := []struct {
		path, bucket, key string
	}{
		{"homework-submissions/u1/clip.webm", "homework-submissions", "u1/clip.webm"},
		{"/org/homework-submissions/clip.webm", "homework-submissions", "org/homework-submissions/clip.webm"},
		{"u1/voice-notes/clip.m4a", "recordings", "u1/voice-notes/clip.m4a"},
		{"recordings/u1/clip.m4a", "recordings", "u1/clip.m4a"},
	}
	for _, tt := range tests {
		bucket, key := r.Bucket(tt.path)
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("Bucket(%q) = (%q, %q), want (%q, %q)", tt.path, bucket, key, tt.bucket, tt.key)
		}
	}
}

func TestResolve_StoragePath(t *testing.T) {
	store := &fakeStorage{objects: map[string]bool{"homework-submissions/u1/clip.webm": true}}
	r := newResolver(store)

	src, err := r.Resolve(context.Background(), Ref{Path: "homework-submissions/u1/clip.webm"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.HasPrefix(src.URL, "https://cdn.example.com/homework-submissions/u1/clip.webm") {
		t.Fatalf("unexpected signed URL %q", src.URL)
	}
	if !strings.Contains(src.URL, "exp=3600") {
		t.Fatalf("expected one hour expiry, got %q", src.URL)
	}
	if src.MimeType != "audio/webm" {
		t.Fatalf("mime = %q", src.MimeType)
	}
	if !src.Remote() {
		t.Fatal("storage source should be remote until fetched")
	}
}

func TestResolve_MissingObjectIsUnresolvable(t *testing.T) {
	store := &fakeStorage{objects: map[string]bool{}}
	r := newResolver(store)

	_, err := r.Resolve(context.Background(), Ref{Path: "u1/nope.wav"})
	if !errors.Is(err, ErrSourceUnresolvable) {
		t.Fatalf("expected ErrSourceUnresolvable, got %v", err)
	}
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("expected wrapped ErrObjectNotFound, got %v", err)
	}
}

func TestResolve_PathWithoutStorage(t *testing.T) {
	_, err := newResolver(nil).Resolve(context.Background(), Ref{Path: "a.wav"})
	if !errors.Is(err, ErrSourceUnresolvable) {
		t.Fatalf("expected ErrSourceUnresolvable, got %v", err)
	}
}

func TestResolve_ExternalURLPassesThrough(t *testing.T) {
	raw := "https://media.example.com/a/b/clip.ogg?sig=1"
	src, err := newResolver(nil).Resolve(context.Background(), Ref{URL: raw})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if src.URL != raw {
		t.Fatalf("URL = %q, want unchanged %q", src.URL, raw)
	}
	if src.MimeType != "audio/ogg" {
		t.Fatalf("mime = %q", src.MimeType)
	}

	if _, err := newResolver(nil).Resolve(context.Background(), Ref{URL: "ftp://x/y.wav"}); !errors.Is(err, ErrSourceUnresolvable) {
		t.Fatalf("expected ErrSourceUnresolvable for ftp URL, got %v", err)
	}
}

func TestResolve_InlineBase64(t *testing.T) {
	payload := []byte("fake-audio-bytes")
	r := newResolver(nil)

	tests := []struct {
		name     string
		ref      Ref
		wantMime string
	}{
		{"declared format", Ref{Data: base64.StdEncoding.EncodeToString(payload), Format: "m4a"}, "audio/mp4"},
		{"declared mime", Ref{Data: base64.StdEncoding.EncodeToString(payload), Format: "audio/wav; codecs=1"}, "audio/wav"},
		{"data uri", Ref{Data: "data:audio/webm;base64," + base64.StdEncoding.EncodeToString(payload), Format: "webm"}, "audio/webm"},
		{"raw url alphabet", Ref{Data: base64.RawURLEncoding.EncodeToString(payload)}, DefaultMimeType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := r.Resolve(context.Background(), tt.ref)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			got, err := src.Bytes(context.Background())
			if err != nil {
				t.Fatalf("Bytes: %v", err)
			}
			if string(got) != string(payload) {
				t.Fatalf("bytes = %q", got)
			}
			if src.MimeType != tt.wantMime {
				t.Fatalf("mime = %q, want %q", src.MimeType, tt.wantMime)
			}
			if src.Remote() {
				t.Fatal("inline source must not be remote")
			}
		})
	}
}

func TestResolve_InlineErrors(t *testing.T) {
	r := newResolver(nil)

	if _, err := r.Resolve(context.Background(), Ref{Data: "%%%not base64%%%"}); !errors.Is(err, ErrSourceUnresolvable) {
		t.Fatalf("expected ErrSourceUnresolvable, got %v", err)
	}

	big := base64.StdEncoding.EncodeToString(make([]byte, 200))
	if _, err := r.Resolve(context.Background(), Ref{Data: big}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}

	if _, err := r.Resolve(context.Background(), Ref{Raw: make([]byte, 65)}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge for raw upload, got %v", err)
	}
}

func TestSourceBytes_FetchesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("remote-audio"))
	}))
	defer srv.Close()

	src := FromURL(srv.URL+"/clip.wav", "", 64, srv.Client())
	for i := 0; i < 3; i++ {
		b, err := src.Bytes(context.Background())
		if err != nil {
			t.Fatalf("Bytes: %v", err)
		}
		if string(b) != "remote-audio" {
			t.Fatalf("bytes = %q", b)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("fetched %d times, want 1", n)
	}
	if src.MimeType != "audio/wav" {
		t.Fatalf("mime = %q", src.MimeType)
	}
}

func TestSourceBytes_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	_, err := FromURL(srv.URL+"/missing", "", 64, srv.Client()).Bytes(context.Background())
	if !errors.Is(err, ErrSourceUnresolvable) {
		t.Fatalf("expected ErrSourceUnresolvable, got %v", err)
	}

	_, err = FromURL(srv.URL+"/big", "", 64, srv.Client()).Bytes(context.Background())
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestMimeForFormat(t *testing.T) {
	tests := map[string]string{
		"WAV":         "audio/wav",
		".mp3":        "audio/mpeg",
		"audio/x-wav": "audio/wav",
		"opus":        "audio/ogg",
		"txt":         "",
		"":            "",
	}
	for in, want := range tests {
		if got := MimeForFormat(in); got != want {
			t.Errorf("MimeForFormat(%q) = %q, want %q", in, got, want)
		}
	}
}
