package audio

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nikhilbhutani/sttgateway/internal/storage"
)

// Ref is the caller's reference to recorded audio. Exactly one of Path, URL,
// Data or Raw must be set.
type Ref struct {
	Path   string `json:"path,omitempty"`   // object path in storage
	URL    string `json:"url,omitempty"`    // external http(s) URL
	Data   string `json:"data,omitempty"`   // base64, optionally a data: URI
	Format string `json:"format,omitempty"` // declared format for Data/Raw

	Raw []byte `json:"-"` // multipart upload
}

// Validate checks that exactly one source is populated.
func (r Ref) Validate() error {
	n := 0
	for _, set := range []bool{r.Path != "", r.URL != "", r.Data != "", len(r.Raw) > 0} {
		if set {
			n++
		}
	}
	switch {
	case n == 0:
		return ErrNoSource
	case n > 1:
		return ErrAmbiguousSource
	}
	return nil
}

// BucketRule routes storage paths containing Contains to Bucket.
type BucketRule struct {
	Contains string
	Bucket   string
}

// DefaultBucketRules holds the known path conventions of the mobile clients.
var DefaultBucketRules = []BucketRule{
	{Contains: "homework-submissions", Bucket: "homework-submissions"},
}

type ResolverConfig struct {
	DefaultBucket string
	Rules         []BucketRule
	SignedURLTTL  time.Duration
	FetchTimeout  time.Duration
	MaxBytes      int64
}

type Resolver struct {
	store      storage.Storage
	cfg        ResolverConfig
	httpClient *http.Client
}

func NewResolver(store storage.Storage, cfg ResolverConfig) *Resolver {
	if cfg.Rules == nil {
		cfg.Rules = DefaultBucketRules
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = time.Hour
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	return &Resolver{
		store:      store,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// Resolve turns a Ref into a Source. Every failure here happens before any
// provider is called.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (*Source, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	switch {
	case ref.Path != "":
		return r.resolvePath(ctx, ref.Path)
	case ref.URL != "":
		return r.resolveURL(ref.URL)
	case ref.Data != "":
		data, err := r.decode(ref.Data)
		if err != nil {
			return nil, err
		}
		return r.fromBytes(data, ref.Format)
	default:
		return r.fromBytes(ref.Raw, ref.Format)
	}
}

// Bucket infers the storage container for a path and strips a leading
// container segment from the object key.
func (r *Resolver) Bucket(path string) (bucket, key string) {
	key = strings.TrimLeft(path, "/")
	bucket = r.cfg.DefaultBucket
	for _, rule := range r.cfg.Rules {
		if strings.Contains(key, rule.Contains) {
			bucket = rule.Bucket
			break
		}
	}
	key = strings.TrimPrefix(key, bucket+"/")
	return bucket, key
}

func (r *Resolver) resolvePath(ctx context.Context, path string) (*Source, error) {
	if r.store == nil {
		return nil, fmt.Errorf("%w: storage is not configured", ErrSourceUnresolvable)
	}
	bucket, key := r.Bucket(path)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	signed, err := r.store.SignedURL(ctx, bucket, key, r.cfg.SignedURLTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnresolvable, err)
	}
	return FromURL(signed, mimeFromPath(key), r.cfg.MaxBytes, r.httpClient), nil
}

func (r *Resolver) resolveURL(raw string) (*Source, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: unsupported audio URL", ErrSourceUnresolvable)
	}
	return FromURL(raw, mimeFromPath(raw), r.cfg.MaxBytes, r.httpClient), nil
}

func (r *Resolver) decode(data string) ([]byte, error) {
	// data:audio/webm;base64,AAAA
	if strings.HasPrefix(data, "data:") {
		if i := strings.Index(data, ","); i >= 0 {
			data = data[i+1:]
		}
	}
	data = strings.TrimSpace(data)

	if r.cfg.MaxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(data))) > r.cfg.MaxBytes+3 {
		return nil, fmt.Errorf("%w: inline audio exceeds %d bytes", ErrPayloadTooLarge, r.cfg.MaxBytes)
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(data); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: audio data is not valid base64", ErrSourceUnresolvable)
}

func (r *Resolver) fromBytes(data []byte, format string) (*Source, error) {
	if len(data) == 0 {
		return nil, ErrNoSource
	}
	if r.cfg.MaxBytes > 0 && int64(len(data)) > r.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: audio exceeds %d bytes", ErrPayloadTooLarge, r.cfg.MaxBytes)
	}

	mimeType := MimeForFormat(format)
	if mimeType == "" {
		mimeType = sniff(data)
	}
	return FromBytes(data, mimeType), nil
}
