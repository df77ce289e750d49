package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Storage  StorageConfig
	STT      STTConfig
	Quota    QuotaConfig
	Usage    UsageConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	RateLimitRPS   int // requests per second per principal, 0 disables
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string // empty runs the migrations compiled into the binary
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret    string
	APIKeyHeader string
}

type StorageConfig struct {
	Backend      string // "supabase" or "s3"
	SupabaseURL  string
	SupabaseKey  string
	Bucket       string // default container for bare paths
	S3Region     string
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	SignedURLTTL time.Duration
}

// STTConfig configures the provider chain. Providers lists adapter names in
// priority order; each adapter reads only its own block.
type STTConfig struct {
	Providers     []string
	Detector      string // "local", "deepgram" or "none"
	DefaultLocale string
	MaxAudioBytes int64
	FetchTimeout  time.Duration

	OpenAI   OpenAISTTConfig
	Local    LocalSTTConfig
	Deepgram DeepgramSTTConfig
	Azure    AzureSTTConfig
	Google   GoogleSTTConfig
}

type OpenAISTTConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type LocalSTTConfig struct {
	BaseURL       string // default: "http://localhost:8178"
	Timeout       time.Duration
	DetectTimeout time.Duration
}

type DeepgramSTTConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	DetectTimeout time.Duration
}

type AzureSTTConfig struct {
	Key     string
	Region  string
	BaseURL string // overrides the region endpoint, mostly for tests
	Timeout time.Duration
}

type GoogleSTTConfig struct {
	CredentialsFile string
	Timeout         time.Duration
}

// QuotaConfig holds monthly ceilings in audio minutes per tier. A ceiling of
// -1 means unlimited.
type QuotaConfig struct {
	Ceilings        map[string]float64
	DefaultTier     string
	EstimateSeconds float64
}

type UsageConfig struct {
	Mode           string // "direct" writes inline in a goroutine, "queue" enqueues for cmd/worker
	WriteTimeout   time.Duration
	PricePerMinute map[string]float64 // USD overrides of the built-in list prices
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	rps, err := getEnvInt("RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxAudio, err := getEnvInt("STT_MAX_AUDIO_BYTES", 5<<20)
	if err != nil {
		return nil, fmt.Errorf("invalid STT_MAX_AUDIO_BYTES: %w", err)
	}

	estimate, err := getEnvFloat("STT_QUOTA_ESTIMATE_SECONDS", 30)
	if err != nil {
		return nil, fmt.Errorf("invalid STT_QUOTA_ESTIMATE_SECONDS: %w", err)
	}

	ceilings := map[string]float64{}
	for tier, def := range map[string]float64{"free": 60, "paid": 600, "enterprise": -1} {
		v, err := getEnvFloat("QUOTA_CEILING_"+strings.ToUpper(tier), def)
		if err != nil {
			return nil, fmt.Errorf("invalid QUOTA_CEILING_%s: %w", strings.ToUpper(tier), err)
		}
		ceilings[tier] = v
	}

	prices := map[string]float64{}
	for _, provider := range []string{"openai", "local", "deepgram", "azure", "google"} {
		key := "STT_PRICE_PER_MINUTE_" + strings.ToUpper(provider)
		if _, ok := os.LookupEnv(key); !ok {
			continue
		}
		v, err := getEnvFloat(key, 0)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		prices[provider] = v
	}

	durations := map[string]time.Duration{}
	for key, def := range map[string]time.Duration{
		"STT_FETCH_TIMEOUT":           15 * time.Second,
		"STORAGE_SIGNED_URL_TTL":      time.Hour,
		"STT_OPENAI_TIMEOUT":          30 * time.Second,
		"STT_LOCAL_TIMEOUT":           60 * time.Second,
		"STT_LOCAL_DETECT_TIMEOUT":    2 * time.Second,
		"STT_DEEPGRAM_TIMEOUT":        20 * time.Second,
		"STT_DEEPGRAM_DETECT_TIMEOUT": 2 * time.Second,
		"STT_AZURE_TIMEOUT":           20 * time.Second,
		"STT_GOOGLE_TIMEOUT":          45 * time.Second,
		"USAGE_WRITE_TIMEOUT":         5 * time.Second,
	} {
		d, err := getEnvDuration(key, def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = d
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RateLimitRPS:   rps,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("SUPABASE_JWT_SECRET", ""),
			APIKeyHeader: getEnv("API_KEY_HEADER", "X-API-Key"),
		},
		Storage: StorageConfig{
			Backend:      getEnv("STORAGE_BACKEND", "supabase"),
			SupabaseURL:  getEnv("SUPABASE_URL", ""),
			SupabaseKey:  getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:       getEnv("STORAGE_BUCKET", "recordings"),
			S3Region:     getEnv("S3_REGION", "us-east-1"),
			S3Endpoint:   getEnv("S3_ENDPOINT", ""),
			S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
			S3SecretKey:  getEnv("S3_SECRET_KEY", ""),
			SignedURLTTL: durations["STORAGE_SIGNED_URL_TTL"],
		},
		STT: STTConfig{
			Providers:     getEnvList("STT_PROVIDERS", []string{"openai", "deepgram", "google"}),
			Detector:      getEnv("STT_DETECTOR", "local"),
			DefaultLocale: getEnv("STT_DEFAULT_LOCALE", "en-US"),
			MaxAudioBytes: int64(maxAudio),
			FetchTimeout:  durations["STT_FETCH_TIMEOUT"],
			OpenAI: OpenAISTTConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("STT_OPENAI_BASE_URL", ""),
				Model:   getEnv("STT_OPENAI_MODEL", ""),
				Timeout: durations["STT_OPENAI_TIMEOUT"],
			},
			Local: LocalSTTConfig{
				BaseURL:       getEnv("STT_LOCAL_BASE_URL", "http://localhost:8178"),
				Timeout:       durations["STT_LOCAL_TIMEOUT"],
				DetectTimeout: durations["STT_LOCAL_DETECT_TIMEOUT"],
			},
			Deepgram: DeepgramSTTConfig{
				APIKey:        getEnv("DEEPGRAM_API_KEY", ""),
				BaseURL:       getEnv("STT_DEEPGRAM_BASE_URL", ""),
				Model:         getEnv("STT_DEEPGRAM_MODEL", ""),
				Timeout:       durations["STT_DEEPGRAM_TIMEOUT"],
				DetectTimeout: durations["STT_DEEPGRAM_DETECT_TIMEOUT"],
			},
			Azure: AzureSTTConfig{
				Key:     getEnv("AZURE_SPEECH_KEY", ""),
				Region:  getEnv("AZURE_SPEECH_REGION", ""),
				BaseURL: getEnv("STT_AZURE_BASE_URL", ""),
				Timeout: durations["STT_AZURE_TIMEOUT"],
			},
			Google: GoogleSTTConfig{
				CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
				Timeout:         durations["STT_GOOGLE_TIMEOUT"],
			},
		},
		Quota: QuotaConfig{
			Ceilings:        ceilings,
			DefaultTier:     getEnv("QUOTA_DEFAULT_TIER", "free"),
			EstimateSeconds: estimate,
		},
		Usage: UsageConfig{
			Mode:           getEnv("USAGE_MODE", "direct"),
			WriteTimeout:   durations["USAGE_WRITE_TIMEOUT"],
			PricePerMinute: prices,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "SUPABASE_JWT_SECRET")
	}
	if len(c.STT.Providers) == 0 {
		missing = append(missing, "STT_PROVIDERS")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	switch c.Usage.Mode {
	case "direct", "queue":
	default:
		return fmt.Errorf("invalid USAGE_MODE %q: want direct or queue", c.Usage.Mode)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
