package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	StorageBackend string
	StoragePath    string
	StorageBaseURL string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3PathStyle    bool

	GeminiAPIKey  string
	GeminiBaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// SubmitRateCapacity and SubmitRateRefill shape the provider submission
	// token bucket. Capacity 0 disables it.
	SubmitRateCapacity int
	SubmitRateRefill   float64

	PollInterval      time.Duration
	PollQPS           float64
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	MaxPollAttempts   int
	JobRetention      time.Duration
	ArtifactRetention time.Duration
	SweepInterval     time.Duration
	FallbackEnabled   bool

	ProgressCap        int
	ProgressTauImage   time.Duration
	ProgressTauVideo   time.Duration
	VideoDurationTable string

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
		StoragePath:    getEnv("STORAGE_PATH", "./data/artifacts"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/v1/artifacts"),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3PathStyle:    getEnvBool("S3_PATH_STYLE", false),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		SubmitRateCapacity: getEnvInt("SUBMIT_RATE_CAPACITY", 10),
		SubmitRateRefill:   getEnvFloat("SUBMIT_RATE_REFILL_PER_SEC", 1),

		PollInterval:      getEnvDuration("POLL_INTERVAL", 5*time.Second),
		PollQPS:           getEnvFloat("POLL_QPS", 20),
		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 8),
		JobTimeout:        getEnvDuration("JOB_TIMEOUT", 600*time.Second),
		MaxPollAttempts:   getEnvInt("MAX_POLL_ATTEMPTS", 5),
		JobRetention:      getEnvDuration("JOB_RETENTION", 24*time.Hour),
		ArtifactRetention: getEnvDuration("ARTIFACT_RETENTION", 7*24*time.Hour),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),
		FallbackEnabled:   getEnvBool("FALLBACK_ENABLED", true),

		ProgressCap:        getEnvInt("PROGRESS_CAP", 90),
		ProgressTauImage:   getEnvDuration("PROGRESS_TAU_IMAGE", 15*time.Second),
		ProgressTauVideo:   getEnvDuration("PROGRESS_TAU_VIDEO", 90*time.Second),
		VideoDurationTable: os.Getenv("VIDEO_DURATION_TABLE"),

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	switch cfg.StorageBackend {
	case StorageLocal:
	case StorageS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	if cfg.MaxConcurrentJobs <= 0 {
		return nil, fmt.Errorf("MAX_CONCURRENT_JOBS must be positive")
	}
	if cfg.MaxPollAttempts <= 0 {
		return nil, fmt.Errorf("MAX_POLL_ATTEMPTS must be positive")
	}
	if cfg.ProgressCap <= 0 || cfg.ProgressCap > 99 {
		return nil, fmt.Errorf("PROGRESS_CAP must be within 1..99")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "10m") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
