package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Session   SessionConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the managed Chromium instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// Bin overrides the Chromium binary path.
	Bin string

	// WindowWidth/WindowHeight set the browser window size.
	WindowWidth  int // default: 1920
	WindowHeight int // default: 1080

	// LaunchTimeout bounds the browser launch itself.
	LaunchTimeout time.Duration // default: 30s

	// BlockedResourceTypes lists resource types dropped by the request
	// interceptor. default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string
}

// SessionConfig controls the coordinator's queueing and retry behavior.
type SessionConfig struct {
	// QueueTimeout bounds how long a request waits for its browser turn.
	QueueTimeout time.Duration // default: 30s

	// OpTimeout bounds one operation once it holds the browser.
	OpTimeout time.Duration // default: 90s

	// NavTimeout bounds a single page navigation.
	NavTimeout time.Duration // default: 20s

	// RetryBudget is the number of primary-engine attempts before fallback.
	RetryBudget int // default: 3

	// BackoffBase scales inter-attempt delays; attempt n waits n*base.
	BackoffBase time.Duration // default: 2s

	// Proxies is the comma-separated identity rotation pool.
	Proxies []string

	// ScreenshotDir, when set, receives PNGs of final failed pages.
	ScreenshotDir string

	// HTTPFallback enables the TLS-fingerprinted plain-HTTP scrape fallback.
	HTTPFallback bool // default: true
}

// CacheConfig controls the scrape content cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached extractions.
	MaxEntries int // default: 1000

	// TTL is the background-eviction age limit.
	TTL time.Duration // default: 1h
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("LOOKOUT_HOST", "0.0.0.0"),
			Port: envIntOr("LOOKOUT_PORT", 8080),
			Mode: envOr("LOOKOUT_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:      envBoolOr("LOOKOUT_HEADLESS", true),
			NoSandbox:     envBoolOr("LOOKOUT_NO_SANDBOX", false),
			Bin:           os.Getenv("LOOKOUT_BROWSER_BIN"),
			WindowWidth:   envIntOr("LOOKOUT_WINDOW_WIDTH", 1920),
			WindowHeight:  envIntOr("LOOKOUT_WINDOW_HEIGHT", 1080),
			LaunchTimeout: envDurationOr("LOOKOUT_LAUNCH_TIMEOUT", 30*time.Second),
			BlockedResourceTypes: envSliceOr("LOOKOUT_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
		},
		Session: SessionConfig{
			QueueTimeout:  envDurationOr("LOOKOUT_QUEUE_TIMEOUT", 30*time.Second),
			OpTimeout:     envDurationOr("LOOKOUT_OP_TIMEOUT", 90*time.Second),
			NavTimeout:    envDurationOr("LOOKOUT_NAV_TIMEOUT", 20*time.Second),
			RetryBudget:   envIntOr("LOOKOUT_RETRY_BUDGET", 3),
			BackoffBase:   envDurationOr("LOOKOUT_BACKOFF_BASE", 2*time.Second),
			Proxies:       envSliceOr("LOOKOUT_PROXIES", nil),
			ScreenshotDir: os.Getenv("LOOKOUT_SCREENSHOT_DIR"),
			HTTPFallback:  envBoolOr("LOOKOUT_HTTP_FALLBACK", true),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("LOOKOUT_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("LOOKOUT_CACHE_TTL", time.Hour),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("LOOKOUT_AUTH_ENABLED", false),
			APIKeys: envSliceOr("LOOKOUT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("LOOKOUT_RATE_RPS", 2.0),
			Burst:             envIntOr("LOOKOUT_RATE_BURST", 5),
		},
		Log: LogConfig{
			Level:  envOr("LOOKOUT_LOG_LEVEL", "info"),
			Format: envOr("LOOKOUT_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
