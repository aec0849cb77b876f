package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

const (
	BackendHTTP = "http"
	BackendSQL  = "sql"

	LiveWebSocket = "websocket"
	LiveRabbit    = "rabbit"
	LiveNone      = "none"
)

type Config struct {
	HTTPAddr string
	LogLevel string

	BackendMode    string
	BackendURL     string
	BackendTimeout time.Duration
	CRDBDSN        string

	RedisAddr string
	CacheTTL  time.Duration
	MongoURI  string

	LiveSource     string
	NotifyURL      string
	RabbitURL      string
	LiveExchange   string
	LiveReconnect  bool
	LiveMaxBackoff time.Duration

	TourDurationDays int
	Location         *time.Location
	ChartYear        int

	ViewTTL            time.Duration
	RateLimitPerMinute int
	OTLPEndpoint       string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	loc, err := time.LoadLocation(getenv("TIMEZONE", "Asia/Ho_Chi_Minh"))
	if err != nil {
		return nil, errors.Wrap(err, "TIMEZONE")
	}

	cfg := &Config{
		HTTPAddr:           getenv("HTTP_ADDR", ":8081"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		BackendMode:        strings.ToLower(getenv("BACKEND_MODE", BackendHTTP)),
		BackendURL:         strings.TrimRight(getenv("BACKEND_URL", "http://localhost:8080"), "/"),
		BackendTimeout:     duration("BACKEND_TIMEOUT", 10*time.Second),
		CRDBDSN:            os.Getenv("CRDB_DSN"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		CacheTTL:           duration("CACHE_TTL", 30*time.Second),
		MongoURI:           os.Getenv("MONGO_URI"),
		LiveSource:         strings.ToLower(getenv("LIVE_SOURCE", LiveWebSocket)),
		NotifyURL:          getenv("NOTIFY_URL", "ws://localhost:8080/notification"),
		RabbitURL:          os.Getenv("RABBIT_URL"),
		LiveExchange:       getenv("LIVE_EXCHANGE", "booking.notifications"),
		LiveReconnect:      getenv("LIVE_RECONNECT", "true") == "true",
		LiveMaxBackoff:     duration("LIVE_MAX_BACKOFF", 30*time.Second),
		TourDurationDays:   integer("TOUR_DURATION_DAYS", 3),
		Location:           loc,
		ChartYear:          integer("CHART_YEAR", time.Now().In(loc).Year()),
		ViewTTL:            duration("VIEW_TTL", 30*time.Minute),
		RateLimitPerMinute: integer("RATE_LIMIT_PER_MINUTE", 120),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	switch c.BackendMode {
	case BackendHTTP:
		if c.BackendURL == "" {
			return errors.New("BACKEND_URL is required when BACKEND_MODE=http")
		}
	case BackendSQL:
		if c.CRDBDSN == "" {
			return errors.New("CRDB_DSN is required when BACKEND_MODE=sql")
		}
	default:
		return errors.Newf("unknown BACKEND_MODE %q", c.BackendMode)
	}
	switch c.LiveSource {
	case LiveWebSocket, LiveNone:
	case LiveRabbit:
		if c.RabbitURL == "" {
			return errors.New("RABBIT_URL is required when LIVE_SOURCE=rabbit")
		}
	default:
		return errors.Newf("unknown LIVE_SOURCE %q", c.LiveSource)
	}
	if c.TourDurationDays <= 0 {
		return errors.New("TOUR_DURATION_DAYS must be positive")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d <= 0 {
		return def
	}
	return d
}

func integer(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}
