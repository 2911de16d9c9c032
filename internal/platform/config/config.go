package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. Values come from the
// environment so main stays lean.
type Server struct {
	Addr              string
	AdminToken        string
	JWTSigningKey     string
	DatabaseURL       string
	KafkaBrokers      []string
	AuditTopic        string
	ContentGatewayURL string
	ContentCacheTTL   time.Duration
	RateLimit         int
	RateLimitWindow   time.Duration
	Redis             RedisConfig
}

// RedisConfig holds connection settings for the cache client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("CURIO_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	auditTopic := os.Getenv("AUDIT_TOPIC")
	if auditTopic == "" {
		auditTopic = "curio.audit.events"
	}

	gateway := os.Getenv("CONTENT_GATEWAY_URL")
	if gateway == "" {
		gateway = "https://ipfs.io"
	}

	return Server{
		Addr:              addr,
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
		JWTSigningKey:     jwtSigningKey,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		AuditTopic:        auditTopic,
		ContentGatewayURL: gateway,
		ContentCacheTTL:   durationEnv("CONTENT_CACHE_TTL", 5*time.Minute),
		RateLimit:         intEnv("RATE_LIMIT", 0),
		RateLimitWindow:   durationEnv("RATE_LIMIT_WINDOW", time.Minute),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: intEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
