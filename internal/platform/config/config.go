package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration for the trust-and-access core.
type Server struct {
	Addr            string
	DevMode         bool
	JWTSigningKey   string
	AllowedOrigins  []string
	RedisURL        string
	KafkaBrokers    string
	SecurityTopic   string
	CleanupInterval time.Duration
	CleanupMaxAge   time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("PEAKFORM_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var origins []string
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	cleanupInterval := 15 * time.Minute
	if raw := os.Getenv("RATELIMIT_CLEANUP_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cleanupInterval = d
		}
	}

	cleanupMaxAge := 24 * time.Hour
	if raw := os.Getenv("RATELIMIT_CLEANUP_MAX_AGE"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cleanupMaxAge = d
		}
	}

	securityTopic := os.Getenv("SECURITY_EVENTS_TOPIC")
	if securityTopic == "" {
		securityTopic = "peakform.security-events"
	}

	return Server{
		Addr:            addr,
		DevMode:         os.Getenv("DEV_MODE") == "true",
		JWTSigningKey:   jwtSigningKey,
		AllowedOrigins:  origins,
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		SecurityTopic:   securityTopic,
		CleanupInterval: cleanupInterval,
		CleanupMaxAge:   cleanupMaxAge,
	}
}
