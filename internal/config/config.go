// Package config loads service settings from the environment
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the complete runtime configuration of the API
type Config struct {
	Port        string `env:"PORT"         envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	// RedisURL selects the shared geo index, limiter, sample store and
	// pub/sub bridge; when empty everything runs in process.
	RedisURL   string `env:"REDIS_URL"`
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	// AllowedOrigins limits browser websocket origins; empty accepts any.
	AllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`

	Dispatch DispatchConfig
	Tracking TrackingConfig
	Push     PushConfig
}

// DispatchConfig tunes candidate selection and mission creation
type DispatchConfig struct {
	RadiusKm       float64       `env:"DISPATCH_RADIUS_KM"      envDefault:"10"`
	MaxCandidates  int           `env:"DISPATCH_MAX_CANDIDATES" envDefault:"50"`
	Concurrency    int           `env:"DISPATCH_CONCURRENCY"    envDefault:"8"`
	ChannelTimeout time.Duration `env:"CHANNEL_TIMEOUT"         envDefault:"3s"`
	CreateLimit    int           `env:"MISSION_CREATE_LIMIT"    envDefault:"20"`
	CreateWindow   time.Duration `env:"MISSION_CREATE_WINDOW"   envDefault:"1m"`
}

type TrackingConfig struct {
	MinInterval time.Duration `env:"TRACKING_MIN_INTERVAL" envDefault:"5s"`
}

// PushConfig holds provider credentials. A channel without credentials is disabled.
type PushConfig struct {
	VAPIDPublicKey          string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey         string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject            string `env:"VAPID_SUBJECT" envDefault:"mailto:ops@mission-dispatch.local"`
	FirebaseProjectID       string `env:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsJSON string `env:"FIREBASE_CREDENTIALS_JSON"`
}

// WebPushEnabled reports whether both VAPID keys are set
func (p PushConfig) WebPushEnabled() bool {
	return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != ""
}

// FCMEnabled reports whether Firebase credentials are set
func (p PushConfig) FCMEnabled() bool {
	return p.FirebaseProjectID != "" && p.FirebaseCredentialsJSON != ""
}

// Load parses and validates the environment
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Dispatch.RadiusKm <= 0:
		return fmt.Errorf("DISPATCH_RADIUS_KM must be positive, got %v", c.Dispatch.RadiusKm)
	case c.Dispatch.MaxCandidates <= 0:
		return fmt.Errorf("DISPATCH_MAX_CANDIDATES must be positive, got %d", c.Dispatch.MaxCandidates)
	case c.Dispatch.Concurrency <= 0:
		return fmt.Errorf("DISPATCH_CONCURRENCY must be positive, got %d", c.Dispatch.Concurrency)
	case c.Dispatch.ChannelTimeout <= 0:
		return fmt.Errorf("CHANNEL_TIMEOUT must be positive, got %s", c.Dispatch.ChannelTimeout)
	case c.Dispatch.CreateLimit <= 0 || c.Dispatch.CreateWindow <= 0:
		return fmt.Errorf("MISSION_CREATE_LIMIT and MISSION_CREATE_WINDOW must be positive")
	case c.Tracking.MinInterval <= 0:
		return fmt.Errorf("TRACKING_MIN_INTERVAL must be positive, got %s", c.Tracking.MinInterval)
	}
	return nil
}
