package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   Server
	Graph    Graph
	Signup   Signup
	Auth     Auth
	Database Database
	Twilio   Twilio
}

type Server struct {
	Port string
}

// Graph holds the WhatsApp Cloud API settings. AppSecret stays server-side:
// this service is the token-exchange proxy for the consent widget.
type Graph struct {
	BaseURL    string
	APIVersion string
	AppID      string
	AppSecret  string
}

type Signup struct {
	// AllowedOrigins are the only origins the consent-event endpoint accepts.
	AllowedOrigins []string
	// SyncDelay is the pause between initiating a sync job and continuing
	// the background tail. The jobs finish out-of-band via webhook.
	SyncDelay time.Duration
	// SessionTTL is how long an inactive signup session is kept.
	SessionTTL time.Duration
}

type Auth struct {
	JWTSecret string
}

type Database struct {
	User string
	Pass string
	Name string
	// InstanceConnectionName selects the Cloud SQL unix socket when set
	InstanceConnectionName string
}

type Twilio struct {
	AccountSID string
	AuthToken  string
	From       string
	NotifyTo   string
}

func Load() (*Config, error) {
	appID, err := requireEnv("META_APP_ID")
	if err != nil {
		return nil, err
	}
	appSecret, err := requireEnv("META_APP_SECRET")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := requireEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	syncDelaySeconds, err := getEnvInt("SIGNUP_SYNC_DELAY_SECONDS", 2)
	if err != nil {
		return nil, err
	}
	sessionTTLMinutes, err := getEnvInt("SIGNUP_SESSION_TTL_MINUTES", 30)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: Server{
			Port: getEnv("PORT", "8080"),
		},
		Graph: Graph{
			BaseURL:    getEnv("GRAPH_BASE_URL", "https://graph.facebook.com"),
			APIVersion: getEnv("GRAPH_API_VERSION", "v21.0"),
			AppID:      appID,
			AppSecret:  appSecret,
		},
		Signup: Signup{
			AllowedOrigins: splitEnv("SIGNUP_ALLOWED_ORIGINS", "https://www.facebook.com,https://web.facebook.com"),
			SyncDelay:      time.Duration(syncDelaySeconds) * time.Second,
			SessionTTL:     time.Duration(sessionTTLMinutes) * time.Minute,
		},
		Auth: Auth{
			JWTSecret: jwtSecret,
		},
		Database: Database{
			User:                   getEnv("DB_USER", "postgres"),
			Pass:                   os.Getenv("DB_PASS"),
			Name:                   getEnv("DB_NAME", "talka"),
			InstanceConnectionName: os.Getenv("INSTANCE_CONNECTION_NAME"),
		},
		Twilio: Twilio{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			From:       os.Getenv("TWILIO_WHATSAPP_FROM"),
			NotifyTo:   os.Getenv("TWILIO_NOTIFY_TO"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.Signup.AllowedOrigins) == 0 {
		return fmt.Errorf("SIGNUP_ALLOWED_ORIGINS must not be empty")
	}
	if cfg.Signup.SyncDelay < 0 {
		return fmt.Errorf("SIGNUP_SYNC_DELAY_SECONDS must be >= 0")
	}
	if cfg.Signup.SessionTTL <= 0 {
		return fmt.Errorf("SIGNUP_SESSION_TTL_MINUTES must be > 0")
	}
	return nil
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func splitEnv(key, def string) []string {
	raw := getEnv(key, def)
	parts := []string{}
	for _, p := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
