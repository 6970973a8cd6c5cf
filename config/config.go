package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every runtime setting the server needs. Values come from the
// environment; Load applies defaults suitable for local development.
type Config struct {
	ListenAddr string
	PublicURL  string // base URL used when building customer-facing links

	DBDriver string // "sqlite" or "mysql"
	DBDSN    string

	S3 S3Config

	Payment PaymentConfig

	SMTP SMTPConfig

	JWTSecret           string
	DownloadTokenSecret string

	// DefaultSignedURLTTL bounds the raw presigned URL lifetime when a
	// download link itself has no expiry.
	DefaultSignedURLTTL time.Duration

	// Limits applied to purchase-issued download links. Zero means
	// unlimited, matching the download-link semantics.
	FulfillMaxDownloads  int
	FulfillExpireSeconds int
}

// S3Config configures the object storage provider.
type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKeyID    string
	SecretKey      string
	UsePathStyle   bool
	RequestTimeout time.Duration
}

// PaymentConfig configures the card payment provider.
type PaymentConfig struct {
	APIBaseURL     string
	SecretKey      string
	WebhookSecret  string
	RequestTimeout time.Duration
}

// SMTPConfig configures the notification mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AdminTo  string // destination for contact-inquiry notifications
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		PublicURL:  getEnv("PUBLIC_URL", "http://localhost:8080"),
		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBDSN:      getEnv("DB_DSN", "./audiostore.db"),
		S3: S3Config{
			Endpoint:       os.Getenv("S3_ENDPOINT"),
			Region:         getEnv("S3_REGION", "us-east-1"),
			Bucket:         os.Getenv("S3_BUCKET"),
			AccessKeyID:    os.Getenv("S3_ACCESS_KEY_ID"),
			SecretKey:      os.Getenv("S3_SECRET_ACCESS_KEY"),
			UsePathStyle:   getEnvBool("S3_USE_PATH_STYLE", true),
			RequestTimeout: getEnvDuration("S3_REQUEST_TIMEOUT", 10*time.Second),
		},
		Payment: PaymentConfig{
			APIBaseURL:     getEnv("PAYMENT_API_URL", "https://api.stripe.com/v1"),
			SecretKey:      os.Getenv("PAYMENT_SECRET_KEY"),
			WebhookSecret:  os.Getenv("PAYMENT_WEBHOOK_SECRET"),
			RequestTimeout: getEnvDuration("PAYMENT_REQUEST_TIMEOUT", 15*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "no-reply@audiostore.local"),
			AdminTo:  os.Getenv("SMTP_ADMIN_TO"),
		},
		JWTSecret:            getEnv("JWT_SECRET", "your-secret-key-change-this-in-production"),
		DownloadTokenSecret:  getEnv("DOWNLOAD_TOKEN_SECRET", "change-this-download-token-secret"),
		DefaultSignedURLTTL:  getEnvDuration("DEFAULT_SIGNED_URL_TTL", time.Hour),
		FulfillMaxDownloads:  getEnvInt("FULFILL_MAX_DOWNLOADS", 5),
		FulfillExpireSeconds: getEnvInt("FULFILL_EXPIRE_SECONDS", 7*24*60*60),
	}

	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "mysql" {
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
