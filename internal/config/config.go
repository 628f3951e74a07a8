package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config carries everything the server reads from the environment.
type Config struct {
	ServerAddr  string
	DatabaseURL string

	JWTSecret string
	TokenTTL  time.Duration

	// FinePerDay is the daily overdue fine in currency units.
	FinePerDay float64

	// BaseURL is used to build email verification links.
	BaseURL string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	// AllowedEmailDomain restricts registration when non-empty, e.g. "nlenau.ro".
	AllowedEmailDomain string

	VerificationTTL time.Duration
	InvitationTTL   time.Duration
}

// Load reads the configuration from environment variables, failing fast on
// the ones that have no sane default.
func Load() Config {
	return Config{
		ServerAddr:  getenv("SERVER_ADDR", ":8080"),
		DatabaseURL: must("DATABASE_URL"),

		JWTSecret: getenv("JWT_SECRET", "local_dev_secret"),
		TokenTTL:  getduration("TOKEN_TTL", 24*time.Hour),

		FinePerDay: getfloat("FINE_PER_DAY", 1.00),

		BaseURL: getenv("BASE_URL", "http://localhost:8080"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getint("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     getenv("MAIL_FROM", "noreply@lenbrary.com"),

		AllowedEmailDomain: os.Getenv("ALLOWED_EMAIL_DOMAIN"),

		VerificationTTL: getduration("VERIFICATION_TTL", 6*time.Hour),
		InvitationTTL:   getduration("INVITATION_TTL", 6*time.Hour),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("[ERROR] config: required environment variable %s is missing", k)
	}
	return v
}

func getint(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("[ERROR] config: %s must be an integer, got %q", k, v)
	}
	return n
}

func getfloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("[ERROR] config: %s must be a number, got %q", k, v)
	}
	return f
}

func getduration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("[ERROR] config: %s must be a duration, got %q", k, v)
	}
	return d
}
