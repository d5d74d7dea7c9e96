package app

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	// Token signing and lifetimes. RefreshTTL must exceed AccessTTL.
	JWTSecret  []byte        `validate:"min=32"`
	AccessTTL  time.Duration `validate:"gt=0"`
	RefreshTTL time.Duration `validate:"gt=0"`
	Issuer     string        `validate:"required"`

	// Shared token store
	RedisAddr     string `validate:"required,hostname_port"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`

	DatabaseFile    string `validate:"required"` // SQLite user directory
	PepperFile      string `validate:"required"` // created on first start
	CleanupSchedule string
	CORSOrigins     []string `validate:"dive,required"`

	// PasswordResetURL prefixes the token in reset links, e.g.
	// "https://app.example.com/reset-password?token=".
	PasswordResetURL string `validate:"omitempty,url"`

	Env                 string        `validate:"oneof=dev test staging prod"`
	LogLevel            string        `validate:"oneof=debug info warn error"`
	LogFormat           string        `validate:"oneof=json text"`
	Port                int           `validate:"min=1,max=65535"`
	ShutdownGracePeriod time.Duration `validate:"gt=0"`
}

const minSecretSize = 32

// ErrTTLOrder is returned when refresh tokens would not outlive access
// tokens. The refresh kind heuristic depends on it.
var ErrTTLOrder = errors.New("config: AUTH_REFRESH_TTL must exceed AUTH_ACCESS_TTL")

func LoadConfig() Config {
	return Config{
		JWTSecret:       decodeSecret(os.Getenv("AUTH_JWT_SECRET")),
		AccessTTL:       getEnvDurationOrDefault("AUTH_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:      getEnvDurationOrDefault("AUTH_REFRESH_TTL", 7*24*time.Hour),
		Issuer:          getEnvOrDefault("AUTH_ISSUER", "sessionkeeper"),
		RedisAddr:       getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getEnvIntOrDefault("REDIS_DB", 0),
		DatabaseFile:    getEnvOrDefault("AUTH_DATABASE_FILE", "users.db"),
		PepperFile:      getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		CleanupSchedule: getEnvOrDefault("CLEANUP_SCHEDULE", "@daily"),
		CORSOrigins:     splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),

		PasswordResetURL: os.Getenv("AUTH_PASSWORD_RESET_URL"),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

// Validate checks field rules and the TTL ordering.
func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
			}
			return fmt.Errorf("config: invalid %s", strings.Join(fields, ", "))
		}
		return err
	}
	if c.RefreshTTL <= c.AccessTTL {
		return ErrTTLOrder
	}
	return nil
}

// decodeSecret accepts base64 (standard or URL, padded or not) when it
// decodes to a full length key, and falls back to the raw bytes. A 32
// character ASCII secret is valid base64 too, but only 24 bytes decoded.
func decodeSecret(s string) []byte {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil && len(b) >= minSecretSize {
			return b
		}
	}
	return []byte(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
