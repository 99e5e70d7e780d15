package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Enrollment   EnrollmentConfig
	Storage      StorageConfig
	Mail         MailConfig
	Certificates CertificateConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EnrollmentConfig tunes the enrollment lifecycle engine.
type EnrollmentConfig struct {
	ReconcileInterval time.Duration
	CategoryNameTTL   time.Duration
}

// StorageConfig controls the local file store for payment proofs and certificates.
type StorageConfig struct {
	BaseDir         string
	PublicBaseURL   string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	MaxFileSize     int64
}

// MailConfig configures the SMTP notifier.
type MailConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Workers  int
}

// CertificateConfig governs certificate issuance policy.
type CertificateConfig struct {
	HistoryCap     int
	Location       string
	SignerOneName  string
	SignerOneTitle string
	SignerTwoName  string
	SignerTwoTitle string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Enrollment = EnrollmentConfig{
		ReconcileInterval: parseDuration(v.GetString("ENROLLMENT_RECONCILE_INTERVAL"), 5*time.Minute),
		CategoryNameTTL:   parseDuration(v.GetString("CATEGORY_NAME_CACHE_TTL"), time.Hour),
	}

	maxFileSize := v.GetInt64("STORAGE_MAX_FILE_SIZE")
	if maxFileSize <= 0 {
		maxFileSize = 10 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		BaseDir:         v.GetString("STORAGE_BASE_DIR"),
		PublicBaseURL:   v.GetString("STORAGE_PUBLIC_BASE_URL"),
		SignedURLSecret: v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 24*time.Hour),
		MaxFileSize:     maxFileSize,
	}

	cfg.Mail = MailConfig{
		Enabled:  v.GetBool("MAIL_ENABLED"),
		Host:     v.GetString("MAIL_HOST"),
		Port:     v.GetInt("MAIL_PORT"),
		Username: v.GetString("MAIL_USERNAME"),
		Password: v.GetString("MAIL_PASSWORD"),
		From:     v.GetString("MAIL_FROM"),
		Workers:  v.GetInt("MAIL_WORKERS"),
	}

	cfg.Certificates = CertificateConfig{
		HistoryCap:     v.GetInt("CERTIFICATE_HISTORY_CAP"),
		Location:       v.GetString("CERTIFICATE_LOCATION"),
		SignerOneName:  v.GetString("CERTIFICATE_SIGNER_ONE_NAME"),
		SignerOneTitle: v.GetString("CERTIFICATE_SIGNER_ONE_TITLE"),
		SignerTwoName:  v.GetString("CERTIFICATE_SIGNER_TWO_NAME"),
		SignerTwoTitle: v.GetString("CERTIFICATE_SIGNER_TWO_TITLE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "aoa_course")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENROLLMENT_RECONCILE_INTERVAL", "5m")
	v.SetDefault("CATEGORY_NAME_CACHE_TTL", "1h")

	v.SetDefault("STORAGE_BASE_DIR", "./uploads")
	v.SetDefault("STORAGE_PUBLIC_BASE_URL", "http://localhost:8080/files")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_storage_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "24h")
	v.SetDefault("STORAGE_MAX_FILE_SIZE", 10*1024*1024)

	v.SetDefault("MAIL_ENABLED", false)
	v.SetDefault("MAIL_HOST", "localhost")
	v.SetDefault("MAIL_PORT", 587)
	v.SetDefault("MAIL_FROM", "noreply@aoa-bd.org")
	v.SetDefault("MAIL_WORKERS", 1)

	v.SetDefault("CERTIFICATE_HISTORY_CAP", 10)
	v.SetDefault("CERTIFICATE_LOCATION", "Dhaka, Bangladesh")
	v.SetDefault("CERTIFICATE_SIGNER_ONE_NAME", "")
	v.SetDefault("CERTIFICATE_SIGNER_ONE_TITLE", "")
	v.SetDefault("CERTIFICATE_SIGNER_TWO_NAME", "")
	v.SetDefault("CERTIFICATE_SIGNER_TWO_TITLE", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
