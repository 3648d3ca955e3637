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

const (
	DraftBackendRedis = "redis"
	DraftBackendFile  = "file"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	Timezone  string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Auth          AuthConfig
	CORS          CORSConfig
	Log           LogConfig
	Google        GoogleConfig
	Templates     TemplatesConfig
	Drafts        DraftsConfig
	Session       SessionConfig
	Bootstrap     BootstrapConfig
	Notifications NotificationsConfig
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
	Issuer     string
}

// AuthConfig decides whether API routes demand a bearer token.
type AuthConfig struct {
	Required        bool
	DefaultPassword string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// GoogleConfig points at the OAuth client and the stored user token used for Drive, Docs and Gmail.
type GoogleConfig struct {
	ClientSecretsFile     string
	TokenFile             string
	DefaultParentFolderID string
	RequestsPerSecond     float64
	Burst                 int
	CallTimeout           time.Duration
}

// TemplatesConfig locates reflection template definitions.
type TemplatesConfig struct {
	Dir         string
	DefaultName string
	CacheTTL    time.Duration
	Watch       bool
}

// DraftsConfig selects the draft persistence backend.
type DraftsConfig struct {
	Backend      string
	Dir          string
	KeyPrefix    string
	MaxBodyBytes int64
}

// SessionConfig governs session key derivation.
type SessionConfig struct {
	Namespace string
	KeySecret string
}

// BootstrapConfig names the authoritative bulk source for master data.
type BootstrapConfig struct {
	Source       string
	SyncSchedule string
}

// NotificationsConfig controls guardian notifications and outcome recording.
type NotificationsConfig struct {
	Enabled       bool
	FromAddress   string
	RecordWorkers int
	RecordRetries int
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.Timezone = v.GetString("TIMEZONE")

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
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.Auth = AuthConfig{
		Required:        v.GetBool("AUTH_REQUIRED"),
		DefaultPassword: v.GetString("BOOTSTRAP_DEFAULT_PASSWORD"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	rps := v.GetFloat64("GOOGLE_REQUESTS_PER_SECOND")
	if rps <= 0 {
		rps = 5
	}
	cfg.Google = GoogleConfig{
		ClientSecretsFile:     v.GetString("GOOGLE_OAUTH_CLIENT_SECRETS"),
		TokenFile:             v.GetString("GOOGLE_OAUTH_TOKEN_FILE"),
		DefaultParentFolderID: v.GetString("FIXED_DRIVE_PARENT_ID"),
		RequestsPerSecond:     rps,
		Burst:                 v.GetInt("GOOGLE_REQUEST_BURST"),
		CallTimeout:           parseDuration(v.GetString("GOOGLE_CALL_TIMEOUT"), 15*time.Second),
	}

	cfg.Templates = TemplatesConfig{
		Dir:         v.GetString("TEMPLATE_DIR"),
		DefaultName: v.GetString("DEFAULT_TEMPLATE_NAME"),
		CacheTTL:    parseDuration(v.GetString("TEMPLATE_CACHE_TTL"), 10*time.Minute),
		Watch:       v.GetBool("TEMPLATE_WATCH"),
	}

	maxBody := v.GetInt64("DRAFT_MAX_BODY_BYTES")
	if maxBody <= 0 {
		maxBody = 256 * 1024
	}
	cfg.Drafts = DraftsConfig{
		Backend:      strings.ToLower(v.GetString("DRAFT_BACKEND")),
		Dir:          v.GetString("DRAFT_DIR"),
		KeyPrefix:    v.GetString("DRAFT_KEY_PREFIX"),
		MaxBodyBytes: maxBody,
	}

	cfg.Session = SessionConfig{
		Namespace: v.GetString("SESSION_KEY_NAMESPACE"),
		KeySecret: v.GetString("SESSION_KEY_SECRET"),
	}

	cfg.Bootstrap = BootstrapConfig{
		Source:       v.GetString("BOOTSTRAP_SOURCE"),
		SyncSchedule: v.GetString("BOOTSTRAP_SYNC_SCHEDULE"),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:       v.GetBool("ENABLE_NOTIFICATIONS"),
		FromAddress:   v.GetString("NOTIFICATION_FROM_ADDRESS"),
		RecordWorkers: v.GetInt("NOTIFICATION_RECORD_WORKERS"),
		RecordRetries: v.GetInt("NOTIFICATION_RECORD_RETRIES"),
	}

	return cfg, nil
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("TIMEZONE", "Asia/Tokyo")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "lesson_reflection")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "lesson-reflection-api")
	v.SetDefault("AUTH_REQUIRED", false)
	v.SetDefault("BOOTSTRAP_DEFAULT_PASSWORD", "password123")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GOOGLE_OAUTH_CLIENT_SECRETS", "./credentials/oauth_client_secret.json")
	v.SetDefault("GOOGLE_OAUTH_TOKEN_FILE", "./oauth_token.json")
	v.SetDefault("FIXED_DRIVE_PARENT_ID", "")
	v.SetDefault("GOOGLE_REQUESTS_PER_SECOND", 5)
	v.SetDefault("GOOGLE_REQUEST_BURST", 10)
	v.SetDefault("GOOGLE_CALL_TIMEOUT", "15s")

	v.SetDefault("TEMPLATE_DIR", "./data/templates")
	v.SetDefault("DEFAULT_TEMPLATE_NAME", "reflection")
	v.SetDefault("TEMPLATE_CACHE_TTL", "10m")
	v.SetDefault("TEMPLATE_WATCH", true)

	v.SetDefault("DRAFT_BACKEND", DraftBackendRedis)
	v.SetDefault("DRAFT_DIR", "./drafts")
	v.SetDefault("DRAFT_KEY_PREFIX", "draft:")
	v.SetDefault("DRAFT_MAX_BODY_BYTES", 256*1024)

	v.SetDefault("SESSION_KEY_NAMESPACE", "reflection")
	v.SetDefault("SESSION_KEY_SECRET", "dev_session_secret")

	v.SetDefault("BOOTSTRAP_SOURCE", "./data")
	v.SetDefault("BOOTSTRAP_SYNC_SCHEDULE", "")

	v.SetDefault("ENABLE_NOTIFICATIONS", true)
	v.SetDefault("NOTIFICATION_FROM_ADDRESS", "no-reply@example.com")
	v.SetDefault("NOTIFICATION_RECORD_WORKERS", 1)
	v.SetDefault("NOTIFICATION_RECORD_RETRIES", 3)
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
