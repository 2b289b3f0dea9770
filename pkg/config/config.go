package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Mail providers understood by the mailer factory.
const (
	MailProviderConsole  = "console"
	MailProviderSMTP     = "smtp"
	MailProviderSendgrid = "sendgrid"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	Mongo         MongoConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Encryption    EncryptionConfig
	Mail          MailConfig
	Zoom          ZoomConfig
	Scheduling    SchedulingConfig
	Uploads       UploadsConfig
	Exports       ExportsConfig
	Chat          ChatConfig
	Pricing       PricingConfig
	Notifications NotificationsConfig
	Rollbar       RollbarConfig
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
	MaxLifetime  time.Duration
}

// RedisConfig points at the Redis used for chat sessions, the read cache and locks. URL,
// when set, takes precedence over the discrete fields.
type RedisConfig struct {
	URL       string
	Host      string
	Port      int
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

// MongoConfig points at the document store used for the contact inbox.
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EncryptionConfig holds the AES-256 key (64 hex chars) for teacher PII.
type EncryptionConfig struct {
	FieldKey string
}

// MailConfig selects and configures the outbound mail transport.
type MailConfig struct {
	Provider       string
	FromName       string
	FromAddress    string
	AdminRecipient string
	SubjectPrefix  string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPassword   string
	SendgridAPIKey string
	PublicAppURL   string
}

// ZoomConfig carries Server-to-Server OAuth credentials.
type ZoomConfig struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	DefaultHost  string
	BaseURL      string
	AuthURL      string
	Timeout      time.Duration
}

// Enabled reports whether credentials were supplied.
func (z ZoomConfig) Enabled() bool {
	return z.AccountID != "" && z.ClientID != "" && z.ClientSecret != ""
}

// SchedulingConfig tunes the availability resolver and approval flow.
type SchedulingConfig struct {
	EnforceWindows         bool
	DefaultMeetingDuration int
	DefaultClassDuration   int
	Timezone               string
	LockTTL                time.Duration
}

// UploadsConfig bounds CSV imports.
type UploadsConfig struct {
	StorageDir   string
	MaxCSVBytes  int64
	ArchiveFiles bool
}

// ExportsConfig controls generated export files and their signed links.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// ChatConfig bounds the chat session store.
type ChatConfig struct {
	SessionTTL  time.Duration
	MaxSessions int
	MaxMessages int
}

// PricingConfig controls the pricing read cache.
type PricingConfig struct {
	CacheTTL time.Duration
}

// NotificationsConfig sizes the email worker queue.
type NotificationsConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// RollbarConfig enables server error reporting when a token is present.
type RollbarConfig struct {
	Token string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
		MaxLifetime:  parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),

		URL:       v.GetString("REDIS_URL"),
		PoolSize:  v.GetInt("REDIS_POOL_SIZE"),
		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.Mongo = MongoConfig{
		URI:      v.GetString("MONGO_URI"),
		Database: v.GetString("MONGO_DATABASE"),
		Timeout:  parseDuration(v.GetString("MONGO_TIMEOUT"), 10*time.Second),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Encryption = EncryptionConfig{FieldKey: v.GetString("FIELD_ENCRYPTION_KEY")}

	cfg.Mail = MailConfig{
		Provider:       strings.ToLower(v.GetString("MAIL_PROVIDER")),
		FromName:       v.GetString("MAIL_FROM_NAME"),
		FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
		AdminRecipient: v.GetString("ADMIN_NOTIFY_EMAIL"),
		SubjectPrefix:  v.GetString("MAIL_SUBJECT_PREFIX"),
		SMTPHost:       v.GetString("SMTP_HOST"),
		SMTPPort:       v.GetInt("SMTP_PORT"),
		SMTPUser:       v.GetString("SMTP_USER"),
		SMTPPassword:   v.GetString("SMTP_PASSWORD"),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		PublicAppURL:   strings.TrimRight(v.GetString("APP_PUBLIC_URL"), "/"),
	}

	cfg.Zoom = ZoomConfig{
		AccountID:    v.GetString("ZOOM_ACCOUNT_ID"),
		ClientID:     v.GetString("ZOOM_CLIENT_ID"),
		ClientSecret: v.GetString("ZOOM_CLIENT_SECRET"),
		DefaultHost:  v.GetString("ZOOM_DEFAULT_HOST"),
		BaseURL:      v.GetString("ZOOM_BASE_URL"),
		AuthURL:      v.GetString("ZOOM_AUTH_URL"),
		Timeout:      parseDuration(v.GetString("ZOOM_TIMEOUT"), 15*time.Second),
	}

	cfg.Scheduling = SchedulingConfig{
		EnforceWindows:         v.GetBool("SCHEDULING_ENFORCE_WINDOWS"),
		DefaultMeetingDuration: v.GetInt("SCHEDULING_MEETING_DURATION"),
		DefaultClassDuration:   v.GetInt("SCHEDULING_CLASS_DURATION"),
		Timezone:               v.GetString("SCHEDULING_TIMEZONE"),
		LockTTL:                parseDuration(v.GetString("SCHEDULING_LOCK_TTL"), 30*time.Second),
	}

	maxCSV := v.GetInt64("UPLOADS_MAX_CSV_BYTES")
	if maxCSV <= 0 {
		maxCSV = 2 * 1024 * 1024
	}
	cfg.Uploads = UploadsConfig{
		StorageDir:   v.GetString("UPLOADS_STORAGE_DIR"),
		MaxCSVBytes:  maxCSV,
		ArchiveFiles: v.GetBool("UPLOADS_ARCHIVE_FILES"),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Chat = ChatConfig{
		SessionTTL:  parseDuration(v.GetString("CHAT_SESSION_TTL"), 30*time.Minute),
		MaxSessions: v.GetInt("CHAT_MAX_SESSIONS"),
		MaxMessages: v.GetInt("CHAT_MAX_MESSAGES"),
	}

	cfg.Pricing = PricingConfig{CacheTTL: parseDuration(v.GetString("PRICING_CACHE_TTL"), 10*time.Minute)}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		Retries:    v.GetInt("NOTIFY_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Rollbar = RollbarConfig{Token: v.GetString("ROLLBAR_TOKEN")}

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
	v.SetDefault("DB_NAME", "tutorhub")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_KEY_PREFIX", "tutorhub:")

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "tutorhub")
	v.SetDefault("MONGO_TIMEOUT", "10s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "tutorhub-api")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("FIELD_ENCRYPTION_KEY", "")

	v.SetDefault("MAIL_PROVIDER", MailProviderConsole)
	v.SetDefault("MAIL_FROM_NAME", "TutorHub")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@tutorhub.local")
	v.SetDefault("ADMIN_NOTIFY_EMAIL", "")
	v.SetDefault("MAIL_SUBJECT_PREFIX", "[TutorHub]")
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("APP_PUBLIC_URL", "http://localhost:3000")

	v.SetDefault("ZOOM_DEFAULT_HOST", "me")
	v.SetDefault("ZOOM_BASE_URL", "https://api.zoom.us/v2")
	v.SetDefault("ZOOM_AUTH_URL", "https://zoom.us/oauth/token")
	v.SetDefault("ZOOM_TIMEOUT", "15s")

	v.SetDefault("SCHEDULING_ENFORCE_WINDOWS", false)
	v.SetDefault("SCHEDULING_MEETING_DURATION", 30)
	v.SetDefault("SCHEDULING_CLASS_DURATION", 60)
	v.SetDefault("SCHEDULING_TIMEZONE", "UTC")
	v.SetDefault("SCHEDULING_LOCK_TTL", "30s")

	v.SetDefault("UPLOADS_STORAGE_DIR", "./uploads")
	v.SetDefault("UPLOADS_MAX_CSV_BYTES", 2*1024*1024)
	v.SetDefault("UPLOADS_ARCHIVE_FILES", true)

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "30m")

	v.SetDefault("CHAT_SESSION_TTL", "30m")
	v.SetDefault("CHAT_MAX_SESSIONS", 1000)
	v.SetDefault("CHAT_MAX_MESSAGES", 50)

	v.SetDefault("PRICING_CACHE_TTL", "10m")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "5s")

	v.SetDefault("ROLLBAR_TOKEN", "")
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
