package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	OIDC      OIDCConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	Queue     QueueConfig
	Render    RenderConfig
	Storage   StorageConfig
	Database  DatabaseConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
	// EmbeddedWorker runs the queue consumer inside the API process.
	EmbeddedWorker bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type OIDCConfig struct {
	Issuer   string
	ClientID string
}

type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	RenderPerHour int
}

type QueueConfig struct {
	Name           string
	Concurrency    int
	MaxAttempts    int
	BackoffBase    time.Duration
	ProbeTimeout   time.Duration
	EnqueueTimeout time.Duration
	Retention      time.Duration
}

type RenderConfig struct {
	MinVisibleChars  int
	MaxContentBytes  int
	SyncTimeout      time.Duration
	SyncConcurrency  int
	UploadsDir       string
	LogoFetchTimeout time.Duration
	DebugDir         string
}

type StorageConfig struct {
	Provider     string
	LocalRoot    string
	PublicPrefix string
	S3           S3Config
	GDrive       GDriveConfig
}

type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicURL       string
}

type GDriveConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	FolderID     string
}

type DatabaseConfig struct {
	URL string
	// SeedFile feeds the in-memory repositories when no database is configured.
	SeedFile string
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("DATABASE_URL")
	readSecret("S3_ACCESS_KEY_ID")
	readSecret("S3_SECRET_ACCESS_KEY")
	readSecret("GDRIVE_CLIENT_SECRET")
	readSecret("GDRIVE_REFRESH_TOKEN")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.embedded_worker", "EMBEDDED_WORKER")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = v.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = v.BindEnv("ratelimit.render_per_hour", "RATELIMIT_RENDER_PER_HOUR")
	_ = v.BindEnv("queue.name", "QUEUE_NAME")
	_ = v.BindEnv("queue.concurrency", "QUEUE_CONCURRENCY")
	_ = v.BindEnv("queue.max_attempts", "QUEUE_MAX_ATTEMPTS")
	_ = v.BindEnv("queue.backoff_base", "QUEUE_BACKOFF_BASE")
	_ = v.BindEnv("queue.probe_timeout", "QUEUE_PROBE_TIMEOUT")
	_ = v.BindEnv("queue.enqueue_timeout", "QUEUE_ENQUEUE_TIMEOUT")
	_ = v.BindEnv("queue.retention", "QUEUE_RETENTION")
	_ = v.BindEnv("render.min_visible_chars", "PDF_MIN_HTML_CHARS", "RENDER_MIN_VISIBLE_CHARS")
	_ = v.BindEnv("render.max_content_bytes", "RENDER_MAX_CONTENT_BYTES")
	_ = v.BindEnv("render.sync_timeout", "RENDER_SYNC_TIMEOUT")
	_ = v.BindEnv("render.sync_concurrency", "RENDER_SYNC_CONCURRENCY")
	_ = v.BindEnv("render.uploads_dir", "UPLOADS_DIR")
	_ = v.BindEnv("render.logo_fetch_timeout", "RENDER_LOGO_FETCH_TIMEOUT")
	_ = v.BindEnv("render.debug_dir", "RENDER_DEBUG_DIR")
	_ = v.BindEnv("storage.provider", "STORAGE_PROVIDER")
	_ = v.BindEnv("storage.local_root", "STORAGE_LOCAL_ROOT")
	_ = v.BindEnv("storage.public_prefix", "STORAGE_PUBLIC_PREFIX")
	_ = v.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("storage.s3.region", "S3_REGION")
	_ = v.BindEnv("storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	_ = v.BindEnv("storage.s3.bucket", "S3_BUCKET")
	_ = v.BindEnv("storage.s3.public_url", "S3_PUBLIC_URL")
	_ = v.BindEnv("storage.gdrive.client_id", "GDRIVE_CLIENT_ID")
	_ = v.BindEnv("storage.gdrive.client_secret", "GDRIVE_CLIENT_SECRET")
	_ = v.BindEnv("storage.gdrive.refresh_token", "GDRIVE_REFRESH_TOKEN")
	_ = v.BindEnv("storage.gdrive.folder_id", "GDRIVE_FOLDER_ID")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("database.seed_file", "DATA_SEED_FILE")

	setDefaults(v)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			Env:            v.GetString("server.env"),
			LogLevel:       v.GetString("server.log_level"),
			EmbeddedWorker: v.GetBool("server.embedded_worker"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		OIDC: OIDCConfig{
			Issuer:   v.GetString("oidc.issuer"),
			ClientID: v.GetString("oidc.client_id"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			RenderPerHour: v.GetInt("ratelimit.render_per_hour"),
		},
		Queue: QueueConfig{
			Name:           v.GetString("queue.name"),
			Concurrency:    v.GetInt("queue.concurrency"),
			MaxAttempts:    v.GetInt("queue.max_attempts"),
			BackoffBase:    v.GetDuration("queue.backoff_base"),
			ProbeTimeout:   v.GetDuration("queue.probe_timeout"),
			EnqueueTimeout: v.GetDuration("queue.enqueue_timeout"),
			Retention:      v.GetDuration("queue.retention"),
		},
		Render: RenderConfig{
			MinVisibleChars:  v.GetInt("render.min_visible_chars"),
			MaxContentBytes:  v.GetInt("render.max_content_bytes"),
			SyncTimeout:      v.GetDuration("render.sync_timeout"),
			SyncConcurrency:  v.GetInt("render.sync_concurrency"),
			UploadsDir:       v.GetString("render.uploads_dir"),
			LogoFetchTimeout: v.GetDuration("render.logo_fetch_timeout"),
			DebugDir:         v.GetString("render.debug_dir"),
		},
		Storage: StorageConfig{
			Provider:     v.GetString("storage.provider"),
			LocalRoot:    v.GetString("storage.local_root"),
			PublicPrefix: v.GetString("storage.public_prefix"),
			S3: S3Config{
				Endpoint:        v.GetString("storage.s3.endpoint"),
				Region:          v.GetString("storage.s3.region"),
				AccessKeyID:     v.GetString("storage.s3.access_key_id"),
				SecretAccessKey: v.GetString("storage.s3.secret_access_key"),
				Bucket:          v.GetString("storage.s3.bucket"),
				PublicURL:       v.GetString("storage.s3.public_url"),
			},
			GDrive: GDriveConfig{
				ClientID:     v.GetString("storage.gdrive.client_id"),
				ClientSecret: v.GetString("storage.gdrive.client_secret"),
				RefreshToken: v.GetString("storage.gdrive.refresh_token"),
				FolderID:     v.GetString("storage.gdrive.folder_id"),
			},
		},
		Database: DatabaseConfig{
			URL:      v.GetString("database.url"),
			SeedFile: v.GetString("database.seed_file"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.embedded_worker", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("gateway.enabled", false)
	v.SetDefault("ratelimit.render_per_hour", 60)

	// Queue defaults
	v.SetDefault("queue.name", "pdf-generation")
	v.SetDefault("queue.concurrency", 2)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.backoff_base", 2*time.Second)
	v.SetDefault("queue.probe_timeout", 1500*time.Millisecond)
	v.SetDefault("queue.enqueue_timeout", 2*time.Second)
	v.SetDefault("queue.retention", 24*time.Hour)

	// Render defaults
	v.SetDefault("render.min_visible_chars", 20)
	v.SetDefault("render.max_content_bytes", 512*1024)
	v.SetDefault("render.sync_timeout", 60*time.Second)
	v.SetDefault("render.sync_concurrency", 2)
	v.SetDefault("render.uploads_dir", "uploads")
	v.SetDefault("render.logo_fetch_timeout", 5*time.Second)

	// Storage defaults
	v.SetDefault("storage.provider", "localfs")
	v.SetDefault("storage.local_root", "pdfs")
	v.SetDefault("storage.public_prefix", "/pdfs")
	v.SetDefault("storage.s3.region", "auto")
}
