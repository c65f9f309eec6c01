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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Blob          BlobConfig
	Pipeline      PipelineConfig
	Search        SearchConfig
	Notifications NotificationConfig
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

// BlobConfig locates the on-disk blob store and its logical containers.
type BlobConfig struct {
	BaseDir          string
	BranchDir        string
	MaxUploadBytes   int64
	AllowedFormats   []string
	RawContainer     string
	DerivedContainer string
}

// PipelineConfig governs the derivative pipeline workers and converters.
type PipelineConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
	ConverterTimeout  time.Duration
	DiffTimeout       time.Duration
	NotationConverter string
	Linearizer        string
	Renderer          string
	DiffRenderer      string
	RenderEnabled     bool
	DiffEnabled       bool
}

// SearchConfig controls the best-effort search index push.
type SearchConfig struct {
	Enabled     bool
	KeyPrefix   string
	DocumentTTL time.Duration
}

// NotificationConfig toggles watcher notification dispatch.
type NotificationConfig struct {
	Enabled bool
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

	maxUpload := v.GetInt64("BLOB_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 25 * 1024 * 1024
	}
	cfg.Blob = BlobConfig{
		BaseDir:          v.GetString("BLOB_BASE_DIR"),
		BranchDir:        v.GetString("BLOB_BRANCH_DIR"),
		MaxUploadBytes:   maxUpload,
		AllowedFormats:   splitAndTrim(v.GetString("BLOB_ALLOWED_FORMATS")),
		RawContainer:     v.GetString("BLOB_RAW_CONTAINER"),
		DerivedContainer: v.GetString("BLOB_DERIVED_CONTAINER"),
	}

	cfg.Pipeline = PipelineConfig{
		WorkerConcurrency: v.GetInt("PIPELINE_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("PIPELINE_WORKER_RETRIES"),
		ConverterTimeout:  parseDuration(v.GetString("PIPELINE_CONVERTER_TIMEOUT"), 2*time.Minute),
		DiffTimeout:       parseDuration(v.GetString("PIPELINE_DIFF_TIMEOUT"), 3*time.Minute),
		NotationConverter: v.GetString("PIPELINE_NOTATION_CONVERTER"),
		Linearizer:        v.GetString("PIPELINE_LINEARIZER"),
		Renderer:          v.GetString("PIPELINE_RENDERER"),
		DiffRenderer:      v.GetString("PIPELINE_DIFF_RENDERER"),
		RenderEnabled:     v.GetBool("PIPELINE_RENDER_ENABLED"),
		DiffEnabled:       v.GetBool("PIPELINE_DIFF_ENABLED"),
	}

	cfg.Search = SearchConfig{
		Enabled:     v.GetBool("SEARCH_INDEX_ENABLED"),
		KeyPrefix:   v.GetString("SEARCH_INDEX_KEY_PREFIX"),
		DocumentTTL: parseDuration(v.GetString("SEARCH_INDEX_DOCUMENT_TTL"), 0),
	}

	cfg.Notifications = NotificationConfig{
		Enabled: v.GetBool("NOTIFICATIONS_ENABLED"),
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
	v.SetDefault("DB_NAME", "scorehub")
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

	v.SetDefault("BLOB_BASE_DIR", "./blobs")
	v.SetDefault("BLOB_BRANCH_DIR", "./branches")
	v.SetDefault("BLOB_MAX_UPLOAD_BYTES", 25*1024*1024)
	v.SetDefault("BLOB_ALLOWED_FORMATS", "mscz,mxl,musicxml,xml,krn,pdf")
	v.SetDefault("BLOB_RAW_CONTAINER", "raw")
	v.SetDefault("BLOB_DERIVED_CONTAINER", "derived")

	v.SetDefault("PIPELINE_WORKER_CONCURRENCY", 2)
	v.SetDefault("PIPELINE_WORKER_RETRIES", 1)
	v.SetDefault("PIPELINE_CONVERTER_TIMEOUT", "2m")
	v.SetDefault("PIPELINE_DIFF_TIMEOUT", "3m")
	v.SetDefault("PIPELINE_NOTATION_CONVERTER", "mscore")
	v.SetDefault("PIPELINE_LINEARIZER", "linearize.py")
	v.SetDefault("PIPELINE_RENDERER", "verovio")
	v.SetDefault("PIPELINE_DIFF_RENDERER", "musicdiff_pdf.py")
	v.SetDefault("PIPELINE_RENDER_ENABLED", true)
	v.SetDefault("PIPELINE_DIFF_ENABLED", true)

	v.SetDefault("SEARCH_INDEX_ENABLED", true)
	v.SetDefault("SEARCH_INDEX_KEY_PREFIX", "search:work:")
	v.SetDefault("SEARCH_INDEX_DOCUMENT_TTL", "0")

	v.SetDefault("NOTIFICATIONS_ENABLED", true)
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
