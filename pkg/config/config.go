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
	CORS          CORSConfig
	Log           LogConfig
	Upstream      UpstreamConfig
	Timetable     TimetableConfig
	Renderer      RendererConfig
	Notifications NotificationsConfig
	Export        ExportConfig
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

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UpstreamConfig points at the university scheduling source.
type UpstreamConfig struct {
	BaseURL    string
	Timeout    time.Duration
	SessionTTL time.Duration
}

// TimetableConfig tunes the week cache manager.
type TimetableConfig struct {
	CacheTTL      time.Duration
	SyncStaleness time.Duration
	HotCacheTTL   time.Duration
}

// RendererConfig governs the shared headless-browser renderer.
type RendererConfig struct {
	ExecPath       string
	ViewportWidth  int
	ViewportHeight int
	RenderTimeout  time.Duration
	StartTimeout   time.Duration
	ImageTTL       time.Duration
	ImageTTLExtend time.Duration
	DefaultStyle   string
}

// NotificationsConfig drives the periodic dispatch and resync jobs.
type NotificationsConfig struct {
	Enabled           bool
	DispatchSpec      string
	ResyncSpec        string
	DefaultLead       time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// ExportConfig toggles the PDF export endpoint.
type ExportConfig struct {
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

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Upstream = UpstreamConfig{
		BaseURL:    v.GetString("UPSTREAM_BASE_URL"),
		Timeout:    parseDuration(v.GetString("UPSTREAM_TIMEOUT"), 15*time.Second),
		SessionTTL: parseDuration(v.GetString("UPSTREAM_SESSION_TTL"), 12*time.Hour),
	}

	cfg.Timetable = TimetableConfig{
		CacheTTL:      parseDuration(v.GetString("TIMETABLE_CACHE_TTL"), time.Hour),
		SyncStaleness: parseDuration(v.GetString("TIMETABLE_SYNC_STALENESS"), 24*time.Hour),
		HotCacheTTL:   parseDuration(v.GetString("TIMETABLE_HOT_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Renderer = RendererConfig{
		ExecPath:       v.GetString("RENDERER_EXEC_PATH"),
		ViewportWidth:  v.GetInt("RENDERER_VIEWPORT_WIDTH"),
		ViewportHeight: v.GetInt("RENDERER_VIEWPORT_HEIGHT"),
		RenderTimeout:  parseDuration(v.GetString("RENDERER_RENDER_TIMEOUT"), 30*time.Second),
		StartTimeout:   parseDuration(v.GetString("RENDERER_START_TIMEOUT"), 20*time.Second),
		ImageTTL:       parseDuration(v.GetString("RENDERER_IMAGE_TTL"), 7*24*time.Hour),
		ImageTTLExtend: parseDuration(v.GetString("RENDERER_IMAGE_TTL_EXTEND"), 24*time.Hour),
		DefaultStyle:   v.GetString("RENDERER_DEFAULT_STYLE"),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:           v.GetBool("ENABLE_NOTIFICATIONS"),
		DispatchSpec:      v.GetString("NOTIFICATIONS_DISPATCH_SPEC"),
		ResyncSpec:        v.GetString("NOTIFICATIONS_RESYNC_SPEC"),
		DefaultLead:       parseDuration(v.GetString("NOTIFICATIONS_DEFAULT_LEAD"), 30*time.Minute),
		WorkerConcurrency: v.GetInt("NOTIFICATIONS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("NOTIFICATIONS_WORKER_RETRIES"),
	}

	cfg.Export = ExportConfig{
		Enabled: v.GetBool("ENABLE_PDF_EXPORT"),
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
	v.SetDefault("DB_NAME", "studtime")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPSTREAM_BASE_URL", "https://schedule.example.edu/api")
	v.SetDefault("UPSTREAM_TIMEOUT", "15s")
	v.SetDefault("UPSTREAM_SESSION_TTL", "12h")

	v.SetDefault("TIMETABLE_CACHE_TTL", "1h")
	v.SetDefault("TIMETABLE_SYNC_STALENESS", "24h")
	v.SetDefault("TIMETABLE_HOT_CACHE_TTL", "10m")

	v.SetDefault("RENDERER_EXEC_PATH", "")
	v.SetDefault("RENDERER_VIEWPORT_WIDTH", 1600)
	v.SetDefault("RENDERER_VIEWPORT_HEIGHT", 900)
	v.SetDefault("RENDERER_RENDER_TIMEOUT", "30s")
	v.SetDefault("RENDERER_START_TIMEOUT", "20s")
	v.SetDefault("RENDERER_IMAGE_TTL", "168h")
	v.SetDefault("RENDERER_IMAGE_TTL_EXTEND", "24h")
	v.SetDefault("RENDERER_DEFAULT_STYLE", "default")

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("NOTIFICATIONS_DISPATCH_SPEC", "@every 1m")
	v.SetDefault("NOTIFICATIONS_RESYNC_SPEC", "0 5 * * *")
	v.SetDefault("NOTIFICATIONS_DEFAULT_LEAD", "30m")
	v.SetDefault("NOTIFICATIONS_WORKER_CONCURRENCY", 2)
	v.SetDefault("NOTIFICATIONS_WORKER_RETRIES", 3)

	v.SetDefault("ENABLE_PDF_EXPORT", false)
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
