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

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Ledger    LedgerConfig
	Scheduler SchedulerConfig
	Sweep     SweepConfig
	Notify    NotifyConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LedgerConfig carries institute-wide ledger settings.
type LedgerConfig struct {
	Timezone         string
	SystemActorID    string
	RenewalDaysAhead int
}

// SchedulerConfig drives the cron-triggered sweeps.
type SchedulerConfig struct {
	Enabled     bool
	ExpiryCron  string
	RenewalCron string
}

// SweepConfig tunes the opportunistic per-request expiry sweep.
type SweepConfig struct {
	OnRequest   bool
	MinInterval time.Duration
	LockTTL     time.Duration
}

// NotifyConfig sizes the notification dispatch queue.
type NotifyConfig struct {
	Workers    int
	Retries    int
	BufferSize int
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
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	daysAhead := v.GetInt("RENEWAL_DAYS_AHEAD")
	if daysAhead < 0 {
		daysAhead = 7
	}
	cfg.Ledger = LedgerConfig{
		Timezone:         v.GetString("LEDGER_TIMEZONE"),
		SystemActorID:    v.GetString("LEDGER_SYSTEM_ACTOR_ID"),
		RenewalDaysAhead: daysAhead,
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:     v.GetBool("SCHEDULER_ENABLED"),
		ExpiryCron:  v.GetString("EXPIRY_CRON"),
		RenewalCron: v.GetString("RENEWAL_CRON"),
	}

	cfg.Sweep = SweepConfig{
		OnRequest:   v.GetBool("SWEEP_ON_REQUEST"),
		MinInterval: parseDuration(v.GetString("SWEEP_MIN_INTERVAL"), time.Minute),
		LockTTL:     parseDuration(v.GetString("SWEEP_LOCK_TTL"), 2*time.Minute),
	}

	cfg.Notify = NotifyConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		Retries:    v.GetInt("NOTIFY_RETRIES"),
		BufferSize: v.GetInt("NOTIFY_BUFFER"),
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
	v.SetDefault("DB_NAME", "tuition_ledger")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LEDGER_TIMEZONE", "UTC")
	v.SetDefault("LEDGER_SYSTEM_ACTOR_ID", "system")
	v.SetDefault("RENEWAL_DAYS_AHEAD", 7)

	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("EXPIRY_CRON", "5 0 * * *")
	v.SetDefault("RENEWAL_CRON", "15 0 * * *")

	v.SetDefault("SWEEP_ON_REQUEST", true)
	v.SetDefault("SWEEP_MIN_INTERVAL", "1m")
	v.SetDefault("SWEEP_LOCK_TTL", "2m")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_BUFFER", 64)
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
