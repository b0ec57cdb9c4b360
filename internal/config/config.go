package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/trail-status/internal/trail"
)

var validate = validator.New()

type AppConfig struct {
	Port string `validate:"required,numeric"`

	OpenWeatherAPIKey string
	WebhookURL        string `validate:"omitempty,url"`

	// Trails is loaded once from TrailsFile (or the built-in table) and never mutated.
	TrailsFile string
	Trails     []trail.Config `validate:"-"`

	Timezone         string
	Location         *time.Location `validate:"-"`
	DaytimeStartHour int            `validate:"gte=0,lte=23"`
	DaytimeEndHour   int            `validate:"gte=0,lte=23,gtefield=DaytimeStartHour"`
	Units            string         `validate:"oneof=imperial metric"`

	FetchInterval    time.Duration `validate:"gte=1m"`
	HTTPTimeout      time.Duration `validate:"gt=0"`
	FetchMaxAttempts int           `validate:"gte=1,lte=10"`
	CacheMaxAge      time.Duration `validate:"gt=0"`
	ErrorCacheMaxAge time.Duration `validate:"gt=0"`
	CycleTimeout     time.Duration `validate:"gt=0"`

	StoreBackend  string `validate:"oneof=file redis memory"`
	StatusFile    string `validate:"required_if=StoreBackend file"`
	RedisAddr     string `validate:"required_if=StoreBackend redis"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`
	RedisKey      string

	LogLevel        string        `validate:"oneof=debug info warn error"`
	LogFormat       string        `validate:"oneof=json text"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// Load reads configuration from the environment (and an optional .env file) with
// defaults, then loads the trail table.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "error", err)
	}

	cfg := &AppConfig{
		Port:              getenvDefault("PORT", "8080"),
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		WebhookURL:        os.Getenv("WEBHOOK_URL"),
		TrailsFile:        getenvDefault("TRAILS_FILE", "trails.toml"),
		Timezone:          getenvDefault("TIMEZONE", "America/New_York"),
		Units:             getenvDefault("UNITS", "imperial"),
		StoreBackend:      getenvDefault("STORE_BACKEND", "file"),
		StatusFile:        getenvDefault("STATUS_FILE", "data/statuses.json"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisKey:          getenvDefault("REDIS_KEY", "trail_statuses_v1"),
		LogLevel:          getenvDefault("LOG_LEVEL", "info"),
		LogFormat:         getenvDefault("LOG_FORMAT", "json"),
	}

	var err error
	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"DAYTIME_START_HOUR", 6, &cfg.DaytimeStartHour},
		{"DAYTIME_END_HOUR", 21, &cfg.DaytimeEndHour},
		{"FETCH_MAX_ATTEMPTS", 3, &cfg.FetchMaxAttempts},
		{"REDIS_DB", 0, &cfg.RedisDB},
	}
	for _, v := range ints {
		if *v.dst, err = getenvInt(v.key, v.def); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"FETCH_INTERVAL", "30m", &cfg.FetchInterval},
		{"HTTP_TIMEOUT", "10s", &cfg.HTTPTimeout},
		{"CACHE_MAX_AGE", "2h", &cfg.CacheMaxAge},
		{"ERROR_CACHE_MAX_AGE", "5m", &cfg.ErrorCacheMaxAge},
		{"CYCLE_TIMEOUT", "60s", &cfg.CycleTimeout},
		{"SHUTDOWN_TIMEOUT", "10s", &cfg.ShutdownTimeout},
	}
	for _, v := range durations {
		if *v.dst, err = getenvDuration(v.key, v.def); err != nil {
			return nil, err
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Location, err = time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	cfg.Trails, err = LoadTrails(cfg.TrailsFile)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *AppConfig) Addr() string {
	return ":" + c.Port
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
