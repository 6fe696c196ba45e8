// Package config loads the weatherdw configuration from the embedded
// application.yaml, an optional .env file and the process environment.
package config

import (
	"time"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	"github.com/tigerroll/weatherdw/internal/adapter/storage"
)

// EmbeddedConfig holds the raw bytes of the embedded application.yaml.
type EmbeddedConfig []byte

// Config is the root configuration object.
type Config struct {
	Weather WeatherConfig `yaml:"weather"`
}

type WeatherConfig struct {
	System    SystemConfig            `yaml:"system"`
	Database  database.DatabaseConfig `yaml:"database"`
	API       APIConfig               `yaml:"api"`
	Pipeline  PipelineConfig          `yaml:"pipeline"`
	Transform TransformConfig         `yaml:"transform"`
	Export    ExportConfig            `yaml:"export"`
	Metrics   MetricsConfig           `yaml:"metrics"`
	Tracing   TracingConfig           `yaml:"tracing"`
	Server    ServerConfig            `yaml:"server"`
	Schedule  ScheduleConfig          `yaml:"schedule"`
}

type SystemConfig struct {
	// Timezone interprets API timestamps without an explicit offset and
	// decides which calendar date an observation belongs to.
	Timezone string        `yaml:"timezone" env:"WEATHER_TIMEZONE" validate:"required,timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

type LoggingConfig struct {
	Level string `yaml:"level" env:"WEATHER_LOG_LEVEL" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL debug info warn error fatal"`
}

// APIConfig configures the Open-Meteo fetch client.
type APIConfig struct {
	BaseURL         string      `yaml:"base_url" env:"WEATHER_API_URL" validate:"required,url"`
	TimeoutSeconds  int         `yaml:"timeout_seconds" env:"WEATHER_API_TIMEOUT_SECONDS" validate:"gt=0"`
	ForecastHours   int         `yaml:"forecast_hours" env:"WEATHER_FORECAST_HOURS" validate:"gt=0,lte=384"`
	CacheTTLSeconds int         `yaml:"cache_ttl_seconds" env:"WEATHER_API_CACHE_TTL_SECONDS" validate:"gte=0"`
	Concurrency     int         `yaml:"concurrency" env:"WEATHER_FETCH_CONCURRENCY" validate:"gte=1,lte=64"`
	UserAgent       string      `yaml:"user_agent"`
	Retry           RetryConfig `yaml:"retry"`
}

// Timeout returns the per-request timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheTTL returns the response cache lifetime; zero disables the cache.
func (c APIConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RetryConfig configures HTTP retries and the circuit breaker.
type RetryConfig struct {
	MaxAttempts                int     `yaml:"max_attempts" env:"WEATHER_API_MAX_ATTEMPTS" validate:"gte=1"`
	InitialIntervalMillis      int     `yaml:"initial_interval_millis" validate:"gte=0"`
	MaxIntervalMillis          int     `yaml:"max_interval_millis" validate:"gte=0"`
	Factor                     float64 `yaml:"factor" validate:"gte=1"`
	CircuitBreakerThreshold    int     `yaml:"circuit_breaker_threshold" validate:"gte=0"`
	CircuitBreakerResetSeconds int     `yaml:"circuit_breaker_reset_seconds" validate:"gte=0"`
}

type PipelineConfig struct {
	// JobName is the job run when none is given on the command line.
	JobName string `yaml:"job_name" env:"WEATHER_JOB_NAME"`
	// CatalogPath overrides the catalog path of the job definition.
	CatalogPath    string   `yaml:"catalog_path" env:"WEATHER_CATALOG_PATH"`
	AllowedSchemas []string `yaml:"allowed_schemas" env:"WEATHER_ALLOWED_SCHEMAS" validate:"min=1,dive,required"`
}

// TransformConfig configures the post-load transformation process.
type TransformConfig struct {
	Enabled        bool     `yaml:"enabled" env:"WEATHER_TRANSFORM_ENABLED"`
	Command        string   `yaml:"command" env:"WEATHER_TRANSFORM_COMMAND" validate:"required_if=Enabled true"`
	RunArgs        []string `yaml:"run_args" env:"WEATHER_TRANSFORM_RUN_ARGS"`
	TestArgs       []string `yaml:"test_args" env:"WEATHER_TRANSFORM_TEST_ARGS"`
	WorkDir        string   `yaml:"work_dir" env:"WEATHER_TRANSFORM_WORK_DIR"`
	TimeoutMinutes int      `yaml:"timeout_minutes" validate:"gte=0"`
}

type ExportConfig struct {
	Enabled       bool                  `yaml:"enabled" env:"WEATHER_EXPORT_ENABLED"`
	Storage       storage.StorageConfig `yaml:"storage"`
	OutputBaseDir string                `yaml:"output_base_dir" env:"WEATHER_EXPORT_OUTPUT_BASE_DIR"`
	Compression   string                `yaml:"compression" validate:"omitempty,oneof=snappy gzip zstd uncompressed"`
}

type MetricsConfig struct {
	Namespace      string `yaml:"namespace"`
	PushgatewayURL string `yaml:"pushgateway_url" env:"WEATHER_PUSHGATEWAY_URL" validate:"omitempty,url"`
}

type TracingConfig struct {
	// Exporter is "none", "otlphttp" or "otlpgrpc".
	Exporter    string `yaml:"exporter" env:"WEATHER_TRACING_EXPORTER" validate:"omitempty,oneof=none otlphttp otlpgrpc"`
	Endpoint    string `yaml:"endpoint" env:"WEATHER_TRACING_ENDPOINT"`
	Insecure    bool   `yaml:"insecure" env:"WEATHER_TRACING_INSECURE"`
	ServiceName string `yaml:"service_name"`
}

type ServerConfig struct {
	Address           string   `yaml:"address" env:"WEATHER_SERVER_ADDR"`
	StaleAfterMinutes int      `yaml:"stale_after_minutes" env:"WEATHER_STALE_AFTER_MINUTES" validate:"gt=0"`
	AllowedOrigins    []string `yaml:"allowed_origins" env:"WEATHER_SERVER_ALLOWED_ORIGINS"`
}

// StaleAfter is the age after which stored data is reported as stale.
func (c ServerConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

type ScheduleConfig struct {
	Cron string   `yaml:"cron" env:"WEATHER_SCHEDULE_CRON" validate:"required"`
	Jobs []string `yaml:"jobs" env:"WEATHER_SCHEDULE_JOBS"`
}

// NewConfig returns the built-in defaults; application.yaml and the
// environment are layered on top.
func NewConfig() *Config {
	return &Config{
		Weather: WeatherConfig{
			System: SystemConfig{
				Timezone: "America/New_York",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Database: database.DatabaseConfig{
				Type:        "postgres",
				Sslmode:     "disable",
				SQLLogLevel: "silent",
				Pool: database.PoolConfig{
					MaxOpenConns:           5,
					MaxIdleConns:           2,
					ConnMaxLifetimeMinutes: 30,
				},
			},
			API: APIConfig{
				BaseURL:         "https://api.open-meteo.com/v1/forecast",
				TimeoutSeconds:  10,
				ForecastHours:   168,
				CacheTTLSeconds: 900,
				Concurrency:     4,
				UserAgent:       "weatherdw",
				Retry: RetryConfig{
					MaxAttempts:                5,
					InitialIntervalMillis:      200,
					MaxIntervalMillis:          5000,
					Factor:                     2.0,
					CircuitBreakerThreshold:    10,
					CircuitBreakerResetSeconds: 60,
				},
			},
			Pipeline: PipelineConfig{
				JobName:        "pittsburghForecastJob",
				AllowedSchemas: []string{"nyc", "pittsburgh", "weather"},
			},
			Transform: TransformConfig{
				Command:        "dbt",
				RunArgs:        []string{"run"},
				TestArgs:       []string{"test"},
				TimeoutMinutes: 30,
			},
			Export: ExportConfig{
				Storage:       storage.StorageConfig{Type: "local", BaseDir: "./export"},
				OutputBaseDir: "hourly_forecast",
				Compression:   "snappy",
			},
			Metrics: MetricsConfig{Namespace: "weatherdw"},
			Tracing: TracingConfig{Exporter: "none", ServiceName: "weatherdw"},
			Server: ServerConfig{
				Address:           ":8080",
				StaleAfterMinutes: 120,
			},
			Schedule: ScheduleConfig{Cron: "0 * * * *"},
		},
	}
}

// Location returns the configured time zone. Validation guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Weather.System.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabaseConfigs returns the named connection configurations.
func (c *Config) DatabaseConfigs() map[string]database.DatabaseConfig {
	return map[string]database.DatabaseConfig{database.WarehouseConnection: c.Weather.Database}
}
