package database

import "time"

// PoolConfig holds database/sql pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns" env:"WEATHER_DB_MAX_OPEN_CONNS" validate:"gte=0"`
	MaxIdleConns           int `yaml:"max_idle_conns" env:"WEATHER_DB_MAX_IDLE_CONNS" validate:"gte=0"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes" env:"WEATHER_DB_CONN_MAX_LIFETIME_MINUTES" validate:"gte=0"`
}

// ConnMaxLifetime returns the pool lifetime as a duration; zero means unlimited.
func (p PoolConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(p.ConnMaxLifetimeMinutes) * time.Minute
}

// DatabaseConfig describes the warehouse connection. For the sqlite type,
// Database is a file path (or ":memory:") and Host/Port/User/Password are
// ignored.
type DatabaseConfig struct {
	Type     string     `yaml:"type" env:"WEATHER_DB_TYPE" validate:"oneof=postgres mysql sqlite"`
	Host     string     `yaml:"host" env:"WEATHER_DB_HOST" validate:"required_unless=Type sqlite"`
	Port     int        `yaml:"port" env:"WEATHER_DB_PORT" validate:"required_unless=Type sqlite,gte=0,lte=65535"`
	Database string     `yaml:"database" env:"WEATHER_DB_NAME" validate:"required"`
	User     string     `yaml:"user" env:"WEATHER_DB_USER" validate:"required_unless=Type sqlite"`
	Password string     `yaml:"password" env:"WEATHER_DB_PASSWORD" validate:"required_unless=Type sqlite"`
	Schema   string     `yaml:"schema" env:"WEATHER_DB_SCHEMA" validate:"required"`
	Sslmode  string     `yaml:"sslmode" env:"WEATHER_DB_SSLMODE"`
	Pool     PoolConfig `yaml:"pool"`
	// SQLLogLevel is the gorm log level: silent, error, warn or info.
	SQLLogLevel string `yaml:"sql_log_level" env:"WEATHER_DB_SQL_LOG_LEVEL"`
	// Attach lists additional schemas made reachable on sqlite connections.
	Attach []string `yaml:"attach"`
}

// Redacted returns a copy safe for logging.
func (c DatabaseConfig) Redacted() DatabaseConfig {
	if c.Password != "" {
		c.Password = "****"
	}
	return c
}
