package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Lock     LockConfig     `mapstructure:"lock"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // "development" or "production"
	// HTTPErrorStatus sends failed envelopes with a matching 4xx/5xx status.
	// Off by default: failures are reported as 200 with success=false.
	HTTPErrorStatus bool `mapstructure:"http_error_status"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`            // "sqlite" or "postgres"
	DSN             string `mapstructure:"dsn"`               // Connection string
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`    // Maximum idle connections (Postgres)
	MaxOpenConns    int    `mapstructure:"max_open_conns"`    // Maximum open connections (Postgres)
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // Connection max lifetime in minutes (Postgres)
	LogLevel        string `mapstructure:"log_level"`         // GORM log level, defaults to log.level
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Format string `mapstructure:"format"` // "json" or "text"
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
}

// LockConfig selects how client-number allocation is serialized.
type LockConfig struct {
	Type       string        `mapstructure:"type"`        // "memory" or "valkey"
	ValkeyAddr string        `mapstructure:"valkey_addr"` // e.g. "localhost:6379"
	TTL        time.Duration `mapstructure:"ttl"`         // valkey lease, renewed every ttl/3 while held
}

// StorageConfig holds attachment storage configuration
type StorageConfig struct {
	Type               string `mapstructure:"type"` // "local" or "minio"
	LocalDir           string `mapstructure:"local_dir"`
	MinioEndpoint      string `mapstructure:"minio_endpoint"`
	MinioAccessKey     string `mapstructure:"minio_access_key"`
	MinioSecretKey     string `mapstructure:"minio_secret_key"`
	MinioBucket        string `mapstructure:"minio_bucket"`
	MinioUseSSL        bool   `mapstructure:"minio_use_ssl"`
	MaxAttachmentBytes int64  `mapstructure:"max_attachment_bytes"`
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	ExpiryInterval time.Duration `mapstructure:"expiry_interval"`
}

// Load reads configuration from .env, config file and environment variables
func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/portal/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override
	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8460)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.http_error_status", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./portal.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60) // 60 minutes
	v.SetDefault("database.log_level", "")
	v.SetDefault("auth.jwt_secret", "change-me-in-production")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "info")
	v.SetDefault("lock.type", "memory")
	v.SetDefault("lock.valkey_addr", "localhost:6379")
	v.SetDefault("lock.ttl", 10*time.Second)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_dir", "./data/attachments")
	v.SetDefault("storage.minio_endpoint", "localhost:9000")
	v.SetDefault("storage.minio_bucket", "role-attachments")
	v.SetDefault("storage.minio_use_ssl", false)
	v.SetDefault("storage.max_attachment_bytes", 5<<20)
	v.SetDefault("worker.expiry_interval", time.Hour)
}
