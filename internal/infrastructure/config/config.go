package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	OTLP    OTLPConfig
	Log     LogConfig
	Storage StorageConfig
	Assets  AssetsConfig
	Cache   CacheConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	MaxUploadBytes  int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
}

type OTLPConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Environment string
}

type LogConfig struct {
	Level string
}

// StorageConfig selects the product repository backend: memory, mongo or postgres
type StorageConfig struct {
	Driver          string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	PostgresURL     string
	QueryTimeout    time.Duration
}

// AssetsConfig selects the asset store backend: disk or jetstream
type AssetsConfig struct {
	Driver        string
	UploadDir     string
	PublicBaseURL string
	NatsURL       string
	Bucket        string
}

type CacheConfig struct {
	Enabled   bool
	RedisAddr string
	Prefix    string
	TTL       time.Duration
}

// env bindings keep the variable names operators already use
var envKeys = map[string]string{
	"server.host":              "SERVER_HOST",
	"server.port":              "SERVER_PORT",
	"server.max_upload_bytes":  "MAX_UPLOAD_BYTES",
	"server.read_timeout":      "SERVER_READ_TIMEOUT",
	"server.write_timeout":     "SERVER_WRITE_TIMEOUT",
	"server.shutdown_timeout":  "SERVER_SHUTDOWN_TIMEOUT",
	"server.rate_limit_rps":    "RATE_LIMIT_RPS",
	"server.rate_limit_burst":  "RATE_LIMIT_BURST",
	"otlp.enabled":             "OTEL_ENABLED",
	"otlp.endpoint":            "OTEL_EXPORTER_OTLP_ENDPOINT",
	"otlp.service_name":        "OTEL_SERVICE_NAME",
	"otlp.environment":         "OTEL_ENVIRONMENT",
	"log.level":                "LOG_LEVEL",
	"storage.driver":           "STORAGE_DRIVER",
	"storage.mongo_uri":        "MONGO_URI",
	"storage.mongo_database":   "MONGO_DATABASE",
	"storage.mongo_collection": "MONGO_COLLECTION",
	"storage.postgres_url":     "DATABASE_URL",
	"storage.query_timeout":    "STORAGE_QUERY_TIMEOUT",
	"assets.driver":            "ASSETS_DRIVER",
	"assets.upload_dir":        "UPLOAD_DIR",
	"assets.public_base_url":   "PUBLIC_BASE_URL",
	"assets.nats_url":          "NATS_URL",
	"assets.bucket":            "ASSETS_BUCKET",
	"cache.enabled":            "CACHE_ENABLED",
	"cache.redis_addr":         "REDIS_ADDR",
	"cache.prefix":             "CACHE_PREFIX",
	"cache.ttl":                "CACHE_TTL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)

	v.SetDefault("otlp.enabled", false)
	v.SetDefault("otlp.endpoint", "localhost:4317")
	v.SetDefault("otlp.service_name", "catalog-api")
	v.SetDefault("otlp.environment", "development")

	v.SetDefault("log.level", "info")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.mongo_database", "catalog")
	v.SetDefault("storage.mongo_collection", "products")
	v.SetDefault("storage.query_timeout", 3*time.Second)

	v.SetDefault("assets.driver", "disk")
	v.SetDefault("assets.upload_dir", "uploads")
	v.SetDefault("assets.public_base_url", "")
	v.SetDefault("assets.bucket", "product-images")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.prefix", "catalog:")
	v.SetDefault("cache.ttl", 5*time.Minute)
}

// LoadConfig loads configuration from defaults, an optional config file and environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	_ = v.BindEnv("config_file", "CONFIG_FILE")

	// An explicit CONFIG_FILE must exist; ./config.yaml is optional
	explicit := v.GetString("config_file")
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetString("server.port"),
			MaxUploadBytes:  v.GetInt64("server.max_upload_bytes"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			RateLimitRPS:    v.GetFloat64("server.rate_limit_rps"),
			RateLimitBurst:  v.GetInt("server.rate_limit_burst"),
		},
		OTLP: OTLPConfig{
			Enabled:     v.GetBool("otlp.enabled"),
			Endpoint:    v.GetString("otlp.endpoint"),
			ServiceName: v.GetString("otlp.service_name"),
			Environment: v.GetString("otlp.environment"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
		Storage: StorageConfig{
			Driver:          strings.ToLower(v.GetString("storage.driver")),
			MongoURI:        v.GetString("storage.mongo_uri"),
			MongoDatabase:   v.GetString("storage.mongo_database"),
			MongoCollection: v.GetString("storage.mongo_collection"),
			PostgresURL:     v.GetString("storage.postgres_url"),
			QueryTimeout:    v.GetDuration("storage.query_timeout"),
		},
		Assets: AssetsConfig{
			Driver:        strings.ToLower(v.GetString("assets.driver")),
			UploadDir:     v.GetString("assets.upload_dir"),
			PublicBaseURL: v.GetString("assets.public_base_url"),
			NatsURL:       v.GetString("assets.nats_url"),
			Bucket:        v.GetString("assets.bucket"),
		},
		Cache: CacheConfig{
			Enabled:   v.GetBool("cache.enabled"),
			RedisAddr: v.GetString("cache.redis_addr"),
			Prefix:    v.GetString("cache.prefix"),
			TTL:       v.GetDuration("cache.ttl"),
		},
	}
}

// Validate checks that the selected backends have what they need to connect
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "mongo":
		if c.Storage.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo storage driver")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return errors.New("DATABASE_URL is required for the postgres storage driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Assets.Driver {
	case "disk":
		if c.Assets.UploadDir == "" {
			return errors.New("UPLOAD_DIR must not be empty")
		}
	case "jetstream":
		if c.Assets.NatsURL == "" {
			return errors.New("NATS_URL is required for the jetstream assets driver")
		}
	default:
		return fmt.Errorf("unknown assets driver %q", c.Assets.Driver)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}
