package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | prod
		Env     string `yaml:"env"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		// sqlite | postgres
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	Notify struct {
		// memory | redis
		Backend string        `yaml:"backend"`
		TTL     time.Duration `yaml:"ttl"`
	} `yaml:"notify"`

	Redis struct {
		Host     string `yaml:"host"`
		Password string `yaml:"password"`
	} `yaml:"redis"`

	Kafka struct {
		Broker string `yaml:"broker"`
		Topic  string `yaml:"topic"`
		Group  string `yaml:"group"`
	} `yaml:"kafka"`

	Elasticsearch struct {
		URL   string `yaml:"url"`
		Index string `yaml:"index"`
	} `yaml:"elasticsearch"`

	Sentry struct {
		DSN string `yaml:"dsn"`
	} `yaml:"sentry"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	var c Config
	c.App.Env = "dev"
	c.App.Version = "dev"
	c.Log.Level = "info"
	c.Server.Addr = "127.0.0.1:8080"
	c.Storage.Driver = "sqlite"
	c.Storage.Path = "data/CRM_Database_V2.db"
	c.Notify.Backend = "memory"
	c.Notify.TTL = 3 * time.Second
	c.Kafka.Topic = "client_events"
	c.Kafka.Group = "crm-indexer"
	c.Elasticsearch.Index = "clients"
	return c
}

// Load reads .env (if present), then the YAML file at path (if non-empty),
// then applies environment overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(c *Config) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	str("APP_ENV", &c.App.Env)
	str("APP_VERSION", &c.App.Version)
	str("LOG_LEVEL", &c.Log.Level)
	str("HTTP_ADDR", &c.Server.Addr)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("STORAGE_PATH", &c.Storage.Path)
	str("DATABASE_DSN", &c.Storage.DSN)
	str("NOTIFY_BACKEND", &c.Notify.Backend)
	str("REDIS_HOST", &c.Redis.Host)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("KAFKA_BROKER", &c.Kafka.Broker)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("KAFKA_GROUP", &c.Kafka.Group)
	str("ELASTICSEARCH_URL", &c.Elasticsearch.URL)
	str("ELASTICSEARCH_INDEX", &c.Elasticsearch.Index)
	str("SENTRY_DSN", &c.Sentry.DSN)

	if v := strings.TrimSpace(os.Getenv("NOTIFY_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NOTIFY_TTL: %w", err)
		}
		c.Notify.TTL = d
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite"))
		}
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	switch c.Notify.Backend {
	case "memory":
	case "redis":
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("redis.host is required for the redis notify backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notify backend %q", c.Notify.Backend))
	}

	if c.Notify.TTL <= 0 {
		errs = append(errs, errors.New("notify.ttl must be positive"))
	}

	return errors.Join(errs...)
}
