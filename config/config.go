package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cassandra CassandraConfig `mapstructure:"cassandra"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Timeline  TimelineConfig  `mapstructure:"timeline"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Repair    RepairConfig    `mapstructure:"repair"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	PostRateLimit   float64       `mapstructure:"post_rate_limit"`
	PostRateBurst   int           `mapstructure:"post_rate_burst"`
}

// StoreConfig selects the column store backend: sqlite, postgres, redis or cassandra.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type CassandraConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type TimelineConfig struct {
	MaxBodyLength         int           `mapstructure:"max_body_length"`
	DefaultPageSize       int           `mapstructure:"default_page_size"`
	MaxPageSize           int           `mapstructure:"max_page_size"`
	FanOutConcurrency     int           `mapstructure:"fanout_concurrency"`
	FanOutFollowerLimit   int           `mapstructure:"fanout_follower_limit"`
	ResolveBatchSize      int           `mapstructure:"resolve_batch_size"`
	ResolveTimeout        time.Duration `mapstructure:"resolve_timeout"`
	SerializeAuthorFanOut bool          `mapstructure:"serialize_author_fanout"`
	BcryptCost            int           `mapstructure:"bcrypt_cost"`
}

// CacheConfig configures the tweet body cache: none, redis or memcache.
type CacheConfig struct {
	Driver        string        `mapstructure:"driver"`
	TTL           time.Duration `mapstructure:"ttl"`
	MemcacheAddrs []string      `mapstructure:"memcache_addrs"`
}

// RepairConfig configures asynchronous fan-out repair: none, memory or amqp.
type RepairConfig struct {
	Driver      string `mapstructure:"driver"`
	AMQPURL     string `mapstructure:"amqp_url"`
	Queue       string `mapstructure:"queue"`
	Workers     int    `mapstructure:"workers"`
	QueueSize   int    `mapstructure:"queue_size"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.post_rate_limit", 5.0)
	v.SetDefault("server.post_rate_burst", 10)

	v.SetDefault("store.driver", "sqlite")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "twissandra.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 50)

	v.SetDefault("cassandra.hosts", []string{"127.0.0.1"})
	v.SetDefault("cassandra.keyspace", "twissandra")
	v.SetDefault("cassandra.consistency", "quorum")
	v.SetDefault("cassandra.timeout", 2*time.Second)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_interval", 50*time.Millisecond)
	v.SetDefault("retry.max_interval", time.Second)

	v.SetDefault("timeline.max_body_length", 140)
	v.SetDefault("timeline.default_page_size", 40)
	v.SetDefault("timeline.max_page_size", 100)
	v.SetDefault("timeline.fanout_concurrency", 64)
	v.SetDefault("timeline.fanout_follower_limit", 5000)
	v.SetDefault("timeline.resolve_batch_size", 20)
	v.SetDefault("timeline.resolve_timeout", 500*time.Millisecond)
	v.SetDefault("timeline.serialize_author_fanout", true)
	v.SetDefault("timeline.bcrypt_cost", 10)

	v.SetDefault("cache.driver", "none")
	v.SetDefault("cache.ttl", 10*time.Minute)

	v.SetDefault("repair.driver", "memory")
	v.SetDefault("repair.queue", "fanout-repair")
	v.SetDefault("repair.workers", 4)
	v.SetDefault("repair.queue_size", 10000)
	v.SetDefault("repair.max_attempts", 5)

	v.SetDefault("jwt.ttl", 24*time.Hour)

	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("tracing.service_name", "twissandra")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load 读取 ./config.yaml 或 ./config/config.yaml（可选），再叠加 TWISSANDRA_* 环境变量
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads the given file; an empty path searches the default locations
// and tolerates a missing file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TWISSANDRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres", "redis", "cassandra":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.Cache.Driver {
	case "none", "redis", "memcache":
	default:
		return fmt.Errorf("config: unknown cache driver %q", c.Cache.Driver)
	}
	switch c.Repair.Driver {
	case "none", "memory", "amqp":
	default:
		return fmt.Errorf("config: unknown repair driver %q", c.Repair.Driver)
	}
	if c.Timeline.MaxBodyLength <= 0 {
		return errors.New("config: timeline.max_body_length must be positive")
	}
	if c.Timeline.MaxPageSize <= 0 || c.Timeline.DefaultPageSize <= 0 || c.Timeline.DefaultPageSize > c.Timeline.MaxPageSize {
		return errors.New("config: timeline page sizes must satisfy 0 < default_page_size <= max_page_size")
	}
	return nil
}
