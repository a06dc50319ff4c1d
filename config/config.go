package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/marcelsud/webhook-dispatcher/subscription"
	"github.com/spf13/viper"
)

const envPrefix = "WEBHOOK_DISPATCHER"

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// StoreConfig selects a backend per store
type StoreConfig struct {
	Queue         string `mapstructure:"queue"`
	Log           string `mapstructure:"log"`
	Subscriptions string `mapstructure:"subscriptions"`
}

type SubscriptionsConfig struct {
	File      string        `mapstructure:"file"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size"`
}

type WorkerConfig struct {
	PoolSize             int           `mapstructure:"pool_size"`
	QueueSize            int           `mapstructure:"queue_size"`
	MaxResponseBodyBytes int64         `mapstructure:"max_response_body_bytes"`
	UserAgent            string        `mapstructure:"user_agent"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
}

// DeliveryConfig holds the defaults a subscription falls back to
type DeliveryConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	RetryCount       int           `mapstructure:"retry_count"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
}

type SignatureConfig struct {
	Algorithm string        `mapstructure:"algorithm"`
	Tolerance time.Duration `mapstructure:"tolerance"`
}

type SweeperConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	Batch      int           `mapstructure:"batch"`
}

type LogConfig struct {
	RetentionDays   int           `mapstructure:"retention_days"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type IntakeConfig struct {
	Size int `mapstructure:"size"`
}

// NATSConfig holds the JetStream intake bridge settings, an empty URL disables it
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Stream        string        `mapstructure:"stream"`
	Consumer      string        `mapstructure:"consumer"`
	Subject       string        `mapstructure:"subject"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	AckWait       time.Duration `mapstructure:"ack_wait"`
	MaxDeliver    int           `mapstructure:"max_deliver"`
}

type Config struct {
	Debug         bool                `mapstructure:"debug"`
	SentryDSN     string              `mapstructure:"sentry_dsn"`
	Server        ServerConfig        `mapstructure:"server"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Store         StoreConfig         `mapstructure:"store"`
	Subscriptions SubscriptionsConfig `mapstructure:"subscriptions"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Delivery      DeliveryConfig      `mapstructure:"delivery"`
	Signature     SignatureConfig     `mapstructure:"signature"`
	Sweeper       SweeperConfig       `mapstructure:"sweeper"`
	Log           LogConfig           `mapstructure:"log"`
	Intake        IntakeConfig        `mapstructure:"intake"`
	NATS          NATSConfig          `mapstructure:"nats"`
}

var defaults = map[string]any{
	"debug":                          false,
	"sentry_dsn":                     "",
	"server.port":                    8080,
	"server.read_timeout":            "15s",
	"server.write_timeout":           "60s",
	"redis.addr":                     "localhost:6379",
	"redis.password":                 "",
	"redis.db":                       0,
	"postgres.url":                   "",
	"store.queue":                    StoreMemory,
	"store.log":                      StoreMemory,
	"store.subscriptions":            StoreMemory,
	"subscriptions.file":             "subscriptions.yaml",
	"subscriptions.cache_ttl":        "30s",
	"subscriptions.cache_size":       1024,
	"worker.pool_size":               16,
	"worker.queue_size":              1024,
	"worker.max_response_body_bytes": 4096,
	"worker.user_agent":              "webhook-dispatcher/1.0",
	"worker.heartbeat_interval":      "15s",
	"delivery.timeout":               "10s",
	"delivery.retry_count":           3,
	"delivery.retry_delay":           "30s",
	"delivery.max_backoff":           "1h",
	"delivery.failure_threshold":     5,
	"signature.algorithm":            "sha256",
	"signature.tolerance":            "5m",
	"sweeper.interval":               "5s",
	"sweeper.stale_after":            "2m",
	"sweeper.batch":                  100,
	"log.retention_days":             30,
	"log.cleanup_interval":           "1h",
	"intake.size":                    256,
	"nats.url":                       "",
	"nats.stream":                    "EVENTS",
	"nats.consumer":                  "webhook-dispatcher",
	"nats.subject":                   "events.>",
	"nats.max_reconnects":            -1,
	"nats.reconnect_wait":            "2s",
	"nats.ack_wait":                  "30s",
	"nats.max_deliver":               5,
}

/* Load reads config.yaml (or configFile), then .env files from envPath, then
 * WEBHOOK_DISPATCHER_* environment variables, in increasing precedence.
 * A missing config.yaml is not an error when configFile is empty
 */
func Load(configFile string, envPath string) (*Config, error) {
	v := configureViper(configFile, envPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func configureViper(configFile string, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config/")
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees env vars for keys viper already knows about
	for key := range defaults {
		_ = v.BindEnv(key)
	}
	return v
}

// loadEnv exports .env then .env.local from envPath, later files win
func loadEnv(envPath string) {
	if envPath == "" {
		envPath = "config/"
	}
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Overload(filepath.Join(envPath, envFile))
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	switch c.Store.Queue {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required when store.queue is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.queue must be memory or redis, got %q", c.Store.Queue))
	}

	switch c.Store.Log {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("postgres.url is required when store.log is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.log must be memory or postgres, got %q", c.Store.Log))
	}

	switch c.Store.Subscriptions {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("postgres.url is required when store.subscriptions is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.subscriptions must be memory or postgres, got %q", c.Store.Subscriptions))
	}

	if c.Worker.PoolSize <= 0 {
		errs = append(errs, errors.New("worker.pool_size must be positive"))
	}
	if c.Worker.QueueSize < 0 {
		errs = append(errs, errors.New("worker.queue_size cannot be negative"))
	}
	if c.Delivery.Timeout <= 0 {
		errs = append(errs, errors.New("delivery.timeout must be positive"))
	}
	if c.Delivery.RetryCount < 0 {
		errs = append(errs, errors.New("delivery.retry_count cannot be negative"))
	}
	if c.Delivery.RetryDelay <= 0 {
		errs = append(errs, errors.New("delivery.retry_delay must be positive"))
	}
	if c.Delivery.MaxBackoff < c.Delivery.RetryDelay {
		errs = append(errs, errors.New("delivery.max_backoff must not be shorter than delivery.retry_delay"))
	}
	if c.Delivery.FailureThreshold < 0 {
		errs = append(errs, errors.New("delivery.failure_threshold cannot be negative"))
	}
	if c.Sweeper.Interval <= 0 {
		errs = append(errs, errors.New("sweeper.interval must be positive"))
	}
	if c.Sweeper.Batch <= 0 {
		errs = append(errs, errors.New("sweeper.batch must be positive"))
	}
	/* every claim must end before it can be reset, including subscriptions with their own timeout */
	longest := max(c.Delivery.Timeout, subscription.MaxTimeoutSeconds*time.Second)
	if c.Sweeper.StaleAfter <= longest {
		errs = append(errs, fmt.Errorf("sweeper.stale_after must be longer than %s, the longest delivery timeout", longest))
	}
	if c.Log.RetentionDays <= 0 {
		errs = append(errs, errors.New("log.retention_days must be positive"))
	}
	if c.NATS.URL != "" && (c.NATS.Stream == "" || c.NATS.Consumer == "") {
		errs = append(errs, errors.New("nats.stream and nats.consumer are required when nats.url is set"))
	}

	return errors.Join(errs...)
}
