// Package config loads the YAML configuration of relay processes.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslation "github.com/go-playground/validator/v10/translations/en"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"goa.design/relay/leader"
	"goa.design/relay/metrics"
	"goa.design/relay/relay"
	"goa.design/relay/storage"
	"goa.design/relay/taskq"
)

type (
	// Config is the content of a configuration file.
	Config struct {
		Redis     Redis     `yaml:"redis"`
		Prefix    string    `yaml:"prefix"`
		Queues    int       `yaml:"queues" validate:"min=1,max=9"`
		Strategy  string    `yaml:"strategy" validate:"oneof=consistent-hash consistent_hash round-robin round_robin"`
		Heartbeat Heartbeat `yaml:"heartbeat"`
		Lock      Lock      `yaml:"lock"`
		Log       Log       `yaml:"log"`
		Metrics   Metrics   `yaml:"metrics"`
	}

	// Redis holds the Redis connection settings.
	Redis struct {
		Addr     string `yaml:"addr" validate:"required,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"min=0"`
	}

	// Heartbeat holds the failure detection settings.
	Heartbeat struct {
		Interval        time.Duration `yaml:"interval"`
		ExpirationCount int           `yaml:"expiration_count"`
	}

	// Lock holds the distributed lock settings.
	Lock struct {
		Timeout time.Duration `yaml:"timeout" validate:"min=0"`
		Lease   time.Duration `yaml:"lease" validate:"min=0"`
	}

	// Log holds the logging settings.
	Log struct {
		Debug  bool   `yaml:"debug"`
		Format string `yaml:"format" validate:"omitempty,oneof=terminal text json"`
	}

	// Metrics holds the Prometheus endpoint settings.
	Metrics struct {
		// Addr is the listen address of the metrics endpoint, metrics are
		// disabled when empty.
		Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
	}
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Redis:    Redis{Addr: "localhost:6379"},
		Prefix:   storage.DefaultPrefix,
		Queues:   1,
		Strategy: "consistent-hash",
		Heartbeat: Heartbeat{
			Interval:        leader.DefaultHeartbeatInterval,
			ExpirationCount: leader.DefaultExpirationCount,
		},
		Lock: Lock{Timeout: taskq.DefaultLockTimeout, Lease: 30 * time.Second},
	}
}

// Load reads and validates the configuration file at path. Settings missing
// from the file keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration and raises the heartbeat settings to
// their minimum.
func (c *Config) Validate() error {
	if c.Heartbeat.Interval < leader.MinHeartbeatInterval {
		c.Heartbeat.Interval = leader.MinHeartbeatInterval
	}
	if c.Heartbeat.ExpirationCount < leader.MinExpirationCount {
		c.Heartbeat.ExpirationCount = leader.MinExpirationCount
	}
	if c.Prefix == "" {
		c.Prefix = storage.DefaultPrefix
	}
	validate, translator := newValidator()
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	msgs := make([]string, len(verrs))
	for i, e := range verrs {
		msgs[i] = e.Translate(translator)
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// RedisClient returns a client connected to the configured Redis server.
func (c *Config) RedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}

// Backend returns the storage backend using rdb.
func (c *Config) Backend(rdb *redis.Client, logger relay.Logger) *storage.Redis {
	return storage.NewRedis(rdb, storage.WithLogger(logger), storage.WithLockLease(c.Lock.Lease))
}

// Options returns the master and slave options matching the configuration.
func (c *Config) Options(logger relay.Logger, m *metrics.Metrics) []taskq.Option {
	return []taskq.Option{
		taskq.WithPrefix(c.Prefix),
		taskq.WithQueueCount(c.Queues),
		taskq.WithStrategy(c.Strategy),
		taskq.WithHeartbeatInterval(c.Heartbeat.Interval),
		taskq.WithExpirationCount(c.Heartbeat.ExpirationCount),
		taskq.WithLockTimeout(c.Lock.Timeout),
		taskq.WithLogger(logger),
		taskq.WithMetrics(m),
	}
}

// newValidator returns a validator reporting errors with the YAML field
// names, in English.
func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	if err := enTranslation.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(fmt.Errorf("translator was not registered: %w", err))
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return validate, translator
}
