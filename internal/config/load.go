package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. QUIZGEN_SERVER_PORT or QUIZGEN_DATABASE_URL.
const EnvPrefix = "QUIZGEN"

// setDefaults registers default values for every optional setting.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("llm.request_interval", time.Second)
	v.SetDefault("llm.throttle_window", time.Minute)
	v.SetDefault("llm.max_requests_per_window", 20)
	v.SetDefault("llm.throttle_backoff", time.Second)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_base_delay", time.Second)
	v.SetDefault("llm.request_timeout", 30*time.Second)
	v.SetDefault("llm.queue_size", 1000)
	v.SetDefault("llm.executor_pool_size", 16)
	v.SetDefault("llm.result_ttl", 10*time.Minute)
	v.SetDefault("llm.explanation_credential_index", 0)

	v.SetDefault("import.max_concurrent", 2)
	v.SetDefault("import.batch_delay", 2*time.Second)
	v.SetDefault("import.chunk_size", 1000)
	v.SetDefault("import.result_timeout", 2*time.Minute)
	v.SetDefault("import.task_retention", time.Hour)
	v.SetDefault("import.reap_interval", 10*time.Minute)
	v.SetDefault("import.max_tasks", 1000)

	v.SetDefault("cache.redis_db", 0)
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadWithViper(viper.New())
}

// LoadWithViper loads configuration using the provided viper instance. Tests use
// it to point the loader at a specific config file.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/quizgen")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"database.url", "auth.jwt_secret", "cache.redis_address", "cache.redis_password"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
