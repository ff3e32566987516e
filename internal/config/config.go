package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Import   ImportConfig   `mapstructure:"import" validate:"required"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
	// AutoMigrate applies pending migrations when the server starts.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// AuthConfig protects the settings endpoints. An empty secret leaves them open,
// which is only appropriate for single-user local deployments.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
}

// CredentialConfig describes one language model API configuration.
// An empty APIKey keeps the entry in the pool but disables it.
type CredentialConfig struct {
	Name      string `mapstructure:"name" validate:"required"`
	APIKey    string `mapstructure:"api_key"`
	Endpoint  string `mapstructure:"endpoint" validate:"omitempty,url"`
	Model     string `mapstructure:"model" validate:"required"`
	MaxTokens int    `mapstructure:"max_tokens" validate:"gte=0"`
	Provider  string `mapstructure:"provider" validate:"omitempty,oneof=openai gemini"`
}

// LLMConfig contains the request scheduler settings and the credential pool.
type LLMConfig struct {
	Credentials []CredentialConfig `mapstructure:"credentials" validate:"dive"`

	// RequestInterval is the pause after each dispatched request.
	RequestInterval time.Duration `mapstructure:"request_interval" validate:"gte=0"`
	// ThrottleWindow and MaxRequestsPerWindow define the sliding window quota.
	ThrottleWindow       time.Duration `mapstructure:"throttle_window" validate:"gt=0"`
	MaxRequestsPerWindow int           `mapstructure:"max_requests_per_window" validate:"gt=0"`
	ThrottleBackoff      time.Duration `mapstructure:"throttle_backoff" validate:"gt=0"`

	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" validate:"gte=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`

	QueueSize        int           `mapstructure:"queue_size" validate:"gt=0"`
	ExecutorPoolSize int           `mapstructure:"executor_pool_size" validate:"gt=0"`
	ResultTTL        time.Duration `mapstructure:"result_ttl" validate:"gt=0"`

	// ExplanationCredentialIndex pins explanation requests to one credential.
	ExplanationCredentialIndex int `mapstructure:"explanation_credential_index" validate:"gte=0"`
}

// ImportConfig contains settings for the batch import pipeline.
type ImportConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent" validate:"gt=0"`
	BatchDelay    time.Duration `mapstructure:"batch_delay" validate:"gte=0"`
	ChunkSize     int           `mapstructure:"chunk_size" validate:"gt=0"`
	// ResultTimeout bounds how long a chunk waits for its scheduler result.
	ResultTimeout time.Duration `mapstructure:"result_timeout" validate:"gt=0"`
	TaskRetention time.Duration `mapstructure:"task_retention" validate:"gt=0"`
	ReapInterval  time.Duration `mapstructure:"reap_interval" validate:"gt=0"`
	MaxTasks      int           `mapstructure:"max_tasks" validate:"gt=0"`
}

// CacheConfig selects the import task registry backend.
// An empty RedisAddress keeps task state in process memory.
type CacheConfig struct {
	RedisAddress  string `mapstructure:"redis_address" validate:"omitempty,hostname_port"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"gte=0"`
}
