// Package config loads the portal configuration from defaults, an optional
// YAML file and PORTAL_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/cache"
	"github.com/civisight/portal/pkg/coordinator"
	"github.com/civisight/portal/pkg/database"
	"github.com/civisight/portal/pkg/middleware"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/queue"
	"github.com/civisight/portal/pkg/remote"
	"github.com/civisight/portal/pkg/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// APIConfig defines the API server configuration
type APIConfig struct {
	ListenAddress   string                     `mapstructure:"listen_address"`
	BasePath        string                     `mapstructure:"base_path"`
	ReadTimeout     time.Duration              `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration              `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration              `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration              `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64                      `mapstructure:"max_upload_bytes"`
	RateLimit       middleware.RateLimitConfig `mapstructure:"rate_limit"`
}

// AWSConfig groups the AWS-backed services.
type AWSConfig struct {
	SQS queue.SQSConfig  `mapstructure:"sqs"`
	S3  storage.S3Config `mapstructure:"s3"`
}

// RemindersConfig drives the reminder worker.
type RemindersConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	FromAddress  string        `mapstructure:"from_address"`

	// WaitSeconds is the long-poll wait of each queue receive.
	WaitSeconds    int32         `mapstructure:"wait_seconds"`
	BatchSize      int32         `mapstructure:"batch_size"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// ClientConfig is used by portalctl.
type ClientConfig struct {
	SessionFile string             `mapstructure:"session_file"`
	Remote      remote.Config      `mapstructure:"remote"`
	Coordinator coordinator.Config `mapstructure:"coordinator"`
}

// Config holds the complete application configuration
type Config struct {
	Environment string                      `mapstructure:"environment"`
	API         APIConfig                   `mapstructure:"api"`
	Auth        auth.Config                 `mapstructure:"auth"`
	Database    database.Config             `mapstructure:"database"`
	Cache       cache.RedisConfig           `mapstructure:"cache"`
	AWS         AWSConfig                   `mapstructure:"aws"`
	Reminders   RemindersConfig             `mapstructure:"reminders"`
	Client      ClientConfig                `mapstructure:"client"`
	Tracing     observability.TracingConfig `mapstructure:"tracing"`
	Metrics     observability.MetricsConfig `mapstructure:"metrics"`
}

// Load loads configuration from file and environment variables. A .env file
// in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	configFile := os.Getenv("PORTAL_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	return LoadFile(configFile)
}

// LoadFile is Load with an explicit config file. A missing file is not an
// error.
func LoadFile(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configFile)
	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default need an explicit binding. The unprefixed names
	// are the ones docker-compose setups commonly use.
	_ = v.BindEnv("database.dsn", "PORTAL_DATABASE_DSN", "DATABASE_URL")
	_ = v.BindEnv("database.password", "PORTAL_DATABASE_PASSWORD")
	_ = v.BindEnv("cache.address", "PORTAL_CACHE_ADDRESS", "REDIS_ADDR")
	_ = v.BindEnv("auth.jwt_secret", "PORTAL_AUTH_JWT_SECRET", "JWT_SECRET")

	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	processEnvExpansion(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	// SetConfigFile with a missing path surfaces the os error instead.
	return os.IsNotExist(err)
}

// processEnvExpansion expands ${VAR} and ${VAR:-default} in string values.
func processEnvExpansion(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if !strings.Contains(value, "${") {
			continue
		}
		if expanded := expandEnvVars(value); expanded != value {
			v.Set(key, expanded)
		}
	}
}

func expandEnvVars(value string) string {
	result := value
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		rel := strings.Index(result[start:], "}")
		if rel == -1 {
			break
		}
		end := start + rel

		ref := result[start+2 : end]
		name, def := ref, ""
		if i := strings.Index(ref, ":-"); i >= 0 {
			name, def = ref[:i], ref[i+2:]
		}
		val := os.Getenv(name)
		if val == "" {
			val = def
		}
		result = result[:start] + val + result[end+1:]
	}
	return result
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.base_path", "/api/v1")
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)
	v.SetDefault("api.idle_timeout", 90*time.Second)
	v.SetDefault("api.shutdown_timeout", 15*time.Second)
	v.SetDefault("api.max_upload_bytes", 10<<20)

	rl := middleware.DefaultRateLimitConfig()
	v.SetDefault("api.rate_limit.enabled", rl.Enabled)
	v.SetDefault("api.rate_limit.global_rps", rl.GlobalRPS)
	v.SetDefault("api.rate_limit.global_burst", rl.GlobalBurst)
	v.SetDefault("api.rate_limit.user_rps", rl.UserRPS)
	v.SetDefault("api.rate_limit.user_burst", rl.UserBurst)
	v.SetDefault("api.rate_limit.cleanup_interval", rl.CleanupInterval)
	v.SetDefault("api.rate_limit.max_age", rl.MaxAge)

	// No default for the JWT secret.
	a := auth.DefaultConfig()
	v.SetDefault("auth.jwt_expiration", a.JWTExpiration)
	v.SetDefault("auth.issuer", a.Issuer)
	v.SetDefault("auth.bcrypt_cost", a.BcryptCost)

	db := database.NewConfig()
	v.SetDefault("database.driver", db.Driver)
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.database", db.Database)
	v.SetDefault("database.ssl_mode", db.SSLMode)
	v.SetDefault("database.max_open_conns", db.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", db.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", db.ConnMaxLifetime)
	v.SetDefault("database.connect_timeout", db.ConnectTimeout)
	v.SetDefault("database.connect_retries", db.ConnectRetries)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("cache.type", "redis")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.key_prefix", "portal")
	v.SetDefault("cache.dial_timeout", 5*time.Second)
	v.SetDefault("cache.read_timeout", 3*time.Second)
	v.SetDefault("cache.write_timeout", 3*time.Second)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.min_idle_conns", 2)
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.default_ttl", 5*time.Minute)
	v.SetDefault("cache.local_size", 1024)

	awsRegion := os.Getenv("AWS_REGION")
	if awsRegion == "" {
		awsRegion = "us-east-1"
	}
	v.SetDefault("aws.sqs.type", "sqs")
	v.SetDefault("aws.sqs.region", awsRegion)
	v.SetDefault("aws.sqs.queue_name", "portal-reminders")
	v.SetDefault("aws.sqs.wait_seconds", 10)
	v.SetDefault("aws.sqs.max_messages", 10)
	v.SetDefault("aws.sqs.visibility_timeout", 60)

	v.SetDefault("aws.s3.type", "s3")
	v.SetDefault("aws.s3.region", awsRegion)
	v.SetDefault("aws.s3.bucket", "portal-forms")
	v.SetDefault("aws.s3.upload_part_size", 5*1024*1024)
	v.SetDefault("aws.s3.download_part_size", 5*1024*1024)
	v.SetDefault("aws.s3.concurrency", 5)
	v.SetDefault("aws.s3.request_timeout", 30*time.Second)

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.scan_interval", time.Hour)
	v.SetDefault("reminders.from_address", "noreply@county-portal.local")
	v.SetDefault("reminders.wait_seconds", 10)
	v.SetDefault("reminders.batch_size", 10)
	v.SetDefault("reminders.idempotency_ttl", 24*time.Hour)

	rc := remote.DefaultConfig()
	cc := coordinator.DefaultConfig()
	v.SetDefault("client.remote.base_url", rc.BaseURL)
	v.SetDefault("client.remote.timeout", rc.Timeout)
	v.SetDefault("client.remote.retry.max_retries", rc.Retry.MaxRetries)
	v.SetDefault("client.remote.retry.initial_interval", rc.Retry.InitialInterval)
	v.SetDefault("client.remote.retry.max_interval", rc.Retry.MaxInterval)
	v.SetDefault("client.remote.retry.multiplier", rc.Retry.Multiplier)
	v.SetDefault("client.remote.retry.max_elapsed_time", rc.Retry.MaxElapsedTime)
	v.SetDefault("client.remote.circuit_breaker.max_requests", rc.CircuitBreaker.MaxRequests)
	v.SetDefault("client.remote.circuit_breaker.interval", rc.CircuitBreaker.Interval)
	v.SetDefault("client.remote.circuit_breaker.timeout", rc.CircuitBreaker.Timeout)
	v.SetDefault("client.remote.circuit_breaker.min_requests", rc.CircuitBreaker.MinRequests)
	v.SetDefault("client.remote.circuit_breaker.failure_ratio", rc.CircuitBreaker.FailureRatio)
	v.SetDefault("client.coordinator.remote_timeout", cc.RemoteTimeout)
	v.SetDefault("client.coordinator.max_concurrent_writes", cc.MaxConcurrentWrites)
	v.SetDefault("client.coordinator.max_concurrent_loads", cc.MaxConcurrentLoads)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "county-portal")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "portal")
	v.SetDefault("metrics.path", "/metrics")
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "dev" || c.Environment == "development"
}
