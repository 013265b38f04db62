package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Billing       BillingConfig       `mapstructure:"billing"`
	Chain         ChainConfig         `mapstructure:"chain"`
	Authority     AuthorityConfig     `mapstructure:"authority"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Redis         RedisConfig         `mapstructure:"redis"`
	AMQP          AMQPConfig          `mapstructure:"amqp"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Env               string        `mapstructure:"env" validate:"omitempty,oneof=development staging production"`
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source" validate:"required"`
}

type SecurityConfig struct {
	// CronSecret authenticates scheduler triggers, raw or as an HS256 signing key.
	CronSecret       string `mapstructure:"cron_secret" validate:"required,min=32"`
	APIKeyBcryptCost int    `mapstructure:"api_key_bcrypt_cost" validate:"omitempty,min=4,max=15"`
}

type BillingConfig struct {
	PlatformFee       int64         `mapstructure:"platform_fee" validate:"min=0"`
	PlatformFeeWallet string        `mapstructure:"platform_fee_wallet" validate:"required"`
	ConfirmAttempts   int           `mapstructure:"confirm_attempts" validate:"omitempty,min=1,max=120"`
	ComputeUnits      uint32        `mapstructure:"compute_units"`
	ItemDelay         time.Duration `mapstructure:"item_delay"`
	OrganizationDelay time.Duration `mapstructure:"organization_delay"`
	LeaseTTL          time.Duration `mapstructure:"lease_ttl"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	BatchLimit        int           `mapstructure:"batch_limit" validate:"omitempty,min=1"`
	DefaultMaxCycles  int           `mapstructure:"default_max_cycles" validate:"omitempty,min=1"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
}

type ChainConfig struct {
	RPCURL       string        `mapstructure:"rpc_url" validate:"required,url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type AuthorityConfig struct {
	SecretKey   string `mapstructure:"secret_key"`
	KeypairPath string `mapstructure:"keypair_path"`
}

type WebhookConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	BatchSize  int           `mapstructure:"batch_size" validate:"omitempty,min=1,max=500"`
	InterDelay time.Duration `mapstructure:"inter_delay"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
}

// SchedulerConfig holds cron specs for the in-process worker. An empty spec disables the job.
type SchedulerConfig struct {
	BillingSpec       string `mapstructure:"billing_spec"`
	WebhookSpec       string `mapstructure:"webhook_spec"`
	SessionExpirySpec string `mapstructure:"session_expiry_spec"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
}

// ----------------- ENVIRONMENT -----------------

// LoadConfigFromEnv builds the configuration from plain environment variables for
// container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Env:               getEnv("APP_ENV", "production"),
			Port:              getEnvAsInt("PORT", 8080),
			BaseURL:           getEnv("BASE_URL", ""),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 120*time.Second),
			OpenAPIPath:       getEnv("OPENAPI_PATH", "api/openapi.yml"),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			CronSecret:       getEnv("CRON_SECRET", ""),
			APIKeyBcryptCost: getEnvAsInt("API_KEY_BCRYPT_COST", 12),
		},
		Billing: BillingConfig{
			PlatformFee:       int64(getEnvAsInt("PLATFORM_FEE", 1_000_000)),
			PlatformFeeWallet: getEnv("PLATFORM_FEE_WALLET", ""),
			ConfirmAttempts:   getEnvAsInt("CONFIRM_ATTEMPTS", 30),
			ComputeUnits:      uint32(getEnvAsInt("COMPUTE_UNITS", 200_000)),
			ItemDelay:         getEnvAsDuration("BILLING_ITEM_DELAY", 100*time.Millisecond),
			OrganizationDelay: getEnvAsDuration("BILLING_ORGANIZATION_DELAY", 500*time.Millisecond),
			LeaseTTL:          getEnvAsDuration("BILLING_LEASE_TTL", 10*time.Minute),
			LockTTL:           getEnvAsDuration("BILLING_LOCK_TTL", 30*time.Minute),
			BatchLimit:        getEnvAsInt("BILLING_BATCH_LIMIT", 500),
			DefaultMaxCycles:  getEnvAsInt("DEFAULT_MAX_CYCLES", 12),
			SessionTTL:        getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		},
		Chain: ChainConfig{
			RPCURL:       getEnv("CHAIN_RPC_URL", ""),
			Timeout:      getEnvAsDuration("CHAIN_TIMEOUT", 15*time.Second),
			PollInterval: getEnvAsDuration("CHAIN_POLL_INTERVAL", time.Second),
		},
		Authority: AuthorityConfig{
			SecretKey:   getEnv("AUTHORITY_SECRET_KEY", ""),
			KeypairPath: getEnv("AUTHORITY_KEYPAIR_PATH", ""),
		},
		Webhook: WebhookConfig{
			Timeout:    getEnvAsDuration("WEBHOOK_TIMEOUT", 10*time.Second),
			BatchSize:  getEnvAsInt("WEBHOOK_BATCH_SIZE", 50),
			InterDelay: getEnvAsDuration("WEBHOOK_INTER_DELAY", 100*time.Millisecond),
			LockTTL:    getEnvAsDuration("WEBHOOK_LOCK_TTL", 5*time.Minute),
		},
		Scheduler: SchedulerConfig{
			BillingSpec:       getEnv("SCHEDULER_BILLING_SPEC", "@every 5m"),
			WebhookSpec:       getEnv("SCHEDULER_WEBHOOK_SPEC", "@every 1m"),
			SessionExpirySpec: getEnv("SCHEDULER_SESSION_EXPIRY_SPEC", "@every 5m"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		AMQP: AMQPConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "recurpay.events"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Authority.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("authority config: %v", err))
	}

	if err := c.AMQP.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("amqp config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.ReadHeaderTimeout > 0 && c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *AuthorityConfig) Validate() error {
	if c.SecretKey == "" && c.KeypairPath == "" {
		return errors.New("one of secret_key or keypair_path is required")
	}
	return nil
}

func (c *AMQPConfig) Validate() error {
	if c.URL != "" && c.Exchange == "" {
		return errors.New("exchange is required when url is set")
	}
	return nil
}

// Enabled reports whether a redis run lock is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}
