package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Storage.
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`
	StoreBackend string `mapstructure:"STORE_BACKEND"` // "mongo" or "memory"

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// Auth and collaborators.
	JWTSecret               string `mapstructure:"JWT_SECRET"`
	PaymentCallbackSecret   string `mapstructure:"PAYMENT_CALLBACK_SECRET"`
	StripeKey               string `mapstructure:"STRIPE_KEY"`
	StripeWebhookSecret     string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	MailerSendAPIKey        string `mapstructure:"MAILERSEND_API_KEY"`
	MailerSendFromEmail     string `mapstructure:"MAILERSEND_FROM_EMAIL"`
	MailerSendFromName      string `mapstructure:"MAILERSEND_FROM_NAME"`
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`

	// Reservation policy.
	PaymentGracePeriod     time.Duration `mapstructure:"PAYMENT_GRACE_PERIOD"`
	ReminderLead           time.Duration `mapstructure:"REMINDER_LEAD"`
	CancellationCutoff     time.Duration `mapstructure:"CANCELLATION_CUTOFF"`
	MaxReservationDuration time.Duration `mapstructure:"MAX_RESERVATION_DURATION"`
	MaxAdvanceBooking      time.Duration `mapstructure:"MAX_ADVANCE_BOOKING"`
	OperatingStartHour     int           `mapstructure:"OPERATING_START_HOUR"`
	OperatingEndHour       int           `mapstructure:"OPERATING_END_HOUR"`
	OperatingTimezone      string        `mapstructure:"OPERATING_TIMEZONE"`
	SlotDurationMinutes    int           `mapstructure:"SLOT_DURATION_MINUTES"`
	SlotCacheTTL           time.Duration `mapstructure:"SLOT_CACHE_TTL"`
	CredentialMaxAttempts  int           `mapstructure:"CREDENTIAL_MAX_ATTEMPTS"`

	// Scheduler and workers.
	SchedulerBackend  string        `mapstructure:"SCHEDULER_BACKEND"` // "asynq" or "memory"
	WorkerConcurrency int           `mapstructure:"WORKER_CONCURRENCY"`
	JobMaxAttempts    int           `mapstructure:"JOB_MAX_ATTEMPTS"`
	JobRetryBaseDelay time.Duration `mapstructure:"JOB_RETRY_BASE_DELAY"`
	JobRetryMaxDelay  time.Duration `mapstructure:"JOB_RETRY_MAX_DELAY"`
	SweepInterval     time.Duration `mapstructure:"SWEEP_INTERVAL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MAX_REQUESTS_PER_MIN", 200)

	v.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	v.SetDefault("DATABASE_NAME", "voltslot")
	v.SetDefault("STORE_BACKEND", "mongo")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_CACHE_DB", 0)
	v.SetDefault("REDIS_QUEUE_DB", 1)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("PAYMENT_CALLBACK_SECRET", "")
	v.SetDefault("STRIPE_KEY", "")
	v.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("MAILERSEND_API_KEY", "")
	v.SetDefault("MAILERSEND_FROM_EMAIL", "no-reply@voltslot.local")
	v.SetDefault("MAILERSEND_FROM_NAME", "VoltSlot")
	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "")

	v.SetDefault("PAYMENT_GRACE_PERIOD", "10m")
	v.SetDefault("REMINDER_LEAD", "5m")
	v.SetDefault("CANCELLATION_CUTOFF", "1h")
	v.SetDefault("MAX_RESERVATION_DURATION", "4h")
	v.SetDefault("MAX_ADVANCE_BOOKING", "168h")
	v.SetDefault("OPERATING_START_HOUR", 6)
	v.SetDefault("OPERATING_END_HOUR", 23)
	v.SetDefault("OPERATING_TIMEZONE", "Asia/Dhaka")
	v.SetDefault("SLOT_DURATION_MINUTES", 30)
	v.SetDefault("SLOT_CACHE_TTL", "30s")
	v.SetDefault("CREDENTIAL_MAX_ATTEMPTS", 5)

	v.SetDefault("SCHEDULER_BACKEND", "asynq")
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("JOB_MAX_ATTEMPTS", 5)
	v.SetDefault("JOB_RETRY_BASE_DELAY", "2s")
	v.SetDefault("JOB_RETRY_MAX_DELAY", "5m")
	v.SetDefault("SWEEP_INTERVAL", "1m")
}

// Load reads config.yaml from "." or "./config" (optional), then environment
// variables, then defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the reservation engine cannot run with.
func (c Config) Validate() error {
	if c.PaymentGracePeriod <= 0 {
		return fmt.Errorf("config: PAYMENT_GRACE_PERIOD must be positive")
	}
	if c.OperatingStartHour < 0 || c.OperatingEndHour > 24 || c.OperatingStartHour >= c.OperatingEndHour {
		return fmt.Errorf("config: invalid operating window %d-%d", c.OperatingStartHour, c.OperatingEndHour)
	}
	if c.SlotDurationMinutes <= 0 {
		return fmt.Errorf("config: SLOT_DURATION_MINUTES must be positive")
	}
	if c.CredentialMaxAttempts <= 0 || c.JobMaxAttempts <= 0 || c.WorkerConcurrency <= 0 {
		return fmt.Errorf("config: attempt counts and worker concurrency must be positive")
	}
	if _, err := time.LoadLocation(c.OperatingTimezone); err != nil {
		return fmt.Errorf("config: unknown OPERATING_TIMEZONE %q: %w", c.OperatingTimezone, err)
	}
	switch c.StoreBackend {
	case "mongo", "memory":
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.SchedulerBackend {
	case "asynq", "memory":
	default:
		return fmt.Errorf("config: unknown SCHEDULER_BACKEND %q", c.SchedulerBackend)
	}
	return nil
}

// Location returns the operating timezone; Validate guarantees it loads.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.OperatingTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}
