/**
 * @description
 * This package handles the configuration management for the registration
 * service. It uses the Viper library to read configuration from environment
 * variables (with an optional .env file), providing a centralized way to
 * manage application settings. The resulting Config struct is injected into
 * every component at construction time; business logic never reads the
 * process environment directly.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the registration service
// and the reconciler worker. These values are loaded from environment variables.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`

	AsaasBaseURL string `mapstructure:"ASAAS_BASE_URL"`
	AsaasAPIKey  string `mapstructure:"ASAAS_API_KEY"`

	SupabaseURL        string `mapstructure:"SUPABASE_URL"`
	SupabaseServiceKey string `mapstructure:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseJWTSecret  string `mapstructure:"SUPABASE_JWT_SECRET"`

	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	// Overall request ceiling for POST /register and the polling budget
	// nested inside it. The poll budget must leave headroom for account and
	// profile/subscription writes to still complete within the ceiling.
	RequestTimeoutSeconds int `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	PollTimeoutSeconds    int `mapstructure:"POLL_TIMEOUT_SECONDS"`
	PollIntervalSeconds   int `mapstructure:"POLL_INTERVAL_SECONDS"`

	RegisterRateLimitPerMinute int    `mapstructure:"REGISTER_RATE_LIMIT_PER_MINUTE"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`

	ReconcileSchedule   string `mapstructure:"RECONCILE_SCHEDULE"`
	MetricsSchedule     string `mapstructure:"METRICS_SCHEDULE"`
	AlertCheckSchedule  string `mapstructure:"ALERT_CHECK_SCHEDULE"`
	StaleProfileMinutes int    `mapstructure:"STALE_PROFILE_MINUTES"`
	ReconcileBatchLimit int    `mapstructure:"RECONCILE_BATCH_LIMIT"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8090")
	viper.SetDefault("ASAAS_BASE_URL", "https://sandbox.asaas.com/api/v3")
	viper.SetDefault("EVENTS_EXCHANGE", "comademig.events")
	viper.SetDefault("REQUEST_TIMEOUT_SECONDS", 25)
	viper.SetDefault("POLL_TIMEOUT_SECONDS", 15)
	viper.SetDefault("POLL_INTERVAL_SECONDS", 1)
	viper.SetDefault("REGISTER_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "comademig:rate_limit")
	viper.SetDefault("RECONCILE_SCHEDULE", "*/10 * * * *")
	viper.SetDefault("METRICS_SCHEDULE", "5 * * * *")
	viper.SetDefault("ALERT_CHECK_SCHEDULE", "10 * * * *")
	viper.SetDefault("STALE_PROFILE_MINUTES", 60)
	viper.SetDefault("RECONCILE_BATCH_LIMIT", 100)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("ASAAS_BASE_URL")
	_ = viper.BindEnv("ASAAS_API_KEY")
	_ = viper.BindEnv("SUPABASE_URL")
	_ = viper.BindEnv("SUPABASE_SERVICE_ROLE_KEY")
	_ = viper.BindEnv("SUPABASE_JWT_SECRET")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("REQUEST_TIMEOUT_SECONDS")
	_ = viper.BindEnv("POLL_TIMEOUT_SECONDS")
	_ = viper.BindEnv("POLL_INTERVAL_SECONDS")
	_ = viper.BindEnv("REGISTER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("METRICS_SCHEDULE")
	_ = viper.BindEnv("ALERT_CHECK_SCHEDULE")
	_ = viper.BindEnv("STALE_PROFILE_MINUTES")
	_ = viper.BindEnv("RECONCILE_BATCH_LIMIT")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return Config{}, err
	}

	// The poll budget cannot exceed the request ceiling; clamp it so the
	// provisioning steps always retain headroom.
	if config.PollTimeoutSeconds >= config.RequestTimeoutSeconds {
		config.PollTimeoutSeconds = config.RequestTimeoutSeconds - 10
		if config.PollTimeoutSeconds < 1 {
			config.PollTimeoutSeconds = 1
		}
	}

	return config, nil
}
