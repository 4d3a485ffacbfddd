package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

/* Config carries every tunable of the engine. Values come from a local
 * .env file when present, overridden by environment variables
 */

type Config struct {
	Port        string `mapstructure:"PORT"`
	Store       string `mapstructure:"STORE"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RedisPass   string `mapstructure:"REDIS_PASS"`
	RedisDB     int    `mapstructure:"REDIS_DB"`
	PostgresDSN string `mapstructure:"POSTGRES_DSN"`

	WorkerCount       int    `mapstructure:"WORKER_COUNT"`
	QueueSize         int    `mapstructure:"QUEUE_SIZE"`
	MaxRetries        int    `mapstructure:"MAX_RETRIES"`
	DeliveryTimeoutMS int    `mapstructure:"DELIVERY_TIMEOUT_MS"`
	ResponseBodyLimit int    `mapstructure:"RESPONSE_BODY_LIMIT"`
	RetrySweepSecs    int    `mapstructure:"RETRY_SWEEP_SECS"`
	RetentionDays     int    `mapstructure:"RETENTION_DAYS"`
	SeedFile          string `mapstructure:"SEED_FILE"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("STORE", "memory")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASS", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("POSTGRES_DSN", "")
	viper.SetDefault("WORKER_COUNT", 4)
	viper.SetDefault("QUEUE_SIZE", 256)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("DELIVERY_TIMEOUT_MS", 10000)
	viper.SetDefault("RESPONSE_BODY_LIMIT", 4096)
	viper.SetDefault("RETRY_SWEEP_SECS", 30)
	viper.SetDefault("RETENTION_DAYS", 30)
	viper.SetDefault("SEED_FILE", "")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &config, nil
}
