package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the contest service
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Finalize  FinalizeConfig
	Wallet    WalletConfig
	Payments  PaymentsConfig
	Redis     RedisConfig
	Log       LogConfig
	Seed      SeedConfig
}

type ServerConfig struct {
	Port             int
	AllowCredentials bool
	AllowedOrigins   []string
}

type DatabaseConfig struct {
	Driver       string // sqlite | mysql
	DSN          string
	MaxOpenConns int
}

type SchedulerConfig struct {
	FinalizeInterval time.Duration
}

type FinalizeConfig struct {
	BatchSize   int
	Concurrency int
}

type WalletConfig struct {
	WithdrawMinAmount int64
}

// PaymentsConfig describes the external payment rail used by add-balance.
type PaymentsConfig struct {
	AppUpiID string
}

type RedisConfig struct {
	URL     string
	Channel string
}

type LogConfig struct {
	Level string
}

type SeedConfig struct {
	Path string
}

func replacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allow_credentials", false)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "quiz.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("scheduler.finalize_interval", "20s")
	v.SetDefault("finalize.batch_size", 10)
	v.SetDefault("finalize.concurrency", 0)
	v.SetDefault("wallet.withdraw_min_amount", 100)
	v.SetDefault("payments.app_upi_id", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "prize-credited")
	v.SetDefault("log.level", "info")
	v.SetDefault("seed.path", "data/contests.json")
}

// Load reads .env (if present), then config.yaml from the working directory
// (if present), then QUIZ_* environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("QUIZ")
	v.SetEnvKeyReplacer(replacer())
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:             v.GetInt("server.port"),
			AllowCredentials: v.GetBool("server.allow_credentials"),
			AllowedOrigins:   v.GetStringSlice("cors.allowed_origins"),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(v.GetString("database.driver")),
			DSN:          v.GetString("database.dsn"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
		},
		Scheduler: SchedulerConfig{
			FinalizeInterval: v.GetDuration("scheduler.finalize_interval"),
		},
		Finalize: FinalizeConfig{
			BatchSize:   v.GetInt("finalize.batch_size"),
			Concurrency: v.GetInt("finalize.concurrency"),
		},
		Wallet: WalletConfig{
			WithdrawMinAmount: v.GetInt64("wallet.withdraw_min_amount"),
		},
		Payments: PaymentsConfig{
			AppUpiID: v.GetString("payments.app_upi_id"),
		},
		Redis: RedisConfig{
			URL:     v.GetString("redis.url"),
			Channel: v.GetString("redis.channel"),
		},
		Log:  LogConfig{Level: v.GetString("log.level")},
		Seed: SeedConfig{Path: v.GetString("seed.path")},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Scheduler.FinalizeInterval <= 0 {
		return errors.New("scheduler.finalize_interval must be positive")
	}
	if c.Finalize.BatchSize <= 0 {
		return errors.New("finalize.batch_size must be positive")
	}
	if c.Finalize.Concurrency <= 0 {
		c.Finalize.Concurrency = c.Finalize.BatchSize
	}
	if c.Wallet.WithdrawMinAmount < 1 {
		return errors.New("wallet.withdraw_min_amount must be at least 1")
	}
	return nil
}
