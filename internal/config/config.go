package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type AuthConfig struct {
	AdminKey string `mapstructure:"admin_key"`
}

type ChainConfig struct {
	ChainID int64 `mapstructure:"chain_id"`
	// VerifyingContract is the engine identity bound into every bid signature.
	VerifyingContract string `mapstructure:"verifying_contract"`
	RPCURL            string `mapstructure:"rpc_url"`
	// AssetBackend selects the value-transfer service: "book" (custodial
	// in-process balances) or "erc20" (on-chain tokens via rpc_url).
	AssetBackend string `mapstructure:"asset_backend"`
	// OperatorKey signs transferFrom transactions for the erc20 backend.
	OperatorKey string `mapstructure:"operator_key"`
}

type EngineConfig struct {
	// AdminAddress is the only identity allowed to set referral fees.
	AdminAddress       string `mapstructure:"admin_address"`
	MaxCheckViolations int    `mapstructure:"max_check_violations"`
}

type DatabaseConfig struct {
	DSN                string `mapstructure:"dsn"`
	EventRetentionDays int    `mapstructure:"event_retention_days"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. SWAPGATE_CHAIN_CHAIN_ID
	viper.SetEnvPrefix("swapgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("auth.admin_key", "")
	viper.SetDefault("chain.chain_id", 1)
	viper.SetDefault("chain.verifying_contract", "0x0000000000000000000000000000000000000001")
	viper.SetDefault("chain.asset_backend", "book")
	viper.SetDefault("engine.max_check_violations", 16)
	viper.SetDefault("database.event_retention_days", 30)
	viper.SetDefault("redis.idempotency_ttl_seconds", 86400)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("rate_limit.rps", 50)
	viper.SetDefault("rate_limit.burst", 100)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
