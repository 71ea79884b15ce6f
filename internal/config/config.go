// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/openamm/cpmm-engine/internal/cluster"
	"github.com/openamm/cpmm-engine/internal/types"
)

type LogConfig struct {
	File        string `mapstructure:"file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
	Development bool   `mapstructure:"development"`
}

type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	DelayMs     int `mapstructure:"delay_ms"`
}

type Config struct {
	RPCURL     string `mapstructure:"rpc_url"`
	Cluster    string `mapstructure:"cluster"`
	PrivateKey string `mapstructure:"private_key"`

	Commitment       string `mapstructure:"commitment"`
	SlippageBps      int    `mapstructure:"slippage_bps"`
	Priority         string `mapstructure:"priority"`
	ComputeUnitLimit int    `mapstructure:"compute_unit_limit"`
	Simulate         bool   `mapstructure:"simulate"`

	MaxRetries int `mapstructure:"max_retries"`

	Batch BatchConfig `mapstructure:"batch"`
	Log   LogConfig   `mapstructure:"log"`
}

const (
	DefaultCluster     = "mainnet"
	DefaultCommitment  = "confirmed"
	DefaultSlippageBps = 50
	DefaultPriority    = "auto"
	DefaultMaxRetries  = 5
	DefaultConcurrency = 5
	DefaultBatchDelay  = 500
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"cluster":           DefaultCluster,
		"commitment":        DefaultCommitment,
		"slippage_bps":      DefaultSlippageBps,
		"priority":          DefaultPriority,
		"max_retries":       DefaultMaxRetries,
		"batch.concurrency": DefaultConcurrency,
		"batch.delay_ms":    DefaultBatchDelay,
		"log.file":          "ammctl.log",
		"log.max_size":      100,
		"log.max_backups":   3,
		"log.max_age":       7,
		"log.compress":      true,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.RPCURL == "" {
		return errors.New("missing rpc_url in configuration")
	}
	if err := validateURLWithCache(cfg.RPCURL, "http"); err != nil {
		return errors.New("invalid RPC URL protocol")
	}
	if _, err := cluster.Parse(cfg.Cluster); err != nil {
		return err
	}
	if cfg.PrivateKey == "" {
		return errors.New("missing private_key in configuration")
	}
	if _, err := types.ParsePriorityLevel(cfg.Priority); err != nil {
		return err
	}
	switch cfg.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return errors.New("invalid commitment level")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.SlippageBps < 1 || cfg.SlippageBps > 10_000 {
		return errors.New("slippage_bps must be within [1, 10000]")
	}
	if cfg.ComputeUnitLimit < 0 {
		return errors.New("invalid compute_unit_limit")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("invalid max_retries count")
	}
	if cfg.Batch.Concurrency <= 0 {
		return errors.New("invalid batch concurrency")
	}
	if cfg.Batch.DelayMs < 0 {
		return errors.New("invalid batch delay_ms")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("AMM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Секреты и endpoint удобнее передавать окружением, не файлом.
	envKey := v.GetString("PRIVATE_KEY")
	if envKey != "" {
		cfg.PrivateKey = envKey
	}

	envRPC := v.GetString("RPC_URL")
	if envRPC != "" {
		cfg.RPCURL = strings.TrimSpace(envRPC)
	}

	envCluster := v.GetString("CLUSTER")
	if envCluster != "" {
		cfg.Cluster = strings.TrimSpace(envCluster)
	}
	return nil
}
