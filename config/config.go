// Package config loads node settings from YAML with OCW_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ocw-node/models"
)

const DefaultPath = "config/config.yaml"

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	LevelDB  PathConfig     `mapstructure:"leveldb"`
	Pebble   PathConfig     `mapstructure:"pebble"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Keystore KeystoreConfig `mapstructure:"keystore"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Chain    ChainConfig    `mapstructure:"chain"`
}

type LogConfig struct {
	AppLogFile string `mapstructure:"app_log_file"`
	Level      string `mapstructure:"level"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// PathConfig locates an on-disk database. An empty path keeps it in memory.
type PathConfig struct {
	Path string `mapstructure:"path"`
}

type FetcherConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	UserAgent  string `mapstructure:"user_agent"`
	DeadlineMs int    `mapstructure:"deadline_ms"`
}

func (f FetcherConfig) Deadline() time.Duration {
	return time.Duration(f.DeadlineMs) * time.Millisecond
}

type KeystoreConfig struct {
	Seeds []string `mapstructure:"seeds"`
}

type PoolConfig struct {
	Capacity int      `mapstructure:"capacity"`
	Revoked  []string `mapstructure:"revoked"`
}

// RevokedAccounts parses Revoked.
func (p PoolConfig) RevokedAccounts() ([]models.AccountID, error) {
	out := make([]models.AccountID, 0, len(p.Revoked))
	for _, s := range p.Revoked {
		id, err := models.ParseAccountID(s)
		if err != nil {
			return nil, fmt.Errorf("pool.revoked: %w", err)
		}
		out = append(out, id)
	}
	return out, nil
}

type ChainConfig struct {
	BlockTimeMs   int `mapstructure:"block_time_ms"`
	QueueDepth    int `mapstructure:"queue_depth"`
	MaxExtrinsics int `mapstructure:"max_extrinsics"`
}

func (c ChainConfig) BlockTime() time.Duration {
	return time.Duration(c.BlockTimeMs) * time.Millisecond
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetcher.endpoint", "https://api.coincap.io/v2/assets/polkadot")
	v.SetDefault("fetcher.user_agent", "Substrate-Offchain-Worker")
	v.SetDefault("fetcher.deadline_ms", 8000)
	v.SetDefault("pool.capacity", 1024)
	v.SetDefault("chain.block_time_ms", 6000)
	v.SetDefault("chain.queue_depth", 4)
}

// Load reads path. A missing file is an error; every key has a default so an
// empty file is valid.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("OCW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Fetcher.Endpoint == "" {
		return nil, fmt.Errorf("fetcher.endpoint is required")
	}
	return &cfg, nil
}
