// Package config loads service-level configuration for the backtest
// runners: ports, data-store credentials, worker limits. Strategy
// parameters live in their own file, see strategies.LoadPBHConfig.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
	GRPCPort int `yaml:"grpc_port"`
}

type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type ArrowConfig struct {
	BatchSize   int    `yaml:"batch_size"`
	Compression string `yaml:"compression"`
}

type EngineConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

type Config struct {
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Arrow       ArrowConfig      `yaml:"arrow"`
	Engine      EngineConfig     `yaml:"engine"`
}

func defaults() *Config {
	return &Config{
		Environment: "dev",
		Server:      ServerConfig{HTTPPort: 8080, GRPCPort: 9091},
		ClickHouse: ClickHouseConfig{
			Addr:     "localhost:9000",
			Database: "backtest",
			Table:    "bars",
			Username: "backtest",
			Password: "backtest123",
		},
		Arrow:  ArrowConfig{BatchSize: 10000, Compression: "lz4"},
		Engine: EngineConfig{MaxWorkers: 0}, // 0 means NumCPU
	}
}

// Load reads configuration in layers: built-in defaults, then an
// optional YAML file, then environment variables. A .env file in the
// working directory is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)

	if cfg.Server.HTTPPort <= 0 || cfg.Server.GRPCPort <= 0 {
		return nil, fmt.Errorf("ports must be positive: http=%d grpc=%d", cfg.Server.HTTPPort, cfg.Server.GRPCPort)
	}
	if cfg.ClickHouse.Addr == "" || cfg.ClickHouse.Database == "" || cfg.ClickHouse.Table == "" {
		return nil, fmt.Errorf("clickhouse addr/database/table must be set")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setStr(&cfg.Environment, "ENVIRONMENT")
	setInt(&cfg.Server.HTTPPort, "HTTP_PORT")
	setInt(&cfg.Server.GRPCPort, "GRPC_PORT")
	setStr(&cfg.ClickHouse.Addr, "CH_ADDR")
	setStr(&cfg.ClickHouse.Database, "CH_DATABASE")
	setStr(&cfg.ClickHouse.Table, "CH_TABLE")
	setStr(&cfg.ClickHouse.Username, "CH_USER")
	setStr(&cfg.ClickHouse.Password, "CH_PASSWORD")
	setInt(&cfg.Engine.MaxWorkers, "MAX_WORKERS")
}
