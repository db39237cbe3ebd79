package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"ports/internal/logging"
)

const (
	defaultProcessTableTTL  = 5 * time.Second
	defaultRefreshInterval  = time.Second
	defaultBatchConcurrency = 8
	envProcfsRoot           = "PORTS_PROCFS_ROOT"
	envProcessTableTTL      = "PORTS_PROCESS_TABLE_TTL"
	envRefreshInterval      = "PORTS_REFRESH_INTERVAL"
	envLogLevel             = "PORTS_LOG_LEVEL"
	envPreferPID            = "PORTS_PREFER_PID"
)

// Config aggregates the tunables shared by the CLI and the dashboard.
type Config struct {
	// ProcfsRoot overrides /proc on Linux. Empty means /proc.
	ProcfsRoot string
	// ProcessTableTTL bounds reuse of a bulk ps snapshot on macOS.
	ProcessTableTTL time.Duration
	// RefreshInterval is the dashboard tick.
	RefreshInterval time.Duration
	// BatchConcurrency caps parallel ancestry builds in one batch.
	BatchConcurrency int
	// PreferPIDTargets resolves numeric targets as a pid before a port.
	PreferPIDTargets bool
	Logging          logging.Config
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ProcessTableTTL:  defaultProcessTableTTL,
		RefreshInterval:  defaultRefreshInterval,
		BatchConcurrency: defaultBatchConcurrency,
		Logging:          logging.DefaultConfig(),
	}
}

// Load builds a Config from an optional YAML file path plus environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	log := logging.WithComponent("config")

	if v := os.Getenv(envProcfsRoot); v != "" {
		cfg.ProcfsRoot = v
	}

	if v := os.Getenv(envProcessTableTTL); v != "" {
		if dur, err := time.ParseDuration(v); err == nil && dur > 0 {
			cfg.ProcessTableTTL = dur
		} else {
			log.Warn("ignoring invalid environment value", "var", envProcessTableTTL, "value", v)
		}
	}

	if v := os.Getenv(envRefreshInterval); v != "" {
		if dur, err := time.ParseDuration(v); err == nil && dur > 0 {
			cfg.RefreshInterval = dur
		} else {
			log.Warn("ignoring invalid environment value", "var", envRefreshInterval, "value", v)
		}
	}

	if v := os.Getenv(envLogLevel); v != "" {
		if _, err := logging.ParseLevel(v); err == nil {
			cfg.Logging.Level = v
		} else {
			log.Warn("ignoring invalid environment value", "var", envLogLevel, "value", v)
		}
	}

	if v := os.Getenv(envPreferPID); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.PreferPIDTargets = b
		} else {
			log.Warn("ignoring invalid environment value", "var", envPreferPID, "value", v)
		}
	}
}

type fileConfig struct {
	ProcfsRoot       string         `yaml:"procfs_root"`
	ProcessTableTTL  string         `yaml:"process_table_ttl"`
	RefreshInterval  string         `yaml:"refresh_interval"`
	BatchConcurrency *int           `yaml:"batch_concurrency"`
	PreferPIDTargets *bool          `yaml:"prefer_pid_targets"`
	Logging          logging.Config `yaml:"logging"`
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.ProcfsRoot != "" {
		cfg.ProcfsRoot = raw.ProcfsRoot
	}
	if raw.ProcessTableTTL != "" {
		dur, err := parsePositive("process_table_ttl", raw.ProcessTableTTL)
		if err != nil {
			return err
		}
		cfg.ProcessTableTTL = dur
	}
	if raw.RefreshInterval != "" {
		dur, err := parsePositive("refresh_interval", raw.RefreshInterval)
		if err != nil {
			return err
		}
		cfg.RefreshInterval = dur
	}
	if raw.BatchConcurrency != nil {
		if *raw.BatchConcurrency <= 0 {
			return errors.New("batch_concurrency must be > 0")
		}
		cfg.BatchConcurrency = *raw.BatchConcurrency
	}
	if raw.PreferPIDTargets != nil {
		cfg.PreferPIDTargets = *raw.PreferPIDTargets
	}
	if raw.Logging.Level != "" {
		if _, err := logging.ParseLevel(raw.Logging.Level); err != nil {
			return fmt.Errorf("parse logging.level: %w", err)
		}
		cfg.Logging.Level = raw.Logging.Level
	}
	if raw.Logging.Format != "" {
		cfg.Logging.Format = raw.Logging.Format
	}
	if raw.Logging.Output != "" {
		cfg.Logging.Output = raw.Logging.Output
	}

	return nil
}

func parsePositive(key, raw string) (time.Duration, error) {
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return dur, nil
}
