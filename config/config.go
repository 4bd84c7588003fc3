// Package config loads runtime settings. Sources apply in order: defaults,
// an optional YAML file, an optional .env file, then the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	Workers     int    `yaml:"workers"`
	QueueSize   int    `yaml:"queue_size"`
	RedisURL    string `yaml:"redis_url"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
	// ResultTTL is how long finished tasks are kept.
	ResultTTL      time.Duration `yaml:"result_ttl"`
	ActionTimeout  time.Duration `yaml:"action_timeout"`
	ExecutablePath string        `yaml:"executable_path"`
	LogLevel       string        `yaml:"log_level"`
	Headless       bool          `yaml:"headless"`
}

func Default() Config {
	return Config{
		HTTPAddr:    ":8085",
		Workers:     2,
		QueueSize:   100,
		NATSSubject: "turnstile.events.solved",
		ResultTTL:   30 * time.Minute,
		LogLevel:    "info",
		Headless:    true,
	}
}

// Load layers configFile and envFile (either may be empty) over Default and
// finishes with environment overrides. Variables already set in the
// environment win over the env file.
func Load(configFile, envFile string) (Config, error) {
	cfg := Default()
	if configFile != "" {
		var err error
		if cfg, err = FromFile(configFile, cfg); err != nil {
			return Config{}, err
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	return FromEnv(cfg)
}

// FromFile decodes a YAML file over base. Keys absent from the file keep
// their base values.
func FromFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv applies environment overrides to base.
func FromEnv(base Config) (Config, error) {
	cfg := base
	if v := os.Getenv("SOLVER_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("PORT"); v != "" && os.Getenv("SOLVER_HTTP_ADDR") == "" {
		if !strings.HasPrefix(v, ":") {
			v = ":" + v
		}
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("SOLVER_NATS_SUBJECT"); v != "" {
		cfg.NATSSubject = v
	}
	if v := os.Getenv("SOLVER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	var err error
	if cfg.Workers, err = intEnv("SOLVER_WORKERS", cfg.Workers); err != nil {
		return Config{}, err
	}
	if cfg.QueueSize, err = intEnv("SOLVER_QUEUE_SIZE", cfg.QueueSize); err != nil {
		return Config{}, err
	}
	if cfg, err = BrowserFromEnv(cfg); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("SOLVER_RESULT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("SOLVER_RESULT_TTL: %w", err)
		}
		cfg.ResultTTL = d
	}
	if v := os.Getenv("SOLVER_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("SOLVER_HEADLESS: %w", err)
		}
		cfg.Headless = b
	}
	return cfg, nil
}

// BrowserFromEnv applies only the browser launch settings
// (PLAYWRIGHT_EXECUTABLE_PATH, SOLVER_ACTION_TIMEOUT_MS) to base. A one-shot
// solve reads nothing else.
func BrowserFromEnv(base Config) (Config, error) {
	cfg := base
	if v := os.Getenv("PLAYWRIGHT_EXECUTABLE_PATH"); v != "" {
		cfg.ExecutablePath = v
	}
	ms, err := intEnv("SOLVER_ACTION_TIMEOUT_MS", int(cfg.ActionTimeout.Milliseconds()))
	if err != nil {
		return Config{}, err
	}
	cfg.ActionTimeout = time.Duration(ms) * time.Millisecond
	return cfg, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: invalid value %q", key, v)
	}
	return n, nil
}
