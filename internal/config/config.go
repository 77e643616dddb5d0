package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level" env:"LOG_LEVEL"`
	MaxConcurrent int    `json:"max_concurrent"`
	HTTP          struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen" env:"LISTEN_ADDR"`
	} `json:"http"`
	Assets struct {
		Background string `json:"background"`
		Font       string `json:"font"`
		WordList   string `json:"word_list"`
	} `json:"assets"`
	Twitter struct {
		APIKey            string `json:"api_key" env:"API_KEY" secret:"true"`
		APIKeySecret      string `json:"api_key_secret" env:"API_KEY_SECRET" secret:"true"`
		AccessToken       string `json:"access_token" env:"ACCESS_TOKEN" secret:"true"`
		AccessTokenSecret string `json:"access_token_secret" env:"ACCESS_TOKEN_SECRET" secret:"true"`
		BearerToken       string `json:"bearer_token" env:"BEARER_TOKEN" secret:"true"`
		ScreenName        string `json:"screen_name" env:"SCREEN_NAME"`
		APIBaseURL        string `json:"api_base_url"`
		UploadBaseURL     string `json:"upload_base_url"`
	} `json:"twitter"`
	Stream StreamConfig `json:"stream"`
}

// StreamConfig holds the reconnect timings as Go duration strings, and the
// cron schedule of the periodic rule check (empty disables it).
type StreamConfig struct {
	RateLimitFloor   string `json:"rate_limit_floor"`
	RateLimitCeiling string `json:"rate_limit_ceiling"`
	TransientDelay   string `json:"transient_delay"`
	RuleCheck        string `json:"rule_check"`
}

// Timings parses the configured durations. The rate-limit floor must be
// positive so a 429 always waits before reconnecting.
func (s StreamConfig) Timings() (floor, ceiling, transient time.Duration, err error) {
	if floor, err = time.ParseDuration(s.RateLimitFloor); err != nil {
		return 0, 0, 0, fmt.Errorf("stream.rate_limit_floor: %w", err)
	}
	if ceiling, err = time.ParseDuration(s.RateLimitCeiling); err != nil {
		return 0, 0, 0, fmt.Errorf("stream.rate_limit_ceiling: %w", err)
	}
	if transient, err = time.ParseDuration(s.TransientDelay); err != nil {
		return 0, 0, 0, fmt.Errorf("stream.transient_delay: %w", err)
	}
	if floor <= 0 {
		return 0, 0, 0, fmt.Errorf("stream.rate_limit_floor must be positive, got %s", floor)
	}
	if transient < 0 {
		return 0, 0, 0, fmt.Errorf("stream.transient_delay must not be negative, got %s", transient)
	}
	if ceiling < floor {
		return 0, 0, 0, fmt.Errorf("stream.rate_limit_ceiling %s is below floor %s", ceiling, floor)
	}
	return floor, ceiling, transient, nil
}

// Defaults returns the configuration written on first run.
func Defaults() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".tiredmanhattan"),
		MaxConcurrent: 4,
	}
	cfg.LogLevel = "info"
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = "127.0.0.1:8080"
	cfg.Assets.Background = filepath.Join(cfg.DataDir, "tired-manhattan.png")
	cfg.Twitter.APIBaseURL = "https://api.twitter.com"
	cfg.Twitter.UploadBaseURL = "https://upload.twitter.com"
	cfg.Stream.RateLimitFloor = "1m"
	cfg.Stream.RateLimitCeiling = "30m"
	cfg.Stream.TransientDelay = "10s"
	cfg.Stream.RuleCheck = "@every 1h"
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := Defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to the generic nested map its JSON encodes to.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns cfg as dot-separated keys, optionally masking secrets.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}

// GetValue returns the value stored under a dot-separated key. The file is
// created with defaults when it does not exist yet.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(raw)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under a dot-separated key in an existing file. The
// key must name a Config field. Values that parse as JSON (numbers, booleans)
// keep their type; anything else is stored as a string, and the result must
// still decode into Config.
func SetValue(path, key, value string) error {
	if !KnownKey(key) {
		return fmt.Errorf("unknown config key: %s", key)
	}
	raw, err := readRaw(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}

	flat := Flatten(raw)
	flat[key] = parsed
	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := json.Unmarshal(data, new(Config)); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return writeFile(path, data)
}
