// Package config loads and edits the pdfchat JSON configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	Backend       struct {
		BaseURL        string `json:"base_url"`
		TimeoutSeconds int    `json:"timeout_seconds"`
		NResults       int    `json:"n_results"`
		TokenizerModel string `json:"tokenizer_model"`
	} `json:"backend"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
}

// DefaultPath returns ~/.pdfchat/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".pdfchat", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		LogLevel:      "info",
		MaxConcurrent: 2,
	}
	cfg.Backend.BaseURL = "http://localhost:8000"
	cfg.Backend.TimeoutSeconds = 120
	cfg.Backend.NResults = 3
	cfg.Backend.TokenizerModel = "gpt-4o"
	cfg.HTTP.Listen = "127.0.0.1:8080"
	return cfg
}

func Load(path string) (*Config, error) {
	// Load from file if exists, otherwise write defaults
	cfg, err := readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = defaults()
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	// Override from env (highest precedence)
	if baseURL := os.Getenv("PDFCHAT_BACKEND_URL"); baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}

	return cfg, nil
}

// BackendTimeout returns the upload timeout as a duration.
func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

// readFile decodes the file at path over the defaults.
func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
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
