package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// maxNResults matches the backend's cap on passages per grounded question.
const maxNResults = 10

// ErrUnknownKey is returned for keys that are not pdfchat settings.
var ErrUnknownKey = errors.New("unknown config key")

// Setting is one key editable through `pdfchat config`.
type Setting struct {
	Key    string
	Usage  string
	Secret bool

	get func(*Config) string
	set func(*Config, string) error
}

// Value is a rendered setting.
type Value struct {
	Key   string
	Value string
	Usage string
}

var settings = []Setting{
	{
		Key:   "log_level",
		Usage: "debug, info, warn or error",
		get:   func(c *Config) string { return c.LogLevel },
		set: func(c *Config, v string) error {
			switch v = strings.ToLower(v); v {
			case "debug", "info", "warn", "error":
				c.LogLevel = v
				return nil
			}
			return fmt.Errorf("log level must be debug, info, warn or error")
		},
	},
	{
		Key:   "max_concurrent",
		Usage: "turns the server runs at once",
		get:   func(c *Config) string { return strconv.Itoa(c.MaxConcurrent) },
		set:   intSetter(func(c *Config) *int { return &c.MaxConcurrent }, 1, 0),
	},
	{
		Key:   "backend.base_url",
		Usage: "document Q&A backend, http or https",
		get:   func(c *Config) string { return c.Backend.BaseURL },
		set: func(c *Config, v string) error {
			u, err := url.Parse(v)
			if err != nil {
				return err
			}
			if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("%q is not an http(s) URL", v)
			}
			c.Backend.BaseURL = strings.TrimRight(v, "/")
			return nil
		},
	},
	{
		Key:   "backend.timeout_seconds",
		Usage: "upload timeout, 0 disables it",
		get:   func(c *Config) string { return strconv.Itoa(c.Backend.TimeoutSeconds) },
		set:   intSetter(func(c *Config) *int { return &c.Backend.TimeoutSeconds }, 0, 0),
	},
	{
		Key:   "backend.n_results",
		Usage: "passages retrieved per document question (1-10)",
		get:   func(c *Config) string { return strconv.Itoa(c.Backend.NResults) },
		set:   intSetter(func(c *Config) *int { return &c.Backend.NResults }, 1, maxNResults),
	},
	{
		Key:   "backend.tokenizer_model",
		Usage: "model whose encoding counts reply tokens",
		get:   func(c *Config) string { return c.Backend.TokenizerModel },
		set: func(c *Config, v string) error {
			if v == "" {
				return fmt.Errorf("tokenizer model must not be empty")
			}
			c.Backend.TokenizerModel = v
			return nil
		},
	},
	{
		Key:    "telegram.token",
		Usage:  "bot token, empty disables Telegram",
		Secret: true,
		get:    func(c *Config) string { return c.Telegram.Token },
		set: func(c *Config, v string) error {
			c.Telegram.Token = v
			return nil
		},
	},
	{
		Key:   "http.enabled",
		Usage: "serve the HTTP API",
		get:   func(c *Config) string { return strconv.FormatBool(c.HTTP.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%q is not a boolean", v)
			}
			c.HTTP.Enabled = b
			return nil
		},
	},
	{
		Key:   "http.listen",
		Usage: "HTTP API address, host:port",
		get:   func(c *Config) string { return c.HTTP.Listen },
		set: func(c *Config, v string) error {
			if _, _, err := net.SplitHostPort(v); err != nil {
				return err
			}
			c.HTTP.Listen = v
			return nil
		},
	},
}

// intSetter parses an integer in [lo, hi]; hi <= 0 means unbounded.
func intSetter(field func(*Config) *int, lo, hi int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%q is not an integer", v)
		}
		if n < lo || (hi > 0 && n > hi) {
			if hi > 0 {
				return fmt.Errorf("%d is outside %d-%d", n, lo, hi)
			}
			return fmt.Errorf("%d is below %d", n, lo)
		}
		*field(c) = n
		return nil
	}
}

// Settings returns every editable setting in display order.
func Settings() []Setting {
	return settings
}

func lookup(key string) (*Setting, error) {
	for i := range settings {
		if settings[i].Key == key {
			return &settings[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	s, err := lookup(key)
	return err == nil && s.Secret
}

// Mask hides all but the last four characters of a secret. Empty values stay
// empty.
func Mask(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "***" + v
	}
	return "***" + v[len(v)-4:]
}

// Value renders the setting from cfg, masking secrets unless reveal is set.
func (s *Setting) Value(cfg *Config, reveal bool) string {
	v := s.get(cfg)
	if s.Secret && !reveal {
		return Mask(v)
	}
	return v
}

// Values renders every setting from cfg.
func Values(cfg *Config, reveal bool) []Value {
	out := make([]Value, 0, len(settings))
	for i := range settings {
		s := &settings[i]
		out = append(out, Value{Key: s.Key, Value: s.Value(cfg, reveal), Usage: s.Usage})
	}
	return out
}

// Set validates raw for key and applies it to cfg. cfg is unchanged on error.
func Set(cfg *Config, key, raw string) error {
	s, err := lookup(key)
	if err != nil {
		return err
	}
	if err := s.set(cfg, strings.TrimSpace(raw)); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// GetValue reads key from the file at path, unmasked. Environment overrides
// are not applied.
func GetValue(path, key string) (string, error) {
	s, err := lookup(key)
	if err != nil {
		return "", err
	}
	cfg, err := readFile(path)
	if err != nil {
		return "", err
	}
	return s.get(cfg), nil
}

// SetValue validates raw for key and writes it to the file at path.
func SetValue(path, key, raw string) error {
	cfg, err := readFile(path)
	if err != nil {
		return err
	}
	if err := Set(cfg, key, raw); err != nil {
		return err
	}
	return Save(path, cfg)
}
