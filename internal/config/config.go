package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.grouparchive/config.toml. Every key is
// optional; command-line flags override whatever is set here.
type Config struct {
	Database           string `toml:"database"`
	DownloadLocation   string `toml:"download_location"`
	AttachmentLocation string `toml:"attachment_location"`

	GroupMeBaseURL string  `toml:"groupme_base_url"`
	GroupMeRPS     float64 `toml:"groupme_rps"`
	PageSize       int     `toml:"page_size"`

	SlackBaseURL      string   `toml:"slack_base_url"`
	SlackRPS          float64  `toml:"slack_rps"`
	ProgressEvery     int      `toml:"progress_every"`
	PeriodicCooldown  Duration `toml:"periodic_cooldown"`
	RateLimitCooldown Duration `toml:"rate_limit_cooldown"`
}

// Duration is a time.Duration written as a string such as "30s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	return &Config{
		Database:           "database.db",
		DownloadLocation:   "attachments",
		AttachmentLocation: "attachments",
		PageSize:           100,
		SlackRPS:           1,
		ProgressEvery:      100,
		PeriodicCooldown:   Duration{30 * time.Second},
		RateLimitCooldown:  Duration{5 * time.Minute},
	}
}

// Load decodes the file at path over Defaults(). A missing file is an
// error wrapping fs.ErrNotExist.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Defaults().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
