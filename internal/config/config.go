package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the YAML file.
const (
	EnvListen        = "JOURNEYCAL_LISTEN"
	EnvStorageDriver = "JOURNEYCAL_STORAGE_DRIVER"
	EnvRedisURL      = "JOURNEYCAL_REDIS_URL"
	EnvLogLevel      = "JOURNEYCAL_LOG_LEVEL"
)

// StorageConfig selects where the event and calendar slots live.
type StorageConfig struct {
	// Driver is one of "file", "redis" or "memory".
	Driver   string `yaml:"driver" json:"driver"`
	Dir      string `yaml:"dir" json:"dir"`
	RedisURL string `yaml:"redis_url,omitempty" json:"redis_url,omitempty"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// WeatherConfig points the client at open-meteo (or a compatible mirror).
type WeatherConfig struct {
	GeocodingURL   string  `yaml:"geocoding_url" json:"geocoding_url"`
	ForecastURL    string  `yaml:"forecast_url" json:"forecast_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds"`
	RatePerSecond  float64 `yaml:"rate_per_second" json:"rate_per_second"`
	Language       string  `yaml:"language" json:"language"`
	Count          int     `yaml:"count" json:"count"`
}

// Timeout returns TimeoutSeconds as a duration.
func (w WeatherConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// ICSConfig is one subscribed feed imported into a calendar.
type ICSConfig struct {
	URL string `yaml:"url" json:"url"`
	// ID prefixes the ids of imported events and keys the sync.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// Calendar is the registry id imported events are filed under.
	Calendar string `yaml:"calendar" json:"calendar"`
	Color    string `yaml:"color" json:"color"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the web API. The
// password is stored as a bcrypt hash.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	PasswordHash string `yaml:"password_hash" json:"-"`
}

// Check reports whether the given credentials match.
func (b *BasicAuthConfig) Check(username, password string) bool {
	if b == nil || username != b.Username {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(b.PasswordHash), []byte(password)) == nil
}

// HashPassword returns a bcrypt hash suitable for PasswordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the grid page and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone in which "today" and grid days are computed.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "sunday" (default) or "monday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// ShowWeekends is the initial weekend visibility of the grid.
	ShowWeekends bool `yaml:"show_weekends" json:"show_weekends"`

	// RefreshCron is the cron schedule for weather refresh and ICS sync.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Storage StorageConfig `yaml:"storage" json:"storage"`
	Weather WeatherConfig `yaml:"weather" json:"weather"`
	ICS     []ICSConfig   `yaml:"ics" json:"ics"`
	Log     LogConfig     `yaml:"log" json:"log"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		Timezone:     "UTC",
		WeekStart:    "sunday",
		ShowWeekends: true,
		RefreshCron:  "0 */3 * * *",
		Storage: StorageConfig{
			Driver: "file",
			Dir:    "./var/journeycal",
			Prefix: "journeycal",
		},
		Weather: WeatherConfig{
			GeocodingURL:   "https://geocoding-api.open-meteo.com/v1",
			ForecastURL:    "https://api.open-meteo.com/v1",
			TimeoutSeconds: 10,
			RatePerSecond:  5,
			Language:       "en",
			Count:          10,
		},
		ICS: []ICSConfig{},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Normalize fills in missing or unknown values so partially filled configs
// still behave.
func (c *Config) Normalize() {
	d := DefaultConfig()

	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = d.WeekStart
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}

	switch c.Storage.Driver {
	case "file", "redis", "memory":
	default:
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = d.Storage.Dir
	}
	if c.Storage.Prefix == "" {
		c.Storage.Prefix = d.Storage.Prefix
	}

	if c.Weather.GeocodingURL == "" {
		c.Weather.GeocodingURL = d.Weather.GeocodingURL
	}
	if c.Weather.ForecastURL == "" {
		c.Weather.ForecastURL = d.Weather.ForecastURL
	}
	if c.Weather.TimeoutSeconds <= 0 {
		c.Weather.TimeoutSeconds = d.Weather.TimeoutSeconds
	}
	if c.Weather.RatePerSecond <= 0 {
		c.Weather.RatePerSecond = d.Weather.RatePerSecond
	}
	if c.Weather.Language == "" {
		c.Weather.Language = d.Weather.Language
	}
	if c.Weather.Count <= 0 {
		c.Weather.Count = d.Weather.Count
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = fmt.Sprintf("ics%d", i+1)
		}
		if c.ICS[i].Calendar == "" {
			c.ICS[i].Calendar = "personal"
		}
		if c.ICS[i].Color == "" {
			c.ICS[i].Color = "blue"
		}
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format != "json" {
		c.Log.Format = "console"
	}
}

// Location resolves Timezone, falling back to UTC for unknown names.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WeekStartDay returns WeekStart as a time.Weekday.
func (c *Config) WeekStartDay() time.Weekday {
	if c.WeekStart == "monday" {
		return time.Monday
	}
	return time.Sunday
}

// ApplyEnv loads an optional .env file next to the working directory and
// applies the JOURNEYCAL_* overrides.
func (c *Config) ApplyEnv() {
	// Missing .env is the common case.
	_ = godotenv.Load()

	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvStorageDriver); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Storage.RedisURL = v
		if os.Getenv(EnvStorageDriver) == "" {
			c.Storage.Driver = "redis"
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	c.Normalize()
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is decoded and normalized.
//
// Environment overrides are applied by the caller via ApplyEnv.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	// Keys missing from the file keep their defaults.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".journeycal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
