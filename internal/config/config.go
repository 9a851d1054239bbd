package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	appDir           = "notefs"
	DefaultServerURL = "https://sync.standardnotes.org"
)

// Config represents the notefs configuration file.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Mount   MountConfig   `yaml:"mount"`
	Sync    SyncConfig    `yaml:"sync"`
	Notify  NotifyConfig  `yaml:"notify"`
	Log     LogConfig     `yaml:"log"`
}

// Validate validates every section.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Mount.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Notify.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}

// ServerConfig points at the Standard Notes sync server.
type ServerConfig struct {
	URL string `yaml:"url"`
}

func (c *ServerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, is.URL),
	)
}

// SessionConfig selects the session store by DSN, e.g. file:///path,
// sqlite:///path, postgres://... or redis://...
type SessionConfig struct {
	DSN string `yaml:"dsn"`
}

func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DSN, validation.Required),
	)
}

type MountConfig struct {
	Extension  string `yaml:"extension"`
	Debug      bool   `yaml:"debug"`
	AllowOther bool   `yaml:"allow_other"`
}

func (c *MountConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Extension, validation.By(noSeparator)),
	)
}

type SyncConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Jitter    float64       `yaml:"jitter"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxRounds int           `yaml:"max_rounds"`
}

func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.Jitter, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxRounds, validation.Required, validation.Min(1)),
	)
}

// NotifyConfig enables the websocket change listener when URL is set.
type NotifyConfig struct {
	URL string `yaml:"url"`
}

func (c *NotifyConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, is.URL),
	)
}

type LogConfig struct {
	Verbosity int    `yaml:"verbosity"`
	File      string `yaml:"file"`
}

func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Verbosity, validation.Min(0)),
	)
}

// NewDefaultConfig returns the configuration used when no file exists.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL: DefaultServerURL,
		},
		Session: SessionConfig{
			DSN: "file://" + filepath.Join(xdg.DataHome, appDir, "session.json"),
		},
		Mount: MountConfig{
			Extension: ".txt",
		},
		Sync: SyncConfig{
			Interval:  2 * time.Second,
			Jitter:    0.2,
			Timeout:   15 * time.Second,
			MaxRounds: 16,
		},
	}
}

// DefaultPath is the config file location under the XDG config directory.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appDir, "config.yaml")
}

// ApplyEnv overrides fields from NOTEFS_* environment variables.
func (c *Config) ApplyEnv() {
	c.Server.URL = envOrDefault("NOTEFS_SERVER_URL", c.Server.URL)
	c.Session.DSN = envOrDefault("NOTEFS_SESSION_DSN", c.Session.DSN)
	c.Mount.Extension = envOrDefault("NOTEFS_EXTENSION", c.Mount.Extension)
	c.Sync.Interval = durationEnv("NOTEFS_SYNC_INTERVAL", c.Sync.Interval)
	c.Sync.Jitter = floatEnv("NOTEFS_SYNC_JITTER", c.Sync.Jitter)
	c.Sync.Timeout = durationEnv("NOTEFS_SYNC_TIMEOUT", c.Sync.Timeout)
	c.Sync.MaxRounds = intEnv("NOTEFS_SYNC_MAX_ROUNDS", c.Sync.MaxRounds)
	c.Notify.URL = envOrDefault("NOTEFS_NOTIFY_URL", c.Notify.URL)
	c.Log.Verbosity = intEnv("NOTEFS_LOG_VERBOSITY", c.Log.Verbosity)
	c.Log.File = envOrDefault("NOTEFS_LOG_FILE", c.Log.File)
}

func noSeparator(value any) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, "/\\") {
		return validation.NewError("validation_no_separator", "must not contain a path separator")
	}
	return nil
}
