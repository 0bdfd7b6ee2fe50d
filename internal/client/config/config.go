package config

import (
	"errors"
	"fmt"
	"time"
)

// Remote drivers.
const (
	DriverNone     = "none"
	DriverREST     = "rest"
	DriverPostgres = "postgres"
)

// Config holds runtime settings for the storyline CLI.
type Config struct {
	TimelineID string
	BasePath   string
	SeedPath   string
	LocalDSN   string
	Mode       string

	RemoteDriver   string
	RemoteURL      string
	AnonKey        string
	AccessToken    string
	JWTSecret      string
	PostgresDSN    string
	OverridesTable string
	EditorsTable   string
	RequestTimeout time.Duration

	PollInterval    time.Duration
	PushDebounce    time.Duration
	PushRetryMax    int
	PushBackoffBase time.Duration

	LogFile  string
	LogDebug bool

	SnapshotDir string
	S3Bucket    string
	S3Prefix    string
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string

	MetricsAddr string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.TimelineID = "default"
	c.BasePath = "data/base.json"
	c.SeedPath = "data/overrides.json"
	c.LocalDSN = "storyline.db"
	c.Mode = "view"

	c.RemoteDriver = DriverNone
	c.OverridesTable = "timeline_overrides"
	c.EditorsTable = "timeline_editors"
	c.RequestTimeout = 10 * time.Second

	c.PollInterval = 5 * time.Second
	c.PushDebounce = 600 * time.Millisecond
	c.PushRetryMax = 2
	c.PushBackoffBase = 200 * time.Millisecond

	c.SnapshotDir = "snapshots"
	c.S3Region = "us-east-1"
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if c.TimelineID == "" {
		errs = append(errs, errors.New("timeline id is required"))
	}
	if c.Mode != "view" && c.Mode != "edit" {
		errs = append(errs, fmt.Errorf("mode %q: want view or edit", c.Mode))
	}
	switch c.RemoteDriver {
	case DriverNone:
	case DriverREST:
		if c.RemoteURL == "" {
			errs = append(errs, errors.New("rest driver needs remote_url"))
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres driver needs postgres_dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("remote driver %q: want none, rest or postgres", c.RemoteDriver))
	}
	if c.PushRetryMax < 0 {
		errs = append(errs, errors.New("push_retry_max must not be negative"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	return errors.Join(errs...)
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON, the environment and command-line flags. Later sources take precedence
// over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
