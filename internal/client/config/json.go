package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/storyline/internal/flagx"
	"github.com/dmitrijs2005/storyline/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	TimelineID string `json:"timeline_id"`
	BasePath   string `json:"base_path"`
	SeedPath   string `json:"seed_path"`
	LocalDSN   string `json:"local_dsn"`
	Mode       string `json:"mode"`

	RemoteDriver   string         `json:"remote_driver"`
	RemoteURL      string         `json:"remote_url"`
	AnonKey        string         `json:"anon_key"`
	AccessToken    string         `json:"access_token"`
	JWTSecret      string         `json:"jwt_secret"`
	PostgresDSN    string         `json:"postgres_dsn"`
	OverridesTable string         `json:"overrides_table"`
	EditorsTable   string         `json:"editors_table"`
	RequestTimeout timex.Duration `json:"request_timeout"`

	PollInterval    timex.Duration `json:"poll_interval"`
	PushDebounce    timex.Duration `json:"push_debounce"`
	PushRetryMax    int            `json:"push_retry_max"`
	PushBackoffBase timex.Duration `json:"push_backoff_base"`

	LogFile  string `json:"log_file"`
	LogDebug bool   `json:"log_debug"`

	SnapshotDir string `json:"snapshot_dir"`
	S3Bucket    string `json:"s3_bucket"`
	S3Prefix    string `json:"s3_prefix"`
	S3Endpoint  string `json:"s3_endpoint"`
	S3Region    string `json:"s3_region"`

	MetricsAddr string `json:"metrics_addr"`
}

func toJson(c *Config) JsonConfig {
	return JsonConfig{
		TimelineID:      c.TimelineID,
		BasePath:        c.BasePath,
		SeedPath:        c.SeedPath,
		LocalDSN:        c.LocalDSN,
		Mode:            c.Mode,
		RemoteDriver:    c.RemoteDriver,
		RemoteURL:       c.RemoteURL,
		AnonKey:         c.AnonKey,
		AccessToken:     c.AccessToken,
		JWTSecret:       c.JWTSecret,
		PostgresDSN:     c.PostgresDSN,
		OverridesTable:  c.OverridesTable,
		EditorsTable:    c.EditorsTable,
		RequestTimeout:  timex.Duration{Duration: c.RequestTimeout},
		PollInterval:    timex.Duration{Duration: c.PollInterval},
		PushDebounce:    timex.Duration{Duration: c.PushDebounce},
		PushRetryMax:    c.PushRetryMax,
		PushBackoffBase: timex.Duration{Duration: c.PushBackoffBase},
		LogFile:         c.LogFile,
		LogDebug:        c.LogDebug,
		SnapshotDir:     c.SnapshotDir,
		S3Bucket:        c.S3Bucket,
		S3Prefix:        c.S3Prefix,
		S3Endpoint:      c.S3Endpoint,
		S3Region:        c.S3Region,
		MetricsAddr:     c.MetricsAddr,
	}
}

func (jc JsonConfig) apply(c *Config) {
	c.TimelineID = jc.TimelineID
	c.BasePath = jc.BasePath
	c.SeedPath = jc.SeedPath
	c.LocalDSN = jc.LocalDSN
	c.Mode = jc.Mode
	c.RemoteDriver = jc.RemoteDriver
	c.RemoteURL = jc.RemoteURL
	c.AnonKey = jc.AnonKey
	c.AccessToken = jc.AccessToken
	c.JWTSecret = jc.JWTSecret
	c.PostgresDSN = jc.PostgresDSN
	c.OverridesTable = jc.OverridesTable
	c.EditorsTable = jc.EditorsTable
	c.RequestTimeout = jc.RequestTimeout.Duration
	c.PollInterval = jc.PollInterval.Duration
	c.PushDebounce = jc.PushDebounce.Duration
	c.PushRetryMax = jc.PushRetryMax
	c.PushBackoffBase = jc.PushBackoffBase.Duration
	c.LogFile = jc.LogFile
	c.LogDebug = jc.LogDebug
	c.SnapshotDir = jc.SnapshotDir
	c.S3Bucket = jc.S3Bucket
	c.S3Prefix = jc.S3Prefix
	c.S3Endpoint = jc.S3Endpoint
	c.S3Region = jc.S3Region
	c.MetricsAddr = jc.MetricsAddr
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c/-config or $STORYLINE_CONFIG. The DTO starts from the current values, so
// keys absent from the file leave them alone. Read or decode errors panic.
func parseJson(cfg *Config) {
	path := flagx.ConfigPath()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	jc := toJson(cfg)
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}
	jc.apply(cfg)
}
