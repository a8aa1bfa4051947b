// Package config holds the job configuration. Values come from a YAML file,
// AVROETL_* environment variables and command-line flags, merged by viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// AVROETL_STORAGE_BUCKET or AVROETL_PARAMS_BEGIN_DATE.
const EnvPrefix = "AVROETL"

// Config is the whole job configuration.
type Config struct {
	Storage   Storage   `mapstructure:"storage"`
	Source    Source    `mapstructure:"source"`
	Flatten   Flatten   `mapstructure:"flatten"`
	Output    Output    `mapstructure:"output"`
	Ledger    Ledger    `mapstructure:"ledger"`
	Metrics   Metrics   `mapstructure:"metrics"`
	Warehouse Warehouse `mapstructure:"warehouse"`
	Runtime   Runtime   `mapstructure:"runtime"`
	Schedule  Schedule  `mapstructure:"schedule"`
}

// Storage selects the object store adapter.
type Storage struct {
	Kind      string `mapstructure:"kind"` // s3, minio or mem
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Source controls object selection.
type Source struct {
	Prefix   string `mapstructure:"prefix"`
	Marker   string `mapstructure:"marker"`
	Glob     string `mapstructure:"glob"`
	Location string `mapstructure:"location"`
	Verbose  bool   `mapstructure:"verbose"`
}

// Flatten names the nested fields to lift.
type Flatten struct {
	Fields    []string `mapstructure:"fields"`
	Collision string   `mapstructure:"collision"` // overwrite or reject
}

// Output controls the written artifact.
type Output struct {
	// Bucket defaults to Storage.Bucket.
	Bucket     string `mapstructure:"bucket"`
	Prefix     string `mapstructure:"prefix"`
	Format     string `mapstructure:"format"`
	UniqueKeys bool   `mapstructure:"unique_keys"`
}

// Ledger is the sqlite run ledger. An empty path disables it.
type Ledger struct {
	Path string `mapstructure:"path"`
}

type Metrics struct {
	Backend        string `mapstructure:"backend"` // none or pushgateway
	PushgatewayURL string `mapstructure:"pushgateway_url"`
}

// Warehouse is the optional Postgres load. An empty DSN disables it.
type Warehouse struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

type Runtime struct {
	Streaming     bool `mapstructure:"streaming"`
	ChannelBuffer int  `mapstructure:"channel_buffer"`
}

type Schedule struct {
	Cron string `mapstructure:"cron"`
}

// SetDefaults registers the defaults on v. Every key gets one, even when
// empty, because Unmarshal only sees env overrides for keys viper knows.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.kind", "s3")
	v.SetDefault("storage.bucket", "avro-awsglue-job-source")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.path_style", false)
	v.SetDefault("storage.use_ssl", true)

	v.SetDefault("source.prefix", "avro")
	v.SetDefault("source.marker", ".avro")
	v.SetDefault("source.glob", "")
	v.SetDefault("source.location", "UTC")
	v.SetDefault("source.verbose", false)

	v.SetDefault("flatten.fields", []string{"decoded_rate_token"})
	v.SetDefault("flatten.collision", "overwrite")

	v.SetDefault("output.bucket", "")
	v.SetDefault("output.prefix", "test-avro")
	v.SetDefault("output.format", "csv")
	v.SetDefault("output.unique_keys", true)

	v.SetDefault("ledger.path", "")

	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.pushgateway_url", "")

	v.SetDefault("warehouse.dsn", "")
	v.SetDefault("warehouse.table", "")

	v.SetDefault("runtime.streaming", false)
	v.SetDefault("runtime.channel_buffer", 256)

	v.SetDefault("schedule.cron", "0 2 * * *")

	v.SetDefault("params.begin_date", "Default")
	v.SetDefault("params.end_date", "Default")
}

// NewViper returns a viper instance with defaults and env overrides wired.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load decodes v into a Config and fills derived defaults.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if c.Output.Bucket == "" {
		c.Output.Bucket = c.Storage.Bucket
	}
	c.Flatten.Fields = splitList(c.Flatten.Fields)
	return c, nil
}

// splitList trims names and splits comma-separated entries, which is how a
// list arrives from an env var.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
