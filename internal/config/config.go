// Package config holds the harvester configuration, it is read from
// `statharvest.json5` and `statharvest.local.json5` on top of Defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"statharvest/internal/components/telemetry"
	"statharvest/internal/harvest"
	"statharvest/lib/configutil"
	configlibsql "statharvest/lib/configutil/libsql"
	"statharvest/lib/timezone"
)

const DefaultFile = "statharvest.json5"

type Config struct {
	BaseUrl string `json:"base_url"`
	// Root is the hierarchy node the group is searched under.
	Root    string   `json:"root"`
	TableId string   `json:"table_id"`
	Tables  []string `json:"tables"`

	OutputPath         string `json:"output_path"`
	MetadataOutputPath string `json:"metadata_output_path"`

	RequestDelaySeconds     float64 `json:"request_delay_seconds"`
	TableDelaySeconds       float64 `json:"table_delay_seconds"`
	RateLimitBackoffSeconds float64 `json:"rate_limit_backoff_seconds"`
	MaxRetries              int     `json:"max_retries"`
	TimeoutSeconds          float64 `json:"timeout_seconds"`

	ValueCap         int      `json:"value_cap"`
	AlwaysFull       []string `json:"always_full"`
	MaxDepth         int      `json:"max_depth"`
	ShrinkOnTooLarge bool     `json:"shrink_on_too_large"`

	// Timezone is used for report timestamps.
	Timezone string `json:"timezone"`

	Store     configlibsql.Struct `json:"store"`
	Listen    string              `json:"listen"`
	Telemetry telemetry.Config    `json:"telemetry"`
}

func Defaults() Config {
	return Config{
		BaseUrl:                 "https://api.scb.se/OV0104/v1/doris/sv/ssd",
		Root:                    "AM",
		TableId:                 "AM0211E",
		OutputPath:              "SCB_data.txt",
		RequestDelaySeconds:     0.5,
		TableDelaySeconds:       2,
		RateLimitBackoffSeconds: 5,
		MaxRetries:              5,
		TimeoutSeconds:          60,
		ValueCap:                harvest.DefaultValueCap,
		AlwaysFull:              slices.Clone(harvest.DefaultAlwaysFull),
		MaxDepth:                harvest.DefaultMaxDepth,
		Timezone:                timezone.Stockholm,
		Store:                   configlibsql.Struct{File: "statharvest.db"},
		Listen:                  "127.0.0.1:8000",
	}
}

// Load reads path (and its local override) on top of Defaults. A missing
// file is not an error, the defaults are returned as is.
func Load(path string) (Config, []string, error) {
	cfg := Defaults()
	applied, err := configutil.Merge(path, &cfg)
	if err != nil {
		return cfg, applied, err
	}
	return cfg, applied, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.BaseUrl == "" {
		errs = append(errs, fmt.Errorf("base_url is required"))
	} else if u, err := url.Parse(c.BaseUrl); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q is not an absolute url", c.BaseUrl))
	}
	if c.Root == "" {
		errs = append(errs, fmt.Errorf("root is required"))
	}
	if c.OutputPath == "" {
		errs = append(errs, fmt.Errorf("output_path is required"))
	}

	if _, err := timezone.Load(c.Timezone); err != nil {
		errs = append(errs, err)
	}

	nonNegative := []struct {
		key   string
		value float64
	}{
		{"request_delay_seconds", c.RequestDelaySeconds},
		{"table_delay_seconds", c.TableDelaySeconds},
		{"rate_limit_backoff_seconds", c.RateLimitBackoffSeconds},
		{"timeout_seconds", c.TimeoutSeconds},
		{"max_retries", float64(c.MaxRetries)},
		{"max_depth", float64(c.MaxDepth)},
	}
	for _, field := range nonNegative {
		if field.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", field.key, field.value))
		}
	}
	return errors.Join(errs...)
}

func seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}

// Location resolves Timezone, it falls back to time.Local when the zone
// cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := timezone.Load(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c Config) RootPath() harvest.Path {
	return harvest.ParsePath(c.Root)
}

func (c Config) ClientOptions() harvest.ClientOptions {
	return harvest.ClientOptions{
		BaseUrl:          c.BaseUrl,
		RequestDelay:     seconds(c.RequestDelaySeconds),
		RateLimitBackoff: seconds(c.RateLimitBackoffSeconds),
		MaxRetries:       c.MaxRetries,
		Timeout:          seconds(c.TimeoutSeconds),
	}
}

func (c Config) Policy() harvest.Policy {
	return harvest.Policy{
		Cap:        c.ValueCap,
		AlwaysFull: slices.Clone(c.AlwaysFull),
	}
}

func (c Config) HarvesterOptions() harvest.HarvesterOptions {
	return harvest.HarvesterOptions{
		Policy:           c.Policy(),
		ShrinkOnTooLarge: c.ShrinkOnTooLarge,
		TableDelay:       seconds(c.TableDelaySeconds),
		MaxDepth:         c.MaxDepth,
	}
}
