// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends for archived PDFs.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// Config captures all archiver configuration knobs loaded via Viper.
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Store    StoreConfig    `mapstructure:"store"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// SourceConfig describes the upstream search endpoint and its query.
type SourceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	SiteURL        string `mapstructure:"site_url"`
	SearchTerm     string `mapstructure:"search_term"`
	Professions    string `mapstructure:"professions"`
	SourceType     string `mapstructure:"source_type"`
	SourceCategory string `mapstructure:"source_category"`
	Publisher      string `mapstructure:"publisher"`
	ActivityRef    string `mapstructure:"activity_ref"`
	PublishedDate  string `mapstructure:"published_date"`
	PageSize       int    `mapstructure:"page_size"`
	MaxPages       int    `mapstructure:"max_pages"`
}

// FilterConfig controls eligibility.
type FilterConfig struct {
	// MissingLoginFlagPublic treats guidelines without isLoginOnly as public.
	MissingLoginFlagPublic bool `mapstructure:"missing_login_flag_public"`
}

// ArchiveConfig configures the headless rendering sessions.
type ArchiveConfig struct {
	NavTimeoutSec   int    `mapstructure:"nav_timeout_seconds"`
	WaitTimeoutSec  int    `mapstructure:"wait_timeout_seconds"`
	ExecPath        string `mapstructure:"exec_path"`
	NoSandbox       bool   `mapstructure:"no_sandbox"`
	ContentSelector string `mapstructure:"content_selector"`
	LinkXPath       string `mapstructure:"link_xpath"`
	MaxSlugLength   int    `mapstructure:"max_slug_length"`
}

// HTTPConfig configures the plain HTTP getter and politeness.
type HTTPConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int     `mapstructure:"max_body_bytes"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// StorageConfig sets where archived PDFs are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	OutputDir string `mapstructure:"output_dir"`
	PDFDir    string `mapstructure:"pdf_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// StoreConfig names the record store file inside the output directory.
type StoreConfig struct {
	Filename string `mapstructure:"filename"`
}

// PipelineConfig controls dispatch.
type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
	Limit   int `mapstructure:"limit"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig enables the optional metrics listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://ebpnet.be/nl/api/v1/guideline/search")
	v.SetDefault("source.site_url", "https://ebpnet.be")
	v.SetDefault("source.search_term", "")
	v.SetDefault("source.professions", "")
	v.SetDefault("source.source_type", "")
	v.SetDefault("source.source_category", "44934")
	v.SetDefault("source.publisher", "")
	v.SetDefault("source.activity_ref", "")
	v.SetDefault("source.published_date", "desc")
	v.SetDefault("source.page_size", 100)
	v.SetDefault("source.max_pages", 1000)
	v.SetDefault("filter.missing_login_flag_public", false)
	v.SetDefault("archive.nav_timeout_seconds", 45)
	v.SetDefault("archive.wait_timeout_seconds", 15)
	v.SetDefault("archive.exec_path", "")
	v.SetDefault("archive.no_sandbox", false)
	v.SetDefault("archive.content_selector", ".editorial-text")
	v.SetDefault("archive.link_xpath", "//a[contains(@class, 'btn-blue') and contains(translate(., 'PDF', 'pdf'), 'pdf')]")
	v.SetDefault("archive.max_slug_length", 80)
	v.SetDefault("http.user_agent", "guideline-archiver/0.1")
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.max_body_bytes", 0)
	v.SetDefault("http.rate_limit_rps", 2.0)
	v.SetDefault("http.rate_limit_burst", 2)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.output_dir", "data")
	v.SetDefault("storage.pdf_dir", "pdfs")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "pdfs")
	v.SetDefault("store.filename", "Ebpnet.csv")
	v.SetDefault("pipeline.workers", 5)
	v.SetDefault("pipeline.limit", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Source.BaseURL) == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if strings.TrimSpace(c.Source.SiteURL) == "" {
		return fmt.Errorf("source.site_url is required")
	}
	if c.Source.PageSize <= 0 {
		return fmt.Errorf("source.page_size must be > 0")
	}
	if c.Source.MaxPages <= 0 {
		return fmt.Errorf("source.max_pages must be > 0")
	}
	if c.Archive.NavTimeoutSec <= 0 || c.Archive.WaitTimeoutSec <= 0 {
		return fmt.Errorf("archive timeouts must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must be >= 0")
	}
	if strings.TrimSpace(c.Storage.OutputDir) == "" {
		return fmt.Errorf("storage.output_dir is required")
	}
	switch c.Storage.Backend {
	case BackendLocal:
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q", BackendLocal, BackendGCS)
	}
	if strings.TrimSpace(c.Store.Filename) == "" {
		return fmt.Errorf("store.filename is required")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.Limit < 0 {
		return fmt.Errorf("pipeline.limit must be >= 0")
	}
	return nil
}

// StorePath is the record store location.
func (c Config) StorePath() string {
	return filepath.Join(c.Storage.OutputDir, c.Store.Filename)
}

// PDFDir is the local directory archived PDFs are written to.
func (c Config) PDFDir() string {
	if filepath.IsAbs(c.Storage.PDFDir) {
		return c.Storage.PDFDir
	}
	return filepath.Join(c.Storage.OutputDir, c.Storage.PDFDir)
}

// NavTimeout returns the page navigation timeout.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Archive.NavTimeoutSec) * time.Second
}

// WaitTimeout returns how long a session waits for document markers.
func (c Config) WaitTimeout() time.Duration {
	return time.Duration(c.Archive.WaitTimeoutSec) * time.Second
}

// HTTPTimeout returns the plain GET timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
