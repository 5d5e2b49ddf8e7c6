package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Pairing modes.
const (
	PairingWeb      = "web"
	PairingTerminal = "terminal"
)

// EnvPrefix is prepended to every environment override, e.g.
// OPENACC_MONITOR_MIN_SLEEP.
const EnvPrefix = "OPENACC"

// Config represents the full agent configuration
type Config struct {
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`
	Device   DeviceConfig   `mapstructure:"device" yaml:"device"`
	Service  ServiceConfig  `mapstructure:"service" yaml:"service"`
	Monitor  MonitorConfig  `mapstructure:"monitor" yaml:"monitor"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer" yaml:"analyzer"`
	OCR      OCRConfig      `mapstructure:"ocr" yaml:"ocr"`
	Pairing  PairingConfig  `mapstructure:"pairing" yaml:"pairing"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Events   EventsConfig   `mapstructure:"events" yaml:"events"`
}

// APIConfig contains backend settings
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// IdentityConfig contains identity provider settings. APIKey takes
// precedence over APIKeySecret, a Secret Manager path.
type IdentityConfig struct {
	APIKey       string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	APIKeySecret string `mapstructure:"api_key_secret" yaml:"api_key_secret,omitempty"`
	TokenURL     string `mapstructure:"token_url" yaml:"token_url,omitempty"`
	Project      string `mapstructure:"project" yaml:"project,omitempty"` // GCP project for bare secret names
}

// DeviceConfig locates the persisted device record
type DeviceConfig struct {
	RecordPath string `mapstructure:"record_path" yaml:"record_path"`
}

// ServiceConfig describes the supervising systemd unit
type ServiceConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	UnitPath string `mapstructure:"unit_path" yaml:"unit_path"`
}

// MonitorConfig contains monitoring loop timing
type MonitorConfig struct {
	MinSleep         time.Duration `mapstructure:"min_sleep" yaml:"min_sleep"`
	MaxSleep         time.Duration `mapstructure:"max_sleep" yaml:"max_sleep"`
	ResourceInterval time.Duration `mapstructure:"resource_interval" yaml:"resource_interval"`
}

// AnalyzerConfig contains image analysis settings
type AnalyzerConfig struct {
	SliceHeight    int `mapstructure:"slice_height" yaml:"slice_height"`
	ThrottleFactor int `mapstructure:"throttle_factor" yaml:"throttle_factor"`
}

// OCRConfig selects the text recognition engine
type OCRConfig struct {
	Engine   string `mapstructure:"engine" yaml:"engine"`
	Binary   string `mapstructure:"binary" yaml:"binary"`
	Language string `mapstructure:"language" yaml:"language"`
	DPI      int    `mapstructure:"dpi" yaml:"dpi"`
}

// PairingConfig contains first-run pairing settings
type PairingConfig struct {
	Mode        string `mapstructure:"mode" yaml:"mode"`
	Listen      string `mapstructure:"listen" yaml:"listen"`
	OpenBrowser bool   `mapstructure:"open_browser" yaml:"open_browser"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Level        string `mapstructure:"level" yaml:"level"`
	File         string `mapstructure:"file" yaml:"file"`
	MaxSizeMB    int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups   int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays   int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	CloudProject string `mapstructure:"cloud_project" yaml:"cloud_project,omitempty"`
	LogID        string `mapstructure:"log_id" yaml:"log_id,omitempty"`
}

// EventsConfig enables the local cycle journal when JournalDir is set
type EventsConfig struct {
	JournalDir string `mapstructure:"journal_dir" yaml:"journal_dir,omitempty"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: "https://us-central1-openaccountability.cloudfunctions.net",
			Timeout: 30 * time.Second,
		},
		Device: DeviceConfig{RecordPath: ".device"},
		Service: ServiceConfig{
			Name:     "open-accountability",
			UnitPath: "/etc/systemd/system/open-accountability.service",
		},
		Monitor: MonitorConfig{
			MinSleep:         2 * time.Minute,
			MaxSleep:         5 * time.Minute,
			ResourceInterval: 30 * time.Second,
		},
		Analyzer: AnalyzerConfig{SliceHeight: 512, ThrottleFactor: 10},
		OCR: OCRConfig{
			Engine:   "tesseract",
			Binary:   "tesseract",
			Language: "eng",
			DPI:      100,
		},
		Pairing: PairingConfig{
			Mode:        PairingWeb,
			Listen:      "127.0.0.1:8000",
			OpenBrowser: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "output.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 3,
		},
	}
}

// SetDefaults registers every key with v so environment overrides are seen
// by Unmarshal, and binds API_KEY to identity.api_key.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("identity.api_key", "")
	v.SetDefault("identity.api_key_secret", "")
	v.SetDefault("identity.token_url", "")
	v.SetDefault("identity.project", "")
	v.SetDefault("device.record_path", d.Device.RecordPath)
	v.SetDefault("service.name", d.Service.Name)
	v.SetDefault("service.unit_path", d.Service.UnitPath)
	v.SetDefault("monitor.min_sleep", d.Monitor.MinSleep)
	v.SetDefault("monitor.max_sleep", d.Monitor.MaxSleep)
	v.SetDefault("monitor.resource_interval", d.Monitor.ResourceInterval)
	v.SetDefault("analyzer.slice_height", d.Analyzer.SliceHeight)
	v.SetDefault("analyzer.throttle_factor", d.Analyzer.ThrottleFactor)
	v.SetDefault("ocr.engine", d.OCR.Engine)
	v.SetDefault("ocr.binary", d.OCR.Binary)
	v.SetDefault("ocr.language", d.OCR.Language)
	v.SetDefault("ocr.dpi", d.OCR.DPI)
	v.SetDefault("pairing.mode", d.Pairing.Mode)
	v.SetDefault("pairing.listen", d.Pairing.Listen)
	v.SetDefault("pairing.open_browser", d.Pairing.OpenBrowser)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.cloud_project", "")
	v.SetDefault("logging.log_id", "")
	v.SetDefault("events.journal_dir", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("identity.api_key", EnvPrefix+"_IDENTITY_API_KEY", "API_KEY")
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	d := Defaults()

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = d.API.BaseURL
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = d.API.Timeout
	}
	if cfg.Device.RecordPath == "" {
		cfg.Device.RecordPath = d.Device.RecordPath
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = d.Service.Name
	}
	if cfg.Service.UnitPath == "" {
		cfg.Service.UnitPath = "/etc/systemd/system/" + cfg.Service.Name + ".service"
	}
	if cfg.Monitor.MinSleep == 0 {
		cfg.Monitor.MinSleep = d.Monitor.MinSleep
	}
	if cfg.Monitor.MaxSleep == 0 {
		cfg.Monitor.MaxSleep = d.Monitor.MaxSleep
	}
	if cfg.Monitor.ResourceInterval == 0 {
		cfg.Monitor.ResourceInterval = d.Monitor.ResourceInterval
	}
	if cfg.Analyzer.SliceHeight == 0 {
		cfg.Analyzer.SliceHeight = d.Analyzer.SliceHeight
	}
	if cfg.Analyzer.ThrottleFactor == 0 {
		cfg.Analyzer.ThrottleFactor = d.Analyzer.ThrottleFactor
	}
	if cfg.OCR.Engine == "" {
		cfg.OCR.Engine = d.OCR.Engine
	}
	if cfg.OCR.Binary == "" {
		cfg.OCR.Binary = d.OCR.Binary
	}
	if cfg.OCR.Language == "" {
		cfg.OCR.Language = d.OCR.Language
	}
	if cfg.Pairing.Mode == "" {
		cfg.Pairing.Mode = d.Pairing.Mode
	}
	if cfg.Pairing.Listen == "" {
		cfg.Pairing.Listen = d.Pairing.Listen
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = d.Logging.MaxBackups
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = d.Logging.MaxAgeDays
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}

	if c.Monitor.MinSleep <= 0 || c.Monitor.MaxSleep <= 0 {
		return fmt.Errorf("monitor sleep bounds must be positive")
	}
	if c.Monitor.MinSleep > c.Monitor.MaxSleep {
		return fmt.Errorf("monitor.min_sleep (%s) exceeds monitor.max_sleep (%s)", c.Monitor.MinSleep, c.Monitor.MaxSleep)
	}
	if c.Monitor.ResourceInterval < 0 {
		return fmt.Errorf("monitor.resource_interval must not be negative")
	}

	if c.Analyzer.SliceHeight <= 0 {
		return fmt.Errorf("analyzer.slice_height must be positive")
	}
	if c.Analyzer.ThrottleFactor < 0 {
		return fmt.Errorf("analyzer.throttle_factor must not be negative")
	}

	validEngines := map[string]bool{"tesseract": true, "gosseract": true}
	if !validEngines[c.OCR.Engine] {
		return fmt.Errorf("invalid ocr engine: %s (must be tesseract or gosseract)", c.OCR.Engine)
	}

	validModes := map[string]bool{PairingWeb: true, PairingTerminal: true}
	if !validModes[c.Pairing.Mode] {
		return fmt.Errorf("invalid pairing mode: %s (must be web or terminal)", c.Pairing.Mode)
	}

	return nil
}

// ValidateForRun additionally checks what the run command needs to contact
// the identity provider.
func (c *Config) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Identity.APIKey == "" && c.Identity.APIKeySecret == "" {
		return fmt.Errorf("identity API key is required (set API_KEY or identity.api_key_secret)")
	}
	return nil
}
