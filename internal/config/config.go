// Package config loads selfdiag settings from a YAML file, a .env file and
// SELFDIAG_* environment variables, in that order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete selfdiag configuration.
type Config struct {
	Env     string        `yaml:"env" validate:"oneof=development production test"`
	Backend BackendConfig `yaml:"backend"`
	Image   ImageConfig   `yaml:"image"`
	Log     LogConfig     `yaml:"log"`
	Patient PatientConfig `yaml:"patient"`
	Metrics MetricsConfig `yaml:"metrics"`
	Stub    StubConfig    `yaml:"stub"`
}

// BackendConfig locates the diagnosis backend.
type BackendConfig struct {
	URL       string        `yaml:"url" validate:"required,url"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
	RateLimit float64       `yaml:"rate_limit" validate:"gte=0"`
	RateBurst int           `yaml:"rate_burst" validate:"gte=0"`
}

// ImageConfig bounds uploaded tongue photos.
type ImageConfig struct {
	MaxDimension  int    `yaml:"max_dimension" validate:"gte=64,lte=8192"`
	MaxUploadSize string `yaml:"max_upload_size" validate:"required,bytesize"`
}

// MaxUploadBytes parses MaxUploadSize ("10MB", "512 KiB").
func (c ImageConfig) MaxUploadBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_upload_size %q: %w", c.MaxUploadSize, err)
	}
	return int64(n), nil
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	File  string `yaml:"file"`
}

// PatientConfig seeds patient fields the dialogue does not ask for.
type PatientConfig struct {
	Phone  string `yaml:"phone" validate:"omitempty,e164"`
	Region string `yaml:"region" validate:"required,len=2,uppercase"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// StubConfig configures `selfdiag stub`.
type StubConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Env: "production",
		Backend: BackendConfig{
			URL:     "http://localhost:58081",
			Timeout: 120 * time.Second,
		},
		Image: ImageConfig{
			MaxDimension:  1024,
			MaxUploadSize: "10MB",
		},
		Log: LogConfig{
			Level: "info",
		},
		Patient: PatientConfig{
			Region: DefaultRegion,
		},
		Stub: StubConfig{
			Addr: ":58081",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then .env, then the environment. The result is
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := cfg.mergeYAML(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromYAML reads a configuration file on top of the defaults, without
// looking at the environment.
func LoadFromYAML(path string) (*Config, error) {
	cfg := Defaults()
	if err := cfg.mergeYAML(path); err != nil {
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToYAML writes cfg to path.
func SaveToYAML(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Finalize normalizes the phone number and validates the configuration. Call
// it again after changing fields, e.g. from command-line flags.
func (c *Config) Finalize() error {
	if c.Patient.Phone != "" {
		phone, err := NormalizeE164(c.Patient.Phone, c.Patient.Region)
		if err != nil {
			return fmt.Errorf("patient.phone: %w", err)
		}
		c.Patient.Phone = phone
	}
	return Validate(c)
}

func (c *Config) mergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from SELFDIAG_* variables.
func (c *Config) applyEnv() error {
	c.Env = getEnv("SELFDIAG_ENV", c.Env)
	c.Backend.URL = getEnv("SELFDIAG_BACKEND_URL", c.Backend.URL)
	c.Log.Level = getEnv("SELFDIAG_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("SELFDIAG_LOG_FILE", c.Log.File)
	c.Image.MaxUploadSize = getEnv("SELFDIAG_IMAGE_MAX_UPLOAD_SIZE", c.Image.MaxUploadSize)
	c.Patient.Phone = getEnv("SELFDIAG_PATIENT_PHONE", c.Patient.Phone)
	c.Patient.Region = getEnv("SELFDIAG_PATIENT_REGION", c.Patient.Region)
	c.Metrics.Addr = getEnv("SELFDIAG_METRICS_ADDR", c.Metrics.Addr)
	c.Stub.Addr = getEnv("SELFDIAG_STUB_ADDR", c.Stub.Addr)

	if v, ok := os.LookupEnv("SELFDIAG_BACKEND_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SELFDIAG_BACKEND_TIMEOUT: %w", err)
		}
		c.Backend.Timeout = d
	}
	if v, ok := os.LookupEnv("SELFDIAG_BACKEND_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SELFDIAG_BACKEND_RATE_LIMIT: %w", err)
		}
		c.Backend.RateLimit = f
	}
	if v, ok := os.LookupEnv("SELFDIAG_IMAGE_MAX_DIMENSION"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SELFDIAG_IMAGE_MAX_DIMENSION: %w", err)
		}
		c.Image.MaxDimension = n
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
