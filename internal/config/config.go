// Package config loads the sampler and server settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"gopkg.in/yaml.v3"
)

// MinSampleInterval is the fastest supported sampling cadence.
const MinSampleInterval = 100 * time.Millisecond

// Duration is a time.Duration written as a Go duration string ("1s", "5m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	SampleInterval Duration      `yaml:"sample_interval"`
	Chart          ChartConfig   `yaml:"chart"`
	Window         WindowConfig  `yaml:"window"`
	Peak           PeakConfig    `yaml:"peak"`
	FPS            FPSConfig     `yaml:"fps"`
	FastPath       bool          `yaml:"fast_path"`
	Sources        SourcesConfig `yaml:"sources"`
	Server         ServerConfig  `yaml:"server"`
	LogLevel       string        `yaml:"log_level"`
}

type ChartConfig struct {
	Capacity int `yaml:"capacity"`
}

type WindowConfig struct {
	Retention Duration `yaml:"retention"`
}

type PeakConfig struct {
	Window Duration `yaml:"window"`
	// ReportInterval of zero disables the periodic peak report.
	ReportInterval Duration `yaml:"report_interval"`
}

type FPSConfig struct {
	Floor int `yaml:"floor"`
}

type SourcesConfig struct {
	ProcRoot    string `yaml:"proc_root"`
	ThermalZone string `yaml:"thermal_zone"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

func Default() *Config {
	return &Config{
		SampleInterval: Duration{time.Second},
		Chart:          ChartConfig{Capacity: 60},
		Window:         WindowConfig{Retention: Duration{5 * time.Minute}},
		Peak: PeakConfig{
			Window:         Duration{60 * time.Second},
			ReportInterval: Duration{60 * time.Second},
		},
		FPS:      FPSConfig{Floor: 30},
		FastPath: true,
		Sources: SourcesConfig{
			ProcRoot:    "/proc",
			ThermalZone: "/sys/class/thermal/thermal_zone0/temp",
		},
		Server:   ServerConfig{Addr: ":8080"},
		LogLevel: "info",
	}
}

// Load reads path over the defaults. A missing file yields Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("error reading config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("error loading config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.SampleInterval.Duration < MinSampleInterval {
		errs = append(errs, fmt.Errorf("sample_interval %s is below %s", c.SampleInterval.Duration, MinSampleInterval))
	}
	if c.Chart.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("chart.capacity must be positive, got %d", c.Chart.Capacity))
	}
	if c.Window.Retention.Duration <= 0 {
		errs = append(errs, errors.New("window.retention must be positive"))
	}
	if c.Peak.Window.Duration <= 0 {
		errs = append(errs, errors.New("peak.window must be positive"))
	}
	if c.Peak.ReportInterval.Duration < 0 {
		errs = append(errs, errors.New("peak.report_interval must not be negative"))
	}
	if c.FPS.Floor < 0 {
		errs = append(errs, fmt.Errorf("fps.floor must not be negative, got %d", c.FPS.Floor))
	}
	if c.Sources.ProcRoot == "" {
		errs = append(errs, errors.New("sources.proc_root is required"))
	}
	if _, ok := logLevels[strings.ToLower(c.LogLevel)]; !ok {
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

var logLevels = map[string]log.Lvl{
	"debug": log.DEBUG,
	"info":  log.INFO,
	"warn":  log.WARN,
	"error": log.ERROR,
	"off":   log.OFF,
}

// Level maps LogLevel to the logger level, defaulting to INFO.
func (c *Config) Level() log.Lvl {
	if lvl, ok := logLevels[strings.ToLower(c.LogLevel)]; ok {
		return lvl
	}
	return log.INFO
}
