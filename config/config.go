package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	ExamWatch ExamWatchConfig `yaml:"examwatch"`
}

// ExamWatchConfig is the project configuration.
type ExamWatchConfig struct {
	Engine   EngineConfig   `yaml:"engine"`
	Input    InputConfig    `yaml:"input"`
	API      APIConfig      `yaml:"api"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// EngineConfig controls the fusion scorer and session lifecycle.
type EngineConfig struct {
	Weights          map[string]float64 `yaml:"weights"`
	DecayWindow      Duration           `yaml:"decay_window"`
	Thresholds       ThresholdsConfig   `yaml:"thresholds"`
	TriggerCap       int                `yaml:"trigger_cap"`
	IdleWindow       Duration           `yaml:"idle_window"`
	EvictionInterval Duration           `yaml:"eviction_interval"`
}

// ThresholdsConfig sets the inclusive lower score bound per risk tier.
type ThresholdsConfig struct {
	Critical int `yaml:"critical"`
	High     int `yaml:"high"`
	Medium   int `yaml:"medium"`
}

// InputConfig controls the telemetry input reader.
type InputConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig controls Redis access.
type RedisConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Addr         string   `yaml:"addr"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	Key          string   `yaml:"key"`
	BlockTimeout Duration `yaml:"block_timeout"`
}

// APIConfig controls the HTTP server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// AlertsConfig controls alert output.
type AlertsConfig struct {
	Mode              string           `yaml:"mode"` // file|http
	File              FileOutputConfig `yaml:"file"`
	HTTP              HTTPOutputConfig `yaml:"http"`
	EmitInformational *bool            `yaml:"emit_informational"`
	BufferSize        int              `yaml:"buffer_size"`
}

// EmitInformationalOrDefault applies the default policy of emitting
// de-escalation alerts.
func (a AlertsConfig) EmitInformationalOrDefault() bool {
	if a.EmitInformational == nil {
		return true
	}
	return *a.EmitInformational
}

// ArchiveConfig controls evicted-session archival.
type ArchiveConfig struct {
	Enabled bool        `yaml:"enabled"`
	Redis   RedisConfig `yaml:"redis"`
	Prefix  string      `yaml:"prefix"`
}

// PipelineConfig controls pipeline behavior.
type PipelineConfig struct {
	Workers       int      `yaml:"workers"`
	BatchSize     int      `yaml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout Duration          `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks structural constraints that must hold before the engine is
// built. Scoring weights and thresholds get their deeper validation when the
// scorer is constructed.
func (c *Config) Validate() error {
	ew := c.ExamWatch
	switch ew.Alerts.Mode {
	case "", "file", "http":
	default:
		return fmt.Errorf("unknown alert output mode %q", ew.Alerts.Mode)
	}
	if ew.Alerts.Mode == "http" && ew.Alerts.HTTP.URL == "" {
		return fmt.Errorf("alert output mode is http but http.url is empty")
	}
	if ew.Engine.DecayWindow < 0 {
		return fmt.Errorf("engine.decay_window must not be negative")
	}
	if ew.Engine.TriggerCap < 0 {
		return fmt.Errorf("engine.trigger_cap must not be negative")
	}
	if ew.Engine.IdleWindow < 0 {
		return fmt.Errorf("engine.idle_window must not be negative")
	}
	return nil
}
