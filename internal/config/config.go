package config

import (
	"io"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

const (
	EnvConfigFile = "BOOKGRAPH_CONFIG"
	EnvPort       = "PORT"
)

type Config struct {
	// Listen address of the HTTP server.
	Addr string `yaml:"addr"`

	// Whether to serve the GraphQL playground at "/".
	Playground bool `yaml:"playground"`

	// Optional YAML catalogue replacing the built-in books and authors.
	Dataset string `yaml:"dataset"`

	// Max query complexity, disabled when 0.
	ComplexityLimit int `yaml:"complexityLimit"`

	// How long in-flight requests may take to finish on shutdown.
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`

	// Verbosity of V(n) logs.
	LogVerbosity int `yaml:"logVerbosity"`

	// Allowed CORS origins, CORS is disabled when empty.
	CORSOrigins []string `yaml:"corsOrigins"`
}

// Duration is a time.Duration written as "10s" or "1m30s" in YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(b []byte) error {
	var s string
	if err := yaml.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(d.String())
}

func Default() *Config {
	return &Config{
		Addr:            ":8080",
		Playground:      true,
		ComplexityLimit: 100,
		ShutdownTimeout: Duration{10 * time.Second},
	}
}

// fileConfig mirrors Config with optional fields so that absent keys keep their defaults.
type fileConfig struct {
	Addr            *string   `yaml:"addr"`
	Playground      *bool     `yaml:"playground"`
	Dataset         *string   `yaml:"dataset"`
	ComplexityLimit *int      `yaml:"complexityLimit"`
	ShutdownTimeout *Duration `yaml:"shutdownTimeout"`
	LogVerbosity    *int      `yaml:"logVerbosity"`
	CORSOrigins     []string  `yaml:"corsOrigins"`
}

// Decode reads YAML from r over the defaults.
func Decode(r io.Reader) (*Config, error) {
	var fc fileConfig
	if err := yaml.NewDecoder(r, yaml.DisallowUnknownField()).Decode(&fc); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	cfg := Default()
	if fc.Addr != nil {
		cfg.Addr = *fc.Addr
	}
	if fc.Playground != nil {
		cfg.Playground = *fc.Playground
	}
	if fc.Dataset != nil {
		cfg.Dataset = *fc.Dataset
	}
	if fc.ComplexityLimit != nil {
		cfg.ComplexityLimit = *fc.ComplexityLimit
	}
	if fc.ShutdownTimeout != nil {
		cfg.ShutdownTimeout = *fc.ShutdownTimeout
	}
	if fc.LogVerbosity != nil {
		cfg.LogVerbosity = *fc.LogVerbosity
	}
	if fc.CORSOrigins != nil {
		cfg.CORSOrigins = fc.CORSOrigins
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open config")
	}
	defer file.Close()

	cfg, err := Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}

	return cfg, nil
}

// LoadFromEnv loads the file named by BOOKGRAPH_CONFIG, or the defaults when it is unset.
// PORT overrides the listen port.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(EnvConfigFile); path != "" {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	if port := os.Getenv(EnvPort); port != "" {
		cfg.Addr = ":" + port
	}

	return cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if cfg.ComplexityLimit < 0 {
		return errors.Errorf("complexityLimit must not be negative, got %d", cfg.ComplexityLimit)
	}
	if cfg.ShutdownTimeout.Duration < 0 {
		return errors.Errorf("shutdownTimeout must not be negative, got %s", cfg.ShutdownTimeout)
	}
	if cfg.LogVerbosity < 0 {
		return errors.Errorf("logVerbosity must not be negative, got %d", cfg.LogVerbosity)
	}

	return nil
}
