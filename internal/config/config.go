// Package config loads pagetint settings: built-in defaults, then an optional
// YAML file, then PAGETINT_* environment variables.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	yaml "gopkg.in/yaml.v3"

	"pagetint/internal/engine"
	"pagetint/internal/media"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PAGETINT_"

type (
	EngineConfig struct {
		RulesLimit          int                       `yaml:"rules_limit"`
		TrimmedRulesLimit   int                       `yaml:"trimmed_rules_limit"`
		PropertyPriorities  []engine.PropertyPriority `yaml:"property_priorities"`
		TransitionForbidden []string                  `yaml:"transition_forbidden_properties"`
		PersistInterval     time.Duration             `yaml:"persist_interval"`
		ChunkSize           int                       `yaml:"chunk_size"`
		Debug               bool                      `yaml:"debug"`
	}

	StoreConfig struct {
		// Kind is one of memory, sqlite or none.
		Kind    string `yaml:"kind"`
		Path    string `yaml:"path"`
		Session string `yaml:"session"`
		// Quota caps the memory store in bytes, 0 means unlimited.
		Quota int `yaml:"quota"`
	}

	BackgroundConfig struct {
		Listen string `yaml:"listen"`
		// URL of a running background server. Empty runs the service in process.
		URL        string        `yaml:"url"`
		Timeout    time.Duration `yaml:"timeout"`
		CacheTTL   time.Duration `yaml:"cache_ttl"`
		Browser    bool          `yaml:"browser"`
		ChromePath string        `yaml:"chrome_path"`
		UserAgent  string        `yaml:"user_agent"`
	}

	Config struct {
		Engine     EngineConfig     `yaml:"engine"`
		Store      StoreConfig      `yaml:"store"`
		Background BackgroundConfig `yaml:"background"`
		Viewport   media.Viewport   `yaml:"viewport"`
		Logging    LoggingConfig    `yaml:"logging"`
	}
)

func unmarshalConfig(data []byte, cfg *Config) error {
	// only fields we know about are accepted
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode configuration data: %w", err)
	}
	return nil
}

// Defaults returns the built-in configuration.
func Defaults() (*Config, error) {
	cfg := &Config{}
	if err := unmarshalConfig(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("failed to process built-in defaults: %w", err)
	}
	return cfg, nil
}

// Load superimposes the file at path (if any) and the environment on top of
// the defaults and validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := unmarshalConfig(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to process configuration file: %w", err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}
	flag := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("STORE", &c.Store.Kind)
	str("STORE_PATH", &c.Store.Path)
	str("SESSION", &c.Store.Session)
	str("LISTEN", &c.Background.Listen)
	str("BACKGROUND_URL", &c.Background.URL)
	str("CHROME_PATH", &c.Background.ChromePath)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FILE", &c.Logging.File)
	return multierr.Combine(
		num("RULES_LIMIT", &c.Engine.RulesLimit),
		num("TRIMMED_RULES_LIMIT", &c.Engine.TrimmedRulesLimit),
		num("CHUNK_SIZE", &c.Engine.ChunkSize),
		num("VIEWPORT_WIDTH", &c.Viewport.Width),
		num("VIEWPORT_HEIGHT", &c.Viewport.Height),
		dur("PERSIST_INTERVAL", &c.Engine.PersistInterval),
		dur("CACHE_TTL", &c.Background.CacheTTL),
		flag("DEBUG", &c.Engine.Debug),
		flag("BROWSER", &c.Background.Browser),
	)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	e := c.Engine
	check(e.RulesLimit > 0, "engine.rules_limit must be positive, got %d", e.RulesLimit)
	check(e.TrimmedRulesLimit > 0, "engine.trimmed_rules_limit must be positive, got %d", e.TrimmedRulesLimit)
	check(len(e.PropertyPriorities) > 0, "engine.property_priorities must not be empty")
	for i, p := range e.PropertyPriorities {
		check(strings.TrimSpace(p.Property) != "", "engine.property_priorities[%d]: empty property", i)
		check(p.Priority > 0, "engine.property_priorities[%d]: priority must be positive, got %d", i, p.Priority)
	}
	check(e.PersistInterval > 0, "engine.persist_interval must be positive, got %s", e.PersistInterval)
	check(e.ChunkSize > 0, "engine.chunk_size must be positive, got %d", e.ChunkSize)

	switch c.Store.Kind {
	case "memory", "none":
	case "sqlite":
		check(c.Store.Path != "", "store.path is required for the sqlite store")
	default:
		check(false, "store.kind must be one of memory, sqlite, none, got %q", c.Store.Kind)
	}
	check(c.Store.Quota >= 0, "store.quota must not be negative, got %d", c.Store.Quota)
	check(c.Background.CacheTTL >= 0, "background.cache_ttl must not be negative, got %s", c.Background.CacheTTL)
	check(c.Background.Timeout > 0, "background.timeout must be positive, got %s", c.Background.Timeout)
	check(c.Viewport.Width >= 0 && c.Viewport.Height >= 0, "viewport dimensions must not be negative")
	switch c.Viewport.ColorScheme {
	case "", "light", "dark":
	default:
		check(false, "viewport.color_scheme must be light or dark, got %q", c.Viewport.ColorScheme)
	}
	switch c.Logging.Level {
	case "none", "normal", "debug":
	default:
		check(false, "logging.level must be one of none, normal, debug, got %q", c.Logging.Level)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", multierr.Combine(errs...))
	}
	return nil
}

// EngineOptions converts the engine section.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		RulesLimit:          c.Engine.RulesLimit,
		TrimmedRulesLimit:   c.Engine.TrimmedRulesLimit,
		Priorities:          append([]engine.PropertyPriority(nil), c.Engine.PropertyPriorities...),
		TransitionForbidden: append([]string{}, c.Engine.TransitionForbidden...),
		PersistInterval:     c.Engine.PersistInterval,
		ChunkSize:           c.Engine.ChunkSize,
		Debug:               c.Engine.Debug,
	}
}

// Dump renders cfg as YAML.
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}
