package sim

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "100ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Bounds is the geographic bounding box used when cataloguing streets.
type Bounds struct {
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLon float64 `yaml:"max_lon"`
}

// Contains reports whether the point lies inside the box (inclusive).
func (b Bounds) Contains(p GeoPoint) bool {
	return b.MinLat <= p.Lat && p.Lat <= b.MaxLat &&
		b.MinLon <= p.Lon && p.Lon <= b.MaxLon
}

// Config holds the immutable per-run simulation settings. Loaded once,
// never mutated afterwards.
type Config struct {
	EngineAddress       string   `yaml:"engine_address"`
	EngineConfig        string   `yaml:"engine_config"`
	Bounds              Bounds   `yaml:"bounds"`
	MaxTicks            int      `yaml:"max_ticks"`
	TickInterval        Duration `yaml:"tick_interval"`
	ControlledJunctions []string `yaml:"controlled_junctions"`
	Preemption          bool     `yaml:"preemption"`
}

// DefaultConfig mirrors the defaults the engine bridge ships with.
func DefaultConfig() Config {
	return Config{
		EngineAddress: "127.0.0.1:8813",
		MaxTicks:      7200,
		TickInterval:  Duration(100 * time.Millisecond),
		Preemption:    true,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, &ConfigurationError{Path: path, Err: err}
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigurationError{Path: path, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the invariants the tick loop relies on.
func (c Config) Validate() error {
	if c.MaxTicks <= 0 {
		return fmt.Errorf("max_ticks must be positive, got %d", c.MaxTicks)
	}
	if c.TickInterval.Std() <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval.Std())
	}
	if c.Bounds.MinLat > c.Bounds.MaxLat || c.Bounds.MinLon > c.Bounds.MaxLon {
		return fmt.Errorf("bounds are inverted")
	}
	return nil
}
