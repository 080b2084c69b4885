package sched

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	yaml "github.com/goccy/go-yaml"
)

// Press is one scripted button press: low at AtMS, released HoldMS later.
type Press struct {
	AtMS   int `yaml:"at_ms"`
	HoldMS int `yaml:"hold_ms"`
}

// ADCConfig lists the raw counts each simulated channel replays.
type ADCConfig struct {
	Temp []uint16 `yaml:"temp"`
	Pin  []uint16 `yaml:"pin"`
}

// Config mirrors config.yml
type Config struct {
	Demo      string    `yaml:"demo"`       // heartbeat (by default)
	Realtime  bool      `yaml:"realtime"`   // false: virtual time
	TickHz    uint32    `yaml:"tick_hz"`    // 1_000_000 in virtual time (by default)
	TickMS    int       `yaml:"tick_ms"`    // 1 in real time (by default)
	HorizonMS int       `yaml:"horizon_ms"` // 10_000 (by default)
	TraceCSV  string    `yaml:"trace_csv"`
	LogLevel  string    `yaml:"log_level"` // info (by default)
	Button    []Press   `yaml:"button"`
	ADC       ADCConfig `yaml:"adc"`
}

// Demos lists the task sets the binary knows how to build.
var Demos = []string{"heartbeat", "switch-blink", "blink-irq", "button-poll", "adc"}

// If the config file is not found, we use default values
func defaultConfig() Config {
	return Config{
		Demo:      "heartbeat",
		TickHz:    1_000_000,
		TickMS:    1,
		HorizonMS: 10_000,
		LogLevel:  "info",
	}
}

// Load reads YAML and overrides defaults; empty path or a missing file means
// defaults only. Any other problem is a configuration error.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}

	// sanity clamps
	if cfg.TickHz == 0 {
		cfg.TickHz = 1_000_000
	}
	if cfg.TickMS <= 0 {
		cfg.TickMS = 1
	}
	if cfg.HorizonMS < 0 {
		cfg.HorizonMS = 0
	}
	if cfg.Demo == "" {
		cfg.Demo = "heartbeat"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, cfg.Validate()
}

// Validate rejects settings no task set can start with.
func (c Config) Validate() error {
	known := false
	for _, d := range Demos {
		if d == c.Demo {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: unknown demo %q", ErrConfig, c.Demo)
	}
	// the real-time clock counts whole ticks per second
	if c.TickMS <= 0 || 1000%c.TickMS != 0 {
		return fmt.Errorf("%w: tick_ms %d does not divide one second", ErrConfig, c.TickMS)
	}
	for i, p := range c.Button {
		if p.AtMS < 0 || p.HoldMS <= 0 {
			return fmt.Errorf("%w: button press %d: at_ms must be >= 0 and hold_ms > 0", ErrConfig, i)
		}
	}
	return nil
}
