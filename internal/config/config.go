// Package config loads the daemon's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/logic"
)

// Defaults used when a key is absent.
const (
	DefaultTick      = time.Millisecond
	DefaultScan      = 5 * time.Millisecond
	DefaultStatus    = 100 * time.Millisecond
	DefaultHeartbeat = 15 * time.Minute
	DefaultWatchdog  = time.Second
	DefaultBroker    = "tcp://127.0.0.1:1883"
	DefaultHTTPAddr  = ":8080"
	DefaultKeep      = 10000
	DefaultEnvFile   = "/run/pi-helper.env"
)

// Button is one configured key.
type Button struct {
	Name      string
	Line      int
	ActiveLow bool
	Pull      gpio.Pull
}

// Tasks holds the period of each scheduled task. Zero disables a task.
type Tasks struct {
	Scan      time.Duration
	Status    time.Duration
	Heartbeat time.Duration
	Watchdog  time.Duration
}

// MQTT holds broker settings.
type MQTT struct {
	Broker   string
	ClientID string
	Topic    string
	Buffer   int
}

// History holds event store settings. An empty path disables the store.
type History struct {
	Path string
	Keep int
}

// Config is the resolved, validated configuration.
type Config struct {
	LogLevel  string
	LogFormat string // "console" or "json"
	Tick      time.Duration
	Timing    logic.Timing
	Chip      string
	Buttons   []Button
	Tasks     Tasks
	MQTT      MQTT
	HTTPAddr  string
	History   History
	EnvFile   string
}

// document mirrors the YAML file; durations are strings.
type document struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Tick      string `yaml:"tick"`
	Timing    struct {
		Debounce  string `yaml:"debounce"`
		Long      string `yaml:"long"`
		DoubleGap string `yaml:"double_gap"`
	} `yaml:"timing"`
	GPIO struct {
		Chip string `yaml:"chip"`
	} `yaml:"gpio"`
	Buttons []struct {
		Name      string `yaml:"name"`
		Line      int    `yaml:"line"`
		ActiveLow bool   `yaml:"active_low"`
		Pull      string `yaml:"pull"`
	} `yaml:"buttons"`
	Tasks struct {
		Scan      string `yaml:"scan"`
		Status    string `yaml:"status"`
		Heartbeat string `yaml:"heartbeat"`
		Watchdog  string `yaml:"watchdog"`
	} `yaml:"tasks"`
	MQTT struct {
		Broker   string `yaml:"broker"`
		ClientID string `yaml:"client_id"`
		Topic    string `yaml:"topic"`
		Buffer   int    `yaml:"buffer"`
	} `yaml:"mqtt"`
	HTTP struct {
		Addr *string `yaml:"addr"`
	} `yaml:"http"`
	History struct {
		Path string `yaml:"path"`
		Keep int    `yaml:"keep"`
	} `yaml:"history"`
	EnvFile *string `yaml:"env_file"`
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML bytes. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yaml decode: %w", err)
	}
	cfg, err := doc.resolve()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (d *document) resolve() (*Config, error) {
	def := logic.DefaultTiming()
	cfg := &Config{
		LogLevel:  strings.ToLower(strings.TrimSpace(d.LogLevel)),
		LogFormat: strings.ToLower(strings.TrimSpace(d.LogFormat)),
		Chip:      d.GPIO.Chip,
		MQTT: MQTT{
			Broker:   d.MQTT.Broker,
			ClientID: d.MQTT.ClientID,
			Topic:    d.MQTT.Topic,
			Buffer:   d.MQTT.Buffer,
		},
		HTTPAddr: DefaultHTTPAddr,
		History:  History{Path: d.History.Path, Keep: d.History.Keep},
		EnvFile:  DefaultEnvFile,
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	if cfg.Chip == "" {
		cfg.Chip = gpio.DefaultChip
	}
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = DefaultBroker
	}
	if cfg.History.Keep <= 0 {
		cfg.History.Keep = DefaultKeep
	}
	// Explicit empty values disable these.
	if d.HTTP.Addr != nil {
		cfg.HTTPAddr = *d.HTTP.Addr
	}
	if d.EnvFile != nil {
		cfg.EnvFile = *d.EnvFile
	}

	var err error
	durations := []struct {
		path string
		raw  string
		def  time.Duration
		dst  *time.Duration
		zero bool // zero is a valid "disabled" value
	}{
		{"tick", d.Tick, DefaultTick, &cfg.Tick, false},
		{"timing.debounce", d.Timing.Debounce, def.Debounce, &cfg.Timing.Debounce, false},
		{"timing.long", d.Timing.Long, def.Long, &cfg.Timing.Long, false},
		{"timing.double_gap", d.Timing.DoubleGap, def.DoubleGap, &cfg.Timing.DoubleGap, false},
		{"tasks.scan", d.Tasks.Scan, DefaultScan, &cfg.Tasks.Scan, false},
		{"tasks.status", d.Tasks.Status, DefaultStatus, &cfg.Tasks.Status, true},
		{"tasks.heartbeat", d.Tasks.Heartbeat, DefaultHeartbeat, &cfg.Tasks.Heartbeat, true},
		{"tasks.watchdog", d.Tasks.Watchdog, DefaultWatchdog, &cfg.Tasks.Watchdog, true},
	}
	for _, f := range durations {
		if f.zero {
			*f.dst, err = ParseDurationAllowZero(f.path, f.raw, f.def)
		} else {
			*f.dst, err = ParseDurationOrDefault(f.path, f.raw, f.def)
		}
		if err != nil {
			return nil, err
		}
	}

	for _, b := range d.Buttons {
		pull := gpio.Pull(strings.ToLower(strings.TrimSpace(b.Pull)))
		if pull == "" {
			pull = gpio.PullNone
		}
		cfg.Buttons = append(cfg.Buttons, Button{
			Name:      b.Name,
			Line:      b.Line,
			ActiveLow: b.ActiveLow,
			Pull:      pull,
		})
	}
	return cfg, nil
}

// Validate checks cross-field constraints and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Buttons) == 0 {
		errs = append(errs, errors.New("buttons: at least one button is required"))
	}
	seen := make(map[string]bool, len(c.Buttons))
	for i, b := range c.Buttons {
		switch {
		case b.Name == "":
			errs = append(errs, fmt.Errorf("buttons[%d]: name is required", i))
		case seen[b.Name]:
			errs = append(errs, fmt.Errorf("buttons[%d]: duplicate name %q", i, b.Name))
		}
		seen[b.Name] = true
		if b.Line < 0 {
			errs = append(errs, fmt.Errorf("buttons[%d]: line must be >= 0", i))
		}
		switch b.Pull {
		case gpio.PullNone, gpio.PullUp, gpio.PullDown:
		default:
			errs = append(errs, fmt.Errorf("buttons[%d]: unknown pull %q", i, b.Pull))
		}
	}

	if err := c.Timing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("timing: debounce must be shorter than long and all thresholds positive: %w", err))
	}

	for _, t := range []struct {
		name string
		d    time.Duration
	}{
		{"scan", c.Tasks.Scan},
		{"status", c.Tasks.Status},
		{"heartbeat", c.Tasks.Heartbeat},
		{"watchdog", c.Tasks.Watchdog},
	} {
		if t.d != 0 && t.d < c.Tick {
			errs = append(errs, fmt.Errorf("tasks.%s: period %v is shorter than tick %v", t.name, t.d, c.Tick))
		}
		if c.Tick > 0 && t.d > 0 && (t.d-1)/c.Tick >= math.MaxUint32 {
			errs = append(errs, fmt.Errorf("tasks.%s: period %v exceeds %d ticks of %v", t.name, t.d, uint32(math.MaxUint32), c.Tick))
		}
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: unknown format %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// Ticks converts a period to a whole number of ticks, rounded up.
// Zero stays zero (disabled); any positive period is at least one tick and
// at most math.MaxUint32 ticks.
func (c *Config) Ticks(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	n := (d-1)/c.Tick + 1
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}

// LineConfigs returns the GPIO line settings in button order.
func (c *Config) LineConfigs() []gpio.LineConfig {
	out := make([]gpio.LineConfig, len(c.Buttons))
	for i, b := range c.Buttons {
		out[i] = gpio.LineConfig{Offset: b.Line, ActiveLow: b.ActiveLow, Pull: b.Pull}
	}
	return out
}

// ButtonNames returns button names in index order.
func (c *Config) ButtonNames() []string {
	out := make([]string, len(c.Buttons))
	for i, b := range c.Buttons {
		out[i] = b.Name
	}
	return out
}
