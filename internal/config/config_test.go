package config

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/button-sensor/internal/gpio"
)

const fullYAML = `
log_level: DEBUG
log_format: json
tick: 2ms
timing:
  debounce: 30ms
  long: 1s
  double_gap: 250ms
gpio:
  chip: gpiochip1
buttons:
  - name: key1
    line: 17
    active_low: true
    pull: up
  - name: key2
    line: 27
tasks:
  scan: 5ms
  status: 0
  heartbeat: 1m
  watchdog: 500ms
mqtt:
  broker: tcp://broker:1883
  client_id: keys
  topic: lab/keys
  buffer: 10
http:
  addr: ""
history:
  path: /tmp/events.db
  keep: 50
env_file: ""
`

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 2*time.Millisecond, cfg.Tick)
	assert.Equal(t, 30*time.Millisecond, cfg.Timing.Debounce)
	assert.Equal(t, time.Second, cfg.Timing.Long)
	assert.Equal(t, 250*time.Millisecond, cfg.Timing.DoubleGap)
	assert.Equal(t, "gpiochip1", cfg.Chip)

	require.Len(t, cfg.Buttons, 2)
	assert.Equal(t, Button{Name: "key1", Line: 17, ActiveLow: true, Pull: gpio.PullUp}, cfg.Buttons[0])
	assert.Equal(t, gpio.PullNone, cfg.Buttons[1].Pull)

	assert.Equal(t, time.Duration(0), cfg.Tasks.Status, "explicit zero disables")
	assert.Equal(t, time.Minute, cfg.Tasks.Heartbeat)
	assert.Equal(t, MQTT{Broker: "tcp://broker:1883", ClientID: "keys", Topic: "lab/keys", Buffer: 10}, cfg.MQTT)
	assert.Equal(t, "", cfg.HTTPAddr)
	assert.Equal(t, History{Path: "/tmp/events.db", Keep: 50}, cfg.History)
	assert.Equal(t, "", cfg.EnvFile)

	assert.Equal(t, []string{"key1", "key2"}, cfg.ButtonNames())
	assert.Equal(t, gpio.LineConfig{Offset: 17, ActiveLow: true, Pull: gpio.PullUp}, cfg.LineConfigs()[0])
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("buttons:\n  - name: only\n    line: 4\n"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, DefaultTick, cfg.Tick)
	assert.Equal(t, 20*time.Millisecond, cfg.Timing.Debounce)
	assert.Equal(t, 800*time.Millisecond, cfg.Timing.Long)
	assert.Equal(t, 300*time.Millisecond, cfg.Timing.DoubleGap)
	assert.Equal(t, Tasks{Scan: DefaultScan, Status: DefaultStatus, Heartbeat: DefaultHeartbeat, Watchdog: DefaultWatchdog}, cfg.Tasks)
	assert.Equal(t, DefaultBroker, cfg.MQTT.Broker)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, DefaultKeep, cfg.History.Keep)
	assert.Equal(t, DefaultEnvFile, cfg.EnvFile)
	assert.Equal(t, gpio.DefaultChip, cfg.Chip)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no buttons", "tick: 1ms\n", "at least one button"},
		{"unknown key", "buttons: [{name: a}]\nbogus: 1\n", "bogus"},
		{"duplicate names", "buttons: [{name: a, line: 1}, {name: a, line: 2}]\n", "duplicate name"},
		{"empty name", "buttons: [{line: 1}]\n", "name is required"},
		{"negative line", "buttons: [{name: a, line: -1}]\n", "line must be >= 0"},
		{"bad pull", "buttons: [{name: a, pull: sideways}]\n", "unknown pull"},
		{"bad duration", "buttons: [{name: a}]\ntick: soon\n", "tick: invalid duration"},
		{"negative duration", "buttons: [{name: a}]\ntasks: {scan: -5ms}\n", "duration must be >= 0"},
		{"debounce past long", "buttons: [{name: a}]\ntiming: {debounce: 900ms}\n", "timing"},
		{"sub-millisecond debounce", "buttons: [{name: a}]\ntiming: {debounce: 500us}\n", "timing"},
		{"period below tick", "buttons: [{name: a}]\ntick: 10ms\ntasks: {scan: 5ms}\n", "tasks.scan"},
		{"period past tick range", "buttons: [{name: a}]\ntasks: {heartbeat: 1200h}\n", "tasks.heartbeat: period 1200h0m0s exceeds"},
		{"bad log format", "buttons: [{name: a}]\nlog_format: xml\n", "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	_, err := Parse([]byte("buttons: [{name: a, line: -1}, {name: a}]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line must be >= 0")
	assert.Contains(t, err.Error(), "duplicate name")
}

func TestTicks(t *testing.T) {
	cfg := &Config{Tick: 2 * time.Millisecond}

	assert.Equal(t, uint32(0), cfg.Ticks(0))
	assert.Equal(t, uint32(1), cfg.Ticks(time.Millisecond))
	assert.Equal(t, uint32(1), cfg.Ticks(2*time.Millisecond))
	assert.Equal(t, uint32(3), cfg.Ticks(5*time.Millisecond))
	assert.Equal(t, uint32(450000), cfg.Ticks(15*time.Minute))

	ms := &Config{Tick: time.Millisecond}
	assert.Equal(t, uint32(math.MaxUint32), ms.Ticks(time.Duration(math.MaxUint32)*time.Millisecond))
	assert.Equal(t, uint32(math.MaxUint32), ms.Ticks(1200*time.Hour), "clamped, not wrapped")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadPrefixesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tick: 1ms\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestWatchAppliesValidEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buttons.yaml")
	require.NoError(t, os.WriteFile(path, []byte("buttons: [{name: a}]\n"), 0o644))

	var latest atomic.Pointer[Config]
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { latest.Store(c) })
	}()

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("buttons: [{name: a}]\ntiming: {long: 2s}\n"), 0o644))
	require.Eventually(t, func() bool {
		c := latest.Load()
		return c != nil && c.Timing.Long == 2*time.Second
	}, 3*time.Second, 10*time.Millisecond)

	// An invalid edit is skipped; the last good config stays.
	require.NoError(t, os.WriteFile(path, []byte("tick: 1ms\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2*time.Second, latest.Load().Timing.Long)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
