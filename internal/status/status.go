// Package status provides a thread-safe status tracker for the button-sensor daemon.
// It is written by the scheduler's status task and read by HTTP handlers and
// the heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/sched"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs      int64
	DebounceMs  int64
	LongMs      int64
	DoubleGapMs int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Button is the display state of one key.
type Button struct {
	Name   string
	Line   int
	State  logic.State
	Counts logic.EventCounts
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; its slices are copies and safe to keep.
type Snapshot struct {
	BootID        string
	Buttons       []Button
	Tasks         []sched.TaskStats
	Ticks         uint64
	GPIOErrors    uint64
	Dropped       uint64
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Counts returns the event counts summed over all buttons.
func (s Snapshot) Counts() logic.EventCounts {
	var c logic.EventCounts
	for _, b := range s.Buttons {
		c.Short += b.Counts.Short
		c.Double += b.Counts.Double
		c.Long += b.Counts.Long
	}
	return c
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, boot id and config.
func NewTracker(startTime time.Time, bootID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces per-button and scheduler state.
// Called from the status task on every run.
func (t *Tracker) Update(buttons []Button, tasks []sched.TaskStats, ticks uint64) {
	t.mu.Lock()
	t.snap.Buttons = append(t.snap.Buttons[:0:0], buttons...)
	t.snap.Tasks = append(t.snap.Tasks[:0:0], tasks...)
	t.snap.Ticks = ticks
	t.mu.Unlock()
}

// SetErrors records the GPIO read failure and dropped event totals.
func (t *Tracker) SetErrors(gpioErrors, dropped uint64) {
	t.mu.Lock()
	t.snap.GPIOErrors = gpioErrors
	t.snap.Dropped = dropped
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// SetConfig replaces the displayed config after a reload.
func (t *Tracker) SetConfig(cfg Config) {
	t.mu.Lock()
	t.snap.Config = cfg
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Buttons = append([]Button(nil), t.snap.Buttons...)
	s.Tasks = append([]sched.TaskStats(nil), t.snap.Tasks...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
