package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	BootID        string       `json:"boot_id"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Ticks         uint64       `json:"ticks"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Buttons       []ButtonJSON `json:"buttons"`
	Tasks         []TaskJSON   `json:"tasks"`
	Errors        ErrorsJSON   `json:"errors"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Short  int `json:"short"`
	Double int `json:"double"`
	Long   int `json:"long"`
}

// ButtonJSON is the JSON representation of one button.
type ButtonJSON struct {
	Index  int        `json:"index"`
	Name   string     `json:"name"`
	Line   int        `json:"line"`
	State  string     `json:"state"`
	Counts CountsJSON `json:"event_counts"`
}

// TaskJSON is the JSON representation of one scheduler task.
type TaskJSON struct {
	Name        string `json:"name"`
	PeriodTicks uint32 `json:"period_ticks"`
	Runs        uint64 `json:"runs"`
	Missed      uint64 `json:"missed"`
}

// ErrorsJSON reports error totals since start.
type ErrorsJSON struct {
	GPIO    uint64 `json:"gpio"`
	Dropped uint64 `json:"dropped"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	LongMs      int64  `json:"long_ms"`
	DoubleGapMs int64  `json:"double_gap_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	total := snap.Counts()
	inner := StatusInner{
		BootID:        snap.BootID,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Ticks:         snap.Ticks,
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON{Short: total.Short, Double: total.Double, Long: total.Long},
		Buttons:       make([]ButtonJSON, len(snap.Buttons)),
		Tasks:         make([]TaskJSON, len(snap.Tasks)),
		Errors:        ErrorsJSON{GPIO: snap.GPIOErrors, Dropped: snap.Dropped},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			DebounceMs:  snap.Config.DebounceMs,
			LongMs:      snap.Config.LongMs,
			DoubleGapMs: snap.Config.DoubleGapMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	for i, b := range snap.Buttons {
		inner.Buttons[i] = ButtonJSON{
			Index:  i,
			Name:   b.Name,
			Line:   b.Line,
			State:  b.State.String(),
			Counts: CountsJSON{Short: b.Counts.Short, Double: b.Counts.Double, Long: b.Counts.Long},
		}
	}
	for i, t := range snap.Tasks {
		inner.Tasks[i] = TaskJSON{Name: t.Name, PeriodTicks: t.Period, Runs: t.Runs, Missed: t.Missed}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
