// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/button-sensor/internal/logic"
)

// DefaultTopic is the base MQTT topic. Button events go to <base>/events,
// lifecycle events to <base>/system.
const DefaultTopic = "home/buttons/sensor"

// Topics holds the resolved publish topics.
type Topics struct {
	Events string
	System string
}

// TopicsFor derives the publish topics from a base topic.
func TopicsFor(base string) Topics {
	if base == "" {
		base = DefaultTopic
	}
	return Topics{
		Events: base + "/events",
		System: base + "/system",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a classified button event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event ButtonEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// ButtonEvent is a classified event ready for publishing.
type ButtonEvent struct {
	Timestamp time.Time
	Event     logic.Event
	Name      string // configured button name
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Button ButtonPayload `json:"button"`
}

// ButtonPayload contains the button event details.
type ButtonPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Code      string `json:"code,omitempty"` // legacy byte code, e.g. "0x51"
}

// FormatPayload creates the JSON payload for a button event.
func FormatPayload(event ButtonEvent) ([]byte, error) {
	p := ButtonPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event.Kind.String(),
		Index:     event.Event.Button,
		Name:      event.Name,
	}
	if code, err := event.Event.Code(); err == nil {
		p.Code = fmt.Sprintf("0x%02X", code)
	}
	return json.Marshal(Payload{Button: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}
