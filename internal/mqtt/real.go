package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Topic    string // base topic, see TopicsFor
	// Messages queued while the broker is unreachable.
	BufferSize int
}

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	defaultBuffer  = 100
)

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed in order after reconnecting.
type RealPublisher struct {
	client paho.Client
	topics Topics

	mu        sync.Mutex
	outbox    *outbox
	connected bool // set after the first successful connect
}

// NewRealPublisher creates a publisher for the given broker. A broker that is
// not reachable yet is not an error: messages are buffered until it is.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, errors.New("mqtt: broker address is required")
	}
	if o.ClientID == "" {
		o.ClientID = "button-sensor"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBuffer
	}

	p := &RealPublisher{
		topics: TopicsFor(o.Topic),
		outbox: newOutbox(o.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("mqtt: connection lost")
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warn().Str("broker", o.Broker).Msg("mqtt: broker not reachable yet, buffering")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(_ paho.Client) {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	log.Info().Bool("reconnect", reconnect).Msg("mqtt: connected")

	// Handlers run on the client's goroutine; publish from our own.
	go func() {
		if reconnect {
			if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
				log.Warn().Err(err).Msg("mqtt: publish reconnected event")
			}
		}
		p.replay()
	}()
}

func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs := p.outbox.take()
	p.mu.Unlock()

	if len(msgs) == 0 {
		return
	}
	log.Info().Int("count", len(msgs)).Msg("mqtt: replaying queued messages")
	for _, m := range msgs {
		if err := p.send(m); err != nil {
			log.Warn().Err(err).Str("topic", m.topic).Msg("mqtt: replay failed")
		}
	}
}

func (p *RealPublisher) send(m outMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.outbox.add(m)
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timeout")
	}
	return token.Error()
}

// Publish sends a button event to the MQTT broker.
func (p *RealPublisher) Publish(event ButtonEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 1 so a press is not lost across a broker hiccup
	if err := p.send(outMsg{topic: p.topics.Events, payload: payload, qos: 1, class: classPress}); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	msg := outMsg{topic: p.topics.System, event: event.Event, payload: payload, qos: 1, retained: event.Retained, class: classStatus}
	if event.Retained {
		msg.class = classRetained
	}
	if err := p.send(msg); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
