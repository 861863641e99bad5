package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	publishTimeout  = 5 * time.Second
	commandQueueLen = 16
)

// Config configures the broker connection.
type Config struct {
	Broker   string
	ClientID string
	// BufferSize is how many messages are kept for replay while the broker
	// is unreachable.
	BufferSize int
}

// client is the subset of paho.Client used by RealPublisher.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed on reconnect. The broker is told to
// publish a SHUTDOWN will if the connection drops.
type RealPublisher struct {
	client   client
	log      zerolog.Logger
	now      func() time.Time
	commands chan Command

	mu            sync.Mutex
	buffer        *ringBuffer
	everConnected bool
	// replayed is set once onConnect has emptied the buffer for the current
	// connection. Until then publishes queue behind the older messages.
	replayed bool
}

// NewRealPublisher starts connecting to the broker and returns immediately;
// the connection is retried in the background.
func NewRealPublisher(cfg Config, log zerolog.Logger) (*RealPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker address is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "triac-dimmer"
	}
	p := newRealPublisher(cfg, log)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(err) })

	c := paho.NewClient(opts)
	p.client = c
	c.Connect()
	p.log.Info().Str("broker", cfg.Broker).Str("client_id", cfg.ClientID).Msg("connecting")
	return p, nil
}

func newRealPublisher(cfg Config, log zerolog.Logger) *RealPublisher {
	log = log.With().Str("component", "mqtt").Logger()
	size := cfg.BufferSize
	if size <= 0 {
		size = 100
	}
	return &RealPublisher{
		log:      log,
		now:      time.Now,
		commands: make(chan Command, commandQueueLen),
		buffer:   newRingBuffer(size, log),
	}
}

// PublishButton sends a button event. QoS 0 (at-most-once), not retained.
func (p *RealPublisher) PublishButton(event ButtonEvent) error {
	payload, err := FormatButtonPayload(event)
	if err != nil {
		return fmt.Errorf("format button payload: %w", err)
	}
	return p.publish(TopicEvents, 0, false, payload)
}

// PublishState sends a dimmer state change. QoS 0 (at-most-once), not retained.
func (p *RealPublisher) PublishState(event StateEvent) error {
	payload, err := FormatStatePayload(event)
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}
	return p.publish(TopicEvents, 0, false, payload)
}

// PublishSystem sends a system lifecycle event. QoS 1 (at-least-once).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Commands returns the channel of parsed remote commands.
func (p *RealPublisher) Commands() <-chan Command {
	return p.commands
}

// Buffered returns the number of messages waiting for replay.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.replayed || !p.client.IsConnectionOpen() {
		p.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		p.log.Debug().Str("topic", topic).Msg("not ready, message buffered")
		return nil
	}
	p.mu.Unlock()
	return p.send(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// onConnect subscribes to commands, replays buffered messages and, after a
// reconnect, announces RECONNECTED. paho runs it on its own goroutine.
// Messages published while the replay is running join the buffer and are sent
// in a later round, so the broker sees everything in publish order.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	reconnect := p.everConnected
	p.everConnected = true
	p.mu.Unlock()

	token := p.client.Subscribe(TopicCommand, 1, func(_ paho.Client, m paho.Message) {
		p.handleCommand(m.Payload())
	})
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		p.log.Err(token.Error()).Str("topic", TopicCommand).Msg("subscribe failed")
	}

	replayed := 0
	for {
		p.mu.Lock()
		pending := p.buffer.drainAll()
		if len(pending) == 0 {
			p.replayed = true
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()

		for _, m := range pending {
			if err := p.send(m); err != nil {
				p.log.Warn().Err(err).Msg("replay failed")
			}
		}
		replayed += len(pending)
	}
	p.log.Info().Bool("reconnect", reconnect).Int("replayed", replayed).Msg("connected")

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err := p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1}); err != nil {
			p.log.Warn().Err(err).Msg("reconnected event failed")
		}
	}
}

func (p *RealPublisher) onConnectionLost(err error) {
	p.mu.Lock()
	p.replayed = false
	p.mu.Unlock()
	p.log.Warn().Err(err).Msg("connection lost")
}

func (p *RealPublisher) handleCommand(payload []byte) {
	cmd, err := ParseCommand(payload)
	if err != nil {
		p.log.Warn().Err(err).Bytes("payload", payload).Msg("ignoring command")
		return
	}
	select {
	case p.commands <- cmd:
	default:
		p.log.Warn().Msg("command queue full, dropping command")
	}
}
