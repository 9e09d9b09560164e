package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultBufferSize is how many messages are held while the broker is unreachable.
const DefaultBufferSize = 256

// Handler receives the payload of a subscribed message.
type Handler func(payload []byte)

// Config configures a RealPublisher.
type Config struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BufferSize int

	// OnCommand and OnMachine, if set, are subscribed on every (re)connect.
	// They run on the client's goroutine and must not block.
	OnCommand Handler
	OnMachine Handler
}

// RealPublisher publishes to an actual MQTT broker. While disconnected,
// messages are queued in a ring buffer and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	cfg    Config

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	everUp    bool
}

// NewRealPublisher creates a publisher and starts connecting in the background.
// It does not wait for the broker.
func NewRealPublisher(cfg Config) *RealPublisher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "auxio"
	}
	p := &RealPublisher{
		topics: cfg.Topics,
		cfg:    cfg,
		buf:    newRingBuffer(cfg.BufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(cfg.Topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	if p.cfg.OnCommand != nil {
		p.subscribe(c, p.topics.Command, p.cfg.OnCommand)
	}
	if p.cfg.OnMachine != nil {
		p.subscribe(c, p.topics.Machine, p.cfg.OnMachine)
	}

	p.mu.Lock()
	p.connected = true
	reconnect := p.everUp
	p.everUp = true
	pending := p.buf.drainAll()
	p.mu.Unlock()

	log.Printf("mqtt: connected to %s", p.cfg.Broker)
	for _, m := range pending {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	if len(pending) > 0 {
		log.Printf("mqtt: replayed %d buffered messages", len(pending))
	}
	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.Publish(p.topics.System, 1, false, payload)
	}
}

func (p *RealPublisher) subscribe(c paho.Client, topic string, h Handler) {
	token := c.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		h(m.Payload())
	})
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("mqtt: subscribe %s: %v", topic, token.Error())
		}
	}()
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.connected {
		p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishPort sends a port event to the MQTT broker.
func (p *RealPublisher) PublishPort(event PortEvent) error {
	payload, err := FormatPortPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(p.topics.Events, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(p.topics.System, 1, event.Retained, payload)
}

// PublishReply sends a command reply line.
func (p *RealPublisher) PublishReply(line string) error {
	return p.publish(p.topics.Reply, 1, false, []byte(line))
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

// Buffered returns the number of messages waiting for a connection and the
// total number dropped because the buffer was full.
func (p *RealPublisher) Buffered() (queued int, dropped uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len(), p.buf.dropped
}
