package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	DeviceID string
	// BufferSize is how many messages are kept while the broker is unreachable.
	BufferSize int
}

// DefaultBufferSize holds about an hour of status reports plus events.
const DefaultBufferSize = 256

const publishTimeout = 5 * time.Second

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed, oldest first, on reconnect.
type RealPublisher struct {
	client paho.Client
	events string
	system string
	log    *zap.SugaredLogger

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. An unreachable
// broker is not an error: the client keeps retrying in the background and
// messages are buffered meanwhile.
func NewRealPublisher(o Options, log *zap.SugaredLogger) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("no broker configured")
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.ClientID == "" {
		o.ClientID = "fridge-sensor-" + o.DeviceID
	}

	p := &RealPublisher{
		events: EventsTopic(o.DeviceID),
		system: SystemTopic(o.DeviceID),
		log:    log,
		buf:    newRingBuffer(o.BufferSize),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.system, string(WillPayload()), 1, true).
		SetOnConnectHandler(p.replay).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warnf("mqtt: broker %s not reachable yet, buffering", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// replay drains the offline buffer. Runs on the paho connect callback.
func (p *RealPublisher) replay(c paho.Client) {
	p.mu.Lock()
	dropped := p.buf.dropped
	msgs := p.buf.drainAll()
	p.mu.Unlock()

	if len(msgs) == 0 {
		return
	}
	p.log.Infof("mqtt: connected, replaying %d buffered messages (%d dropped while offline)", len(msgs), dropped)
	for _, m := range msgs {
		token := c.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			p.log.Warnf("mqtt: replay to %s failed: %v", m.topic, token.Error())
		}
	}
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		first := p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		if first {
			p.log.Warnf("mqtt: buffer full (%d messages), dropping oldest", p.buf.capacity)
		}
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if qos == 0 {
		// Publish is called from the controller loop; at QoS 0 there is no
		// acknowledgement worth blocking it for.
		go p.watch(topic, token)
		return nil
	}
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *RealPublisher) watch(topic string, token paho.Token) {
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		p.log.Warnf("mqtt: publish to %s failed: %v", topic, token.Error())
	}
}

// Publish sends a telemetry line to the events topic.
func (p *RealPublisher) Publish(eventType string, payload []byte) error {
	// QoS 0 (at-most-once), not retained
	return p.publish(p.events, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the system topic.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(p.system, 1, event.Retained, payload)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
