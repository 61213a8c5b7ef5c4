package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/alarm-clock/internal/lightfx"
	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/logic"
)

const (
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // ms
	defaultBufferSize = 64
)

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	ClientID       string
	Prefix         string
	QoS            byte
	ConnectTimeout time.Duration
	MaxRetries     uint64
	RetryDelay     time.Duration
	BufferSize     int
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect; LED frames
// are not buffered.
type RealPublisher struct {
	client paho.Client
	topics Topics
	qos    byte

	mu            sync.Mutex
	buf           *ringBuffer
	everConnected bool
}

// NewRealPublisher connects to opts.Broker, retrying with exponential backoff
// until opts.MaxRetries is exhausted or ctx is done. Once connected the client
// reconnects on its own.
func NewRealPublisher(ctx context.Context, opts Options) (*RealPublisher, error) {
	if opts.ClientID == "" {
		opts.ClientID = DefaultPrefix
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}

	p := &RealPublisher{
		topics: NewTopics(opts.Prefix),
		qos:    opts.QoS,
		buf:    newRingBuffer(opts.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     EventShutdown,
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetConnectTimeout(opts.ConnectTimeout).
		SetAutoReconnect(true).
		SetBinaryWill(p.topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.WarnKV(context.Background(), "mqtt connection lost", "broker", opts.Broker, "error", err)
		})
	p.client = paho.NewClient(clientOpts)

	eb := backoff.NewExponentialBackOff()
	if opts.RetryDelay > 0 {
		eb.InitialInterval = opts.RetryDelay
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, opts.MaxRetries), ctx)

	connect := func() error {
		token := p.client.Connect()
		if !token.WaitTimeout(opts.ConnectTimeout) {
			return fmt.Errorf("connection timeout")
		}
		return token.Error()
	}
	notify := func(err error, next time.Duration) {
		logger.WarnKV(ctx, "mqtt connect failed, retrying", "broker", opts.Broker, "error", err, "next", next)
	}
	if err := backoff.RetryNotify(connect, policy, notify); err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", opts.Broker, err)
	}

	return p, nil
}

// onConnect replays anything buffered while the connection was down.
func (p *RealPublisher) onConnect(_ paho.Client) {
	p.mu.Lock()
	reconnect := p.everConnected
	p.everConnected = true
	pending := p.buf.drainAll()
	p.mu.Unlock()

	ctx := context.Background()
	if reconnect {
		logger.InfoKV(ctx, "mqtt reconnected", "replay", len(pending))
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: EventReconnected}); err != nil {
			logger.WarnKV(ctx, "mqtt reconnect notice failed", "error", err)
		}
	}
	for _, m := range pending {
		if err := p.publish(m); err != nil {
			logger.WarnKV(ctx, "mqtt replay failed", "topic", m.topic, "error", err)
		}
	}
}

// publish sends m, buffering it if the connection is down or the publish
// does not complete.
func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.hold(m)
		return nil
	}

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		p.hold(m)
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		p.hold(m)
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) hold(m bufferedMsg) {
	p.mu.Lock()
	p.buf.push(m)
	p.mu.Unlock()
}

// PublishDisplay sends the display state, retained.
func (p *RealPublisher) PublishDisplay(snap logic.Snapshot) error {
	payload, err := FormatDisplayPayload(snap)
	if err != nil {
		return fmt.Errorf("format display payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.Display, payload: payload, qos: p.qos, retained: true})
}

// PublishFrame sends an LED frame at QoS 0 without waiting for delivery.
// Frames are dropped while disconnected.
func (p *RealPublisher) PublishFrame(kind logic.EffectKind, frame []lightfx.RGB) error {
	payload, err := FormatFramePayload(kind, frame)
	if err != nil {
		return fmt.Errorf("format frame payload: %w", err)
	}
	if !p.client.IsConnectionOpen() {
		return nil
	}
	p.client.Publish(p.topics.LEDs, 0, false, payload)
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once): lifecycle events should arrive
	return p.publish(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a reconnect.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(disconnectQuiesce)
	return nil
}
