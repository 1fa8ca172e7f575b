package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/adaptive-light/internal/logic"
)

// DefaultBufferSize is how many messages are held while the broker is unreachable.
const DefaultBufferSize = 100

var errPublishTimeout = errors.New("publish timeout")

// sendFunc delivers one message to the broker.
type sendFunc func(msg bufferedMsg) error

// closeFlushTimeout bounds how long Close waits for queued messages to go out.
const closeFlushTimeout = 2 * time.Second

// RealPublisher publishes to an actual MQTT broker. Publish only queues: a
// sender goroutine drains the outbox while connected, so a slow broker never
// stalls the caller. Messages queued while the connection is down are replayed,
// oldest first, on reconnect.
type RealPublisher struct {
	client paho.Client
	send   sendFunc
	now    func() time.Time

	mu            sync.Mutex
	buffer        *outbox
	connected     bool
	everConnected bool

	flushMu sync.Mutex // serializes drains
	running bool
	kick    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

// NewRealPublisher creates a publisher for the given broker. The broker being
// unreachable at startup is not an error: messages are buffered until the
// background retry connects.
func NewRealPublisher(broker, clientID string, bufferSize int) (*RealPublisher, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	p := newPublisher(nil, bufferSize)

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.handleConnectionLost(err) })

	client := paho.NewClient(opts)
	p.client = client
	p.send = func(msg bufferedMsg) error {
		token := client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(5 * time.Second) {
			return errPublishTimeout
		}
		return token.Error()
	}

	p.running = true
	go p.run()

	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering until connected", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		p.Close()
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// newPublisher builds a publisher around send. The sender goroutine is not
// started; NewRealPublisher starts it with run.
func newPublisher(send sendFunc, bufferSize int) *RealPublisher {
	return &RealPublisher{
		send:    send,
		now:     time.Now,
		buffer:  newOutbox(bufferSize),
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Publish sends a fixture event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	if err := p.deliver(bufferedMsg{topic: Topic, payload: payload}); err != nil {
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

	// QoS 1 so shutdown and startup are not lost
	msg := bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained}
	if err := p.deliver(msg); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered returns how many messages are waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.size()
}

// Dropped returns how many buffered messages were overwritten while offline.
func (p *RealPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.evicted
}

// Close makes a last attempt to send queued messages, then disconnects from
// the broker.
func (p *RealPublisher) Close() error {
	select {
	case <-p.stop:
	default:
		close(p.stop)
		if p.running {
			select {
			case <-p.stopped:
			case <-time.After(closeFlushTimeout):
				log.Printf("mqtt: close: %d messages still queued", p.Buffered())
			}
		} else {
			p.flush()
		}
	}

	if p.client != nil {
		p.client.Disconnect(1000) // 1 second timeout
	}
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

// deliver queues msg for the sender goroutine. It never waits on the broker.
func (p *RealPublisher) deliver(msg bufferedMsg) error {
	p.mu.Lock()
	p.buffer.add(msg)
	p.mu.Unlock()
	p.wake()
	return nil
}

func (p *RealPublisher) wake() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// run drains the outbox whenever it is woken, until Close.
func (p *RealPublisher) run() {
	defer close(p.stopped)
	for {
		select {
		case <-p.kick:
			p.flush()
		case <-p.stop:
			p.flush()
			return
		}
	}
}

// flush sends queued messages in order while connected. On a send failure the
// unsent messages go back to the front of the outbox for the next attempt.
func (p *RealPublisher) flush() {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return
	}
	pending := p.buffer.takeAll()
	p.mu.Unlock()

	for i, msg := range pending {
		if err := p.send(msg); err != nil {
			log.Printf("mqtt: send failed, keeping %d messages queued: %v", len(pending)-i, err)
			p.requeue(pending[i:])
			return
		}
	}
}

// requeue puts msgs ahead of anything queued since they were taken.
func (p *RealPublisher) requeue(msgs []bufferedMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	newer := p.buffer.takeAll()
	for _, m := range msgs {
		p.buffer.add(m)
	}
	for _, m := range newer {
		p.buffer.add(m)
	}
}

func (p *RealPublisher) handleConnect() {
	p.mu.Lock()
	p.connected = true
	reconnect := p.everConnected
	p.everConnected = true
	queued := p.buffer.size()
	p.mu.Unlock()

	if reconnect {
		log.Printf("mqtt: reconnected, replaying %d buffered messages", queued)
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err == nil {
			p.requeue([]bufferedMsg{{topic: TopicSystem, payload: payload, qos: 1}})
		}
	} else {
		log.Printf("mqtt: connected, replaying %d buffered messages", queued)
	}
	p.wake()
}

func (p *RealPublisher) handleConnectionLost(err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}
