package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andrescamacho/carfactory-go/internal/application/factory"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/config"
)

// Routing keys carried by published events. The exchange is a fanout, so
// they only label the message for consumers.
const (
	RoutingKeyCompletion = "car.completed"
	RoutingKeyRestock    = "inventory.restocked"
)

// ErrPublishNack is returned when the broker refuses a message
var ErrPublishNack = errors.New("publish NACK from broker")

// Channel is the subset of *amqp.Channel the publisher uses
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	GetNextPublishSeqNo() uint64
	Close() error
}

// CompletionMessage is the JSON body of a car.completed event
type CompletionMessage struct {
	Type           string    `json:"type"`
	RunID          string    `json:"run_id"`
	OrderID        int       `json:"order_id"`
	Line           string    `json:"line"`
	Worker         string    `json:"worker"`
	RequestedParts int       `json:"requested_parts"`
	Parts          []string  `json:"parts"`
	PartsTimedOut  bool      `json:"parts_timed_out,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// RestockMessage is the JSON body of an inventory.restocked event
type RestockMessage struct {
	Type       string         `json:"type"`
	RunID      string         `json:"run_id"`
	Inventory  string         `json:"inventory"`
	Increment  int            `json:"increment"`
	StockAfter map[string]int `json:"stock_after"`
	At         time.Time      `json:"at"`
}

// Publisher publishes factory events to a fanout exchange and waits for the
// broker confirm of each message. Publishes are serialised and every confirm
// is matched to its message by delivery tag; confirms for messages that
// already gave up waiting are discarded.
type Publisher struct {
	conn       *amqp.Connection
	ch         Channel
	acks       <-chan amqp.Confirmation
	exchange   string
	timeout    time.Duration
	persistent bool
	now        func() time.Time

	mu sync.Mutex
}

// Dial connects to the broker, declares the exchange and enables publisher confirms
func Dial(cfg config.EventsConfig) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 16))

	p := NewPublisher(ch, acks, cfg)
	p.conn = conn
	return p, nil
}

// NewPublisher wraps an already confirmed channel. acks may be nil when the
// channel is not in confirm mode.
func NewPublisher(ch Channel, acks <-chan amqp.Confirmation, cfg config.EventsConfig) *Publisher {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		ch:         ch,
		acks:       acks,
		exchange:   cfg.Exchange,
		timeout:    timeout,
		persistent: cfg.Persistent,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Name identifies the publisher among the reporter's sinks
func (p *Publisher) Name() string { return "amqp" }

// Record publishes one event
func (p *Publisher) Record(ctx context.Context, event factory.Event) error {
	key, body, err := encode(event)
	if err != nil {
		return err
	}
	return p.publish(ctx, key, body)
}

// Close releases the channel and the connection
func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) publish(ctx context.Context, key string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	mode := amqp.Transient
	if p.persistent {
		mode = amqp.Persistent
	}

	tag := p.ch.GetNextPublishSeqNo()
	err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		DeliveryMode: mode,
		ContentType:  "application/json",
		Timestamp:    p.now(),
		Type:         key,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}

	if p.acks == nil {
		return nil
	}

	for {
		select {
		case conf, ok := <-p.acks:
			if !ok {
				return fmt.Errorf("confirm channel closed while publishing %s", key)
			}
			if conf.DeliveryTag < tag {
				// late confirm of a message that timed out
				continue
			}
			if !conf.Ack {
				return fmt.Errorf("%s: %w", key, ErrPublishNack)
			}
			return nil
		case <-ctx.Done():
			return fmt.Errorf("waiting for confirm of %s: %w", key, ctx.Err())
		}
	}
}

func encode(event factory.Event) (string, []byte, error) {
	var (
		key string
		msg interface{}
	)

	switch e := event.(type) {
	case factory.CompletionEvent:
		names := make([]string, len(e.Parts))
		for i, k := range e.Parts {
			names[i] = string(k)
		}
		key = RoutingKeyCompletion
		msg = CompletionMessage{
			Type:           key,
			RunID:          e.RunID,
			OrderID:        int(e.OrderID),
			Line:           e.Line,
			Worker:         e.Worker,
			RequestedParts: e.RequestedParts,
			Parts:          names,
			PartsTimedOut:  e.PartsTimedOut,
			StartedAt:      e.StartedAt,
			CompletedAt:    e.CompletedAt,
		}
	case factory.RestockEvent:
		stock := make(map[string]int, len(e.StockAfter))
		for k, n := range e.StockAfter {
			stock[string(k)] = n
		}
		key = RoutingKeyRestock
		msg = RestockMessage{
			Type:       key,
			RunID:      e.RunID,
			Inventory:  e.Inventory,
			Increment:  e.Increment,
			StockAfter: stock,
			At:         e.At,
		}
	default:
		return "", nil, fmt.Errorf("unsupported event %T", event)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return key, body, nil
}
