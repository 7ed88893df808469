// Package messaging publishes finalized session results to an AMQP
// exchange.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maastricht-university/amusement-pipeline/session"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

const (
	RoutingKeySegment = "segment"
	RoutingKeySession = "session"

	dialTimeout = 5 * time.Second
)

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Message is the JSON body of every published result.
type Message struct {
	RunID     string                 `json:"run_id"`
	Kind      string                 `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	Segment   *session.SegmentResult `json:"segment,omitempty"`
	Session   *session.SessionResult `json:"session,omitempty"`
}

type Publisher struct {
	log      logrus.FieldLogger
	exchange string
	runID    string
	now      func() time.Time

	mu   sync.Mutex
	ch   Channel
	conn io.Closer
}

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url, exchange, runID string, log logrus.FieldLogger) (*Publisher, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP server: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	p, err := NewPublisher(ch, exchange, runID, log)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func NewPublisher(ch Channel, exchange, runID string, log logrus.FieldLogger) (*Publisher, error) {
	if exchange == "" {
		return nil, fmt.Errorf("AMQP exchange not configured")
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &Publisher{log: log, exchange: exchange, runID: runID, ch: ch, now: time.Now}, nil
}

func (p *Publisher) SaveSegment(ctx context.Context, r session.SegmentResult) error {
	return p.publish(ctx, RoutingKeySegment, Message{Segment: &r})
}

func (p *Publisher) SaveSession(ctx context.Context, r session.SessionResult) error {
	return p.publish(ctx, RoutingKeySession, Message{Session: &r})
}

func (p *Publisher) publish(ctx context.Context, key string, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.RunID, m.Kind, m.Timestamp = p.runID, key, p.now().UTC()
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return fmt.Errorf("publisher closed")
	}
	err = p.ch.Publish(p.exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: p.runID,
		Timestamp:     m.Timestamp,
		Type:          key,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	p.log.WithFields(logrus.Fields{"exchange": p.exchange, "routing_key": key}).Debug("result published")
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
