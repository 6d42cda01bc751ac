package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// dialTimeout bounds a single connect plus AMQP handshake.
	dialTimeout = 2 * time.Second
	// redialBackoff is how long publishes fail fast after a failed dial.
	redialBackoff = 5 * time.Second
)

// ErrBrokerUnavailable is returned while the publisher is backing off
// after a failed dial.
var ErrBrokerUnavailable = errors.New("broker unavailable")

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Publisher publishes BookingEvents to QueueName.  The connection is
// opened lazily and re-dialled after a failure.  Every wait, for the
// publisher lock or for the broker, ends with the caller's context.
type Publisher struct {
	url    string
	logger *zap.Logger
	dial   dialFunc
	now    func() time.Time

	sem     chan struct{}
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
}

func NewPublisher(url string, logger *zap.Logger) *Publisher {
	d := &net.Dialer{Timeout: dialTimeout}
	return &Publisher{
		url:    url,
		logger: logger,
		dial:   d.DialContext,
		now:    time.Now,
		sem:    make(chan struct{}, 1),
	}
}

func (p *Publisher) lock(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) unlock() { <-p.sem }

// Publish sends ev as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, ev BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.lock(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	defer p.unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	err = ch.PublishWithContext(ctx,
		"",        // default exchange
		QueueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.EventID,
			Type:         ev.Type,
			Timestamp:    ev.OccurredAt,
			Body:         body,
		})
	if err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// channel returns the open channel, dialling when needed.  Callers hold
// the lock.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if p.now().Before(p.retryAt) {
		return nil, ErrBrokerUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      p.dialer(ctx),
	})
	if err != nil {
		p.retryAt = p.now().Add(redialBackoff)
		p.logger.Warn("event broker dial failed",
			zap.Duration("retry_in", redialBackoff), zap.Error(err))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	p.retryAt = time.Time{}
	p.logger.Info("event publisher connected", zap.String("queue", QueueName))
	return ch, nil
}

// dialer connects under ctx and bounds the AMQP handshake by the earlier
// of dialTimeout and ctx's deadline.  amqp clears the deadline once the
// connection is open.
func (p *Publisher) dialer(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		conn, err := p.dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		deadline := p.now().Add(dialTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.sem <- struct{}{}
	defer p.unlock()
	p.reset()
	return nil
}
