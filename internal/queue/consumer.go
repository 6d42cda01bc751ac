package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// NotificationLogFile is the file the consumer appends to inside its
// log directory.
const NotificationLogFile = "notifications.log"

// NotificationConsumer drains QueueName and appends one line per event
// to <Dir>/notifications.log.
type NotificationConsumer struct {
	URL    string
	Dir    string
	Logger *zap.Logger
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff.  Malformed messages are
// rejected without requeue so they cannot loop.
func (c *NotificationConsumer) Run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Logger.Warn("notification consumer: dial failed",
				zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.Logger.Warn("notification consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func (c *NotificationConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Logger.Warn("notification consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.Logger.Info("notification consumer started", zap.String("queue", QueueName))

	for d := range msgs {
		if err := c.handle(d.Body); err != nil {
			c.Logger.Error("notification consumer: handle message failed",
				zap.String("message_id", d.MessageId), zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (c *NotificationConsumer) handle(body []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.SessionID == 0 {
		return errors.New("event missing type or session")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.Dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.Dir, NotificationLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatNotification(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatNotification renders ev as a single log line.
func FormatNotification(ev BookingEvent) string {
	line := fmt.Sprintf("[%s] %s | event_id=%s | session_id=%d | class=%q | starts_at=%s | member_id=%d",
		ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.EventID, ev.SessionID, ev.SessionName,
		ev.StartsAt.UTC().Format(time.RFC3339), ev.MemberID)
	if ev.ReservationID != 0 {
		line += fmt.Sprintf(" | reservation_id=%d", ev.ReservationID)
	}
	if ev.Position > 0 {
		line += fmt.Sprintf(" | position=%d", ev.Position)
	}
	if ev.Promoted {
		line += " | promoted=true"
	}
	return line + "\n"
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
