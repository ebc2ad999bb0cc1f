package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeKind = "topic"

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes ledger events to a durable topic exchange, using the
// message kind as routing key.
type AMQPNotifier struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   *slog.Logger
	declared bool
}

// NewAMQPNotifier opens a channel on conn for the given exchange.
func NewAMQPNotifier(conn *amqp.Connection, exchange string, logger *slog.Logger) (*AMQPNotifier, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return &AMQPNotifier{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// Send marshals the message and publishes it. One channel reopen is
// attempted when the first publish fails.
func (n *AMQPNotifier) Send(ctx context.Context, message Message) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", message.Kind, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.publish(ctx, message.Kind, body)
	if err == nil || n.conn == nil {
		return err
	}

	n.logger.Warn("amqp publish failed; reopening channel", "exchange", n.exchange, "routing_key", message.Kind, "error", err)
	ch, chErr := n.conn.Channel()
	if chErr != nil {
		return fmt.Errorf("reopen amqp channel: %w", chErr)
	}
	_ = n.ch.Close()
	n.ch = ch
	n.declared = false
	return n.publish(ctx, message.Kind, body)
}

func (n *AMQPNotifier) publish(ctx context.Context, routingKey string, body []byte) error {
	if !n.declared {
		if err := n.ch.ExchangeDeclare(n.exchange, exchangeKind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", n.exchange, err)
		}
		n.declared = true
	}
	return n.ch.PublishWithContext(ctx, n.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// Close releases the channel. The connection is owned by the caller.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch == nil {
		return nil
	}
	return n.ch.Close()
}
