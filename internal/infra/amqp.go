package infra

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// NewAMQPConnection dials RabbitMQ with a bounded dial timeout.
func NewAMQPConnection(rawURL string) (*amqp.Connection, error) {
	clean := strings.Trim(strings.TrimSpace(rawURL), `"'`)
	if clean == "" {
		return nil, fmt.Errorf("amqp url is required")
	}
	u, err := url.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("parse amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return nil, fmt.Errorf("amqp url scheme must be amqp or amqps, got %q", u.Scheme)
	}

	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	return conn, nil
}
