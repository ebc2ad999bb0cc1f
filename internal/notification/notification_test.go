package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/congo-pay/walletledger/internal/logging"
)

type fakeChannel struct {
	declared  []string
	published []amqp.Publishing
	keys      []string
	failWith  error
}

func (c *fakeChannel) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	c.declared = append(c.declared, name)
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestAMQPNotifierPublishesJSON(t *testing.T) {
	ch := &fakeChannel{}
	n := &AMQPNotifier{ch: ch, exchange: "ledger.events", logger: logging.Discard()}

	msg := Message{
		Kind:          KindTransferCompleted,
		TransactionID: "tx-1",
		FromWalletID:  "w1",
		ToWalletID:    "w2",
		Destination:   "user-2",
		Amount:        "80",
		Currency:      "IDR",
		OccurredAt:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	if err := n.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := n.Send(context.Background(), msg); err != nil {
		t.Fatalf("second send: %v", err)
	}

	if len(ch.declared) != 1 || ch.declared[0] != "ledger.events" {
		t.Fatalf("expected exchange declared once, got %v", ch.declared)
	}
	if len(ch.published) != 2 || ch.keys[0] != KindTransferCompleted {
		t.Fatalf("unexpected publishes: %v", ch.keys)
	}

	var decoded Message
	if err := json.Unmarshal(ch.published[0].Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.Amount != "80" || decoded.ToWalletID != "w2" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
	if ch.published[0].ContentType != "application/json" {
		t.Fatalf("unexpected content type %s", ch.published[0].ContentType)
	}
}

func TestAMQPNotifierReturnsErrorWithoutConnection(t *testing.T) {
	boom := errors.New("channel closed")
	n := &AMQPNotifier{ch: &fakeChannel{failWith: boom}, exchange: "ledger.events", logger: logging.Discard()}

	if err := n.Send(context.Background(), Message{Kind: KindDepositCompleted}); !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestLoggerNotifierNilSafe(t *testing.T) {
	var n *LoggerNotifier
	if err := n.Send(context.Background(), Message{Kind: KindDepositCompleted}); err != nil {
		t.Fatalf("nil notifier should not fail: %v", err)
	}
	if err := NewLoggerNotifier(logging.Discard()).Send(context.Background(), Message{Kind: KindDepositCompleted}); err != nil {
		t.Fatalf("logger notifier: %v", err)
	}
}
