package notification

import (
	"context"
	"log/slog"
	"time"
)

const (
	// KindDepositCompleted is emitted after a deposit commits.
	KindDepositCompleted = "ledger.deposit.completed"
	// KindTransferCompleted is emitted after a transfer commits.
	KindTransferCompleted = "ledger.transfer.completed"
)

// Message describes a committed ledger event. Amount is a decimal string.
type Message struct {
	Kind          string    `json:"kind"`
	TransactionID string    `json:"transaction_id"`
	FromWalletID  string    `json:"from_wallet_id,omitempty"`
	ToWalletID    string    `json:"to_wallet_id"`
	Destination   string    `json:"destination"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notifier delivers ledger events to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes events to the structured logger. It is used when no
// broker is configured.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"transaction_id", message.TransactionID,
		"destination", message.Destination,
		"amount", message.Amount,
		"currency", message.Currency,
	)
	return nil
}
