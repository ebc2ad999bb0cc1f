package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/walletledger/internal/money"
	"github.com/congo-pay/walletledger/internal/notification"
)

const (
	// DefaultTransactionLimit is used when ListTransactions gets no usable limit.
	DefaultTransactionLimit = 20
	// MaxTransactionLimit caps ListTransactions page sizes.
	MaxTransactionLimit = 100
)

// Engine mutates wallet balances and appends ledger records. It holds no
// locks of its own; concurrent safety comes from the store's conditional
// debit inside a unit of work.
type Engine struct {
	store    Store
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithNotifier publishes committed deposits and transfers.
func WithNotifier(n notification.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an engine over the given store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DepositResult is the post-commit state of a deposit.
type DepositResult struct {
	Wallet      Wallet
	Transaction Transaction
}

// TransferInput identifies the authenticated sender and the recipient handle.
type TransferInput struct {
	SenderID        string
	SenderHandle    string
	SenderWalletID  string
	RecipientHandle string
	Amount          money.Amount
}

// TransferResult reports balances re-read after commit.
type TransferResult struct {
	FromWallet  Wallet
	ToWallet    Wallet
	Transaction Transaction
}

// WalletTransactions is a wallet together with a page of its history.
type WalletTransactions struct {
	Wallet       Wallet
	Transactions []Transaction
}

// Deposit credits a wallet owned by ownerID and records a DEPOSIT. An empty
// currency defaults to the wallet's currency.
func (e *Engine) Deposit(ctx context.Context, walletID, ownerID string, amount money.Amount, currency string) (DepositResult, error) {
	if !amount.IsPositive() {
		return DepositResult{}, ErrInvalidAmount
	}

	wallet, err := e.store.GetOwnedWallet(ctx, walletID, ownerID)
	if err != nil {
		return DepositResult{}, err
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = wallet.Currency
	}

	var res DepositResult
	err = e.store.RunAtomic(ctx, func(ctx context.Context) error {
		updated, err := e.store.CreditWallet(ctx, wallet.ID, amount)
		if err != nil {
			return fmt.Errorf("credit wallet %s: %w", wallet.ID, err)
		}
		record, err := e.store.InsertTransaction(ctx, Transaction{
			ID:         uuid.NewString(),
			Type:       TypeDeposit,
			Amount:     amount,
			Currency:   currency,
			ToWalletID: wallet.ID,
			CreatedAt:  e.now(),
		})
		if err != nil {
			return fmt.Errorf("record deposit: %w", err)
		}
		res = DepositResult{Wallet: updated, Transaction: record}
		return nil
	})
	if err != nil {
		return DepositResult{}, err
	}

	e.logger.Info("deposit committed",
		"transaction_id", res.Transaction.ID,
		"wallet_id", wallet.ID,
		"amount", amount.String(),
		"currency", currency,
	)
	e.notify(ctx, notification.Message{
		Kind:          notification.KindDepositCompleted,
		TransactionID: res.Transaction.ID,
		ToWalletID:    wallet.ID,
		Destination:   wallet.OwnerID,
		Amount:        amount.String(),
		Currency:      currency,
		OccurredAt:    res.Transaction.CreatedAt,
	})
	return res, nil
}

// Transfer moves amount from the sender's wallet to the recipient's primary
// wallet. The debit is conditional on sufficient balance and runs in the same
// unit of work as the credit and the TRANSFER record.
func (e *Engine) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if !in.Amount.IsPositive() {
		return TransferResult{}, ErrInvalidAmount
	}

	recipientHandle := normalizeHandle(in.RecipientHandle)
	if recipientHandle == "" {
		return TransferResult{}, fmt.Errorf("recipient: %w", ErrNotFound)
	}
	if recipientHandle == normalizeHandle(in.SenderHandle) {
		return TransferResult{}, ErrSelfTransfer
	}

	var (
		sender           Wallet
		recipient        Identity
		recipientWallets []Wallet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w, err := e.store.GetOwnedWallet(gctx, in.SenderWalletID, in.SenderID)
		if err != nil {
			return err
		}
		sender = w
		return nil
	})
	g.Go(func() error {
		id, wallets, err := e.store.FindIdentityByHandle(gctx, recipientHandle)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("recipient %q: %w", recipientHandle, ErrNotFound)
			}
			return err
		}
		recipient, recipientWallets = id, wallets
		return nil
	})
	if err := g.Wait(); err != nil {
		return TransferResult{}, err
	}

	if recipient.ID == in.SenderID {
		return TransferResult{}, ErrSelfTransfer
	}
	target, ok := PrimaryWallet(recipientWallets)
	if !ok {
		return TransferResult{}, fmt.Errorf("recipient %q has no wallet: %w", recipientHandle, ErrNotFound)
	}

	var record Transaction
	err := e.store.RunAtomic(ctx, func(ctx context.Context) error {
		debited, err := e.store.AtomicDebit(ctx, sender.ID, in.SenderID, in.Amount)
		if err != nil {
			return fmt.Errorf("debit wallet %s: %w", sender.ID, err)
		}
		if !debited {
			return ErrInsufficientFunds
		}
		if _, err := e.store.CreditWallet(ctx, target.ID, in.Amount); err != nil {
			return fmt.Errorf("credit wallet %s: %w", target.ID, err)
		}
		record, err = e.store.InsertTransaction(ctx, Transaction{
			ID:           uuid.NewString(),
			Type:         TypeTransfer,
			Amount:       in.Amount,
			Currency:     sender.Currency,
			FromWalletID: sender.ID,
			ToWalletID:   target.ID,
			CreatedAt:    e.now(),
		})
		if err != nil {
			return fmt.Errorf("record transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			e.logger.Warn("transfer rejected", "from_wallet_id", sender.ID, "amount", in.Amount.String(), "reason", err.Error())
		}
		return TransferResult{}, err
	}

	fromWallet, err := e.store.GetWallet(ctx, sender.ID)
	if err != nil {
		return TransferResult{}, err
	}
	toWallet, err := e.store.GetWallet(ctx, target.ID)
	if err != nil {
		return TransferResult{}, err
	}

	e.logger.Info("transfer committed",
		"transaction_id", record.ID,
		"from_wallet_id", sender.ID,
		"to_wallet_id", target.ID,
		"amount", in.Amount.String(),
		"currency", record.Currency,
	)
	e.notify(ctx, notification.Message{
		Kind:          notification.KindTransferCompleted,
		TransactionID: record.ID,
		FromWalletID:  sender.ID,
		ToWalletID:    target.ID,
		Destination:   recipient.ID,
		Amount:        in.Amount.String(),
		Currency:      record.Currency,
		OccurredAt:    record.CreatedAt,
	})

	return TransferResult{FromWallet: fromWallet, ToWallet: toWallet, Transaction: record}, nil
}

// ListMine returns the owner's wallets, most recently created first.
func (e *Engine) ListMine(ctx context.Context, ownerID string) ([]Wallet, error) {
	return e.store.WalletsByOwner(ctx, ownerID, NewestFirst)
}

// ListTransactions returns the newest records touching an owned wallet.
func (e *Engine) ListTransactions(ctx context.Context, walletID, ownerID string, limit int) (WalletTransactions, error) {
	wallet, err := e.store.GetOwnedWallet(ctx, walletID, ownerID)
	if err != nil {
		return WalletTransactions{}, err
	}
	txs, err := e.store.QueryTransactions(ctx, TransactionFilter{
		WalletID: wallet.ID,
		Limit:    ClampTransactionLimit(limit),
	})
	if err != nil {
		return WalletTransactions{}, err
	}
	return WalletTransactions{Wallet: wallet, Transactions: txs}, nil
}

// ClampTransactionLimit maps non-positive limits to the default and caps the rest.
func ClampTransactionLimit(limit int) int {
	if limit <= 0 {
		return DefaultTransactionLimit
	}
	if limit > MaxTransactionLimit {
		return MaxTransactionLimit
	}
	return limit
}

func (e *Engine) notify(ctx context.Context, msg notification.Message) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, msg); err != nil {
		e.logger.Warn("ledger notification failed", "kind", msg.Kind, "transaction_id", msg.TransactionID, "error", err)
	}
}

func normalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}
