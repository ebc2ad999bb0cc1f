package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/congo-pay/walletledger/internal/money"
)

var (
	// ErrInvalidAmount occurs when an amount is zero, negative or not finite.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNotFound covers absent wallets, wallets not owned by the caller and
	// unknown or walletless recipients.
	ErrNotFound = errors.New("not found")

	// ErrSelfTransfer indicates the resolved recipient is the sender.
	ErrSelfTransfer = errors.New("cannot transfer to yourself")

	// ErrInsufficientFunds occurs when the conditional debit finds a balance
	// lower than the requested amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflict reports a uniqueness violation while provisioning identities.
	ErrConflict = errors.New("conflict")
)

// TransactionType distinguishes ledger records.
type TransactionType string

const (
	TypeDeposit  TransactionType = "DEPOSIT"
	TypeTransfer TransactionType = "TRANSFER"
)

// SortOrder selects creation-time ordering for wallet listings.
type SortOrder int

const (
	NewestFirst SortOrder = iota
	OldestFirst
)

// Wallet is a currency-denominated balance owned by one identity.
type Wallet struct {
	ID        string
	OwnerID   string
	Currency  string
	Balance   money.Amount
	CreatedAt time.Time
}

// Transaction is an immutable ledger record. FromWalletID is empty for deposits.
type Transaction struct {
	ID           string
	Type         TransactionType
	Amount       money.Amount
	Currency     string
	FromWalletID string
	ToWalletID   string
	CreatedAt    time.Time
}

// Identity is the registered account a wallet belongs to.
type Identity struct {
	ID        string
	Username  string
	Email     string
	Name      string
	CreatedAt time.Time
}

// DateRange bounds createdAt inclusively. A zero bound is open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// TransactionFilter narrows QueryTransactions. Results are newest first.
type TransactionFilter struct {
	// WalletID matches records where the wallet is either side.
	WalletID string
	Limit    int
}

// PrimaryWallet returns the oldest wallet, breaking creation-time ties by id.
func PrimaryWallet(wallets []Wallet) (Wallet, bool) {
	if len(wallets) == 0 {
		return Wallet{}, false
	}
	primary := wallets[0]
	for _, w := range wallets[1:] {
		if w.CreatedAt.Before(primary.CreatedAt) ||
			(w.CreatedAt.Equal(primary.CreatedAt) && w.ID < primary.ID) {
			primary = w
		}
	}
	return primary, true
}

// Store is the persistence contract the engine relies on. Implementations
// must make AtomicDebit a single conditional update and honour RunAtomic as
// an all-or-nothing unit of work: store calls made with the context passed
// to fn join that unit.
type Store interface {
	GetWallet(ctx context.Context, id string) (Wallet, error)
	GetOwnedWallet(ctx context.Context, id, ownerID string) (Wallet, error)
	WalletsByOwner(ctx context.Context, ownerID string, order SortOrder) ([]Wallet, error)
	// FindIdentityByHandle matches the username case-insensitively and returns
	// the identity's wallets oldest first.
	FindIdentityByHandle(ctx context.Context, handle string) (Identity, []Wallet, error)
	// AtomicDebit decrements the balance only when the stored balance is at
	// least amount. It reports false when no row qualified.
	AtomicDebit(ctx context.Context, walletID, ownerID string, amount money.Amount) (bool, error)
	CreditWallet(ctx context.Context, walletID string, amount money.Amount) (Wallet, error)
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	QueryTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error
}
