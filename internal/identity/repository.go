package identity

import (
	"context"

	"github.com/congo-pay/walletledger/internal/ledger"
)

// Repository persists identities and their wallets. Both ledger stores
// implement it, so provisioning shares the ledger's unit of work.
type Repository interface {
	CreateIdentity(ctx context.Context, identity ledger.Identity) (ledger.Identity, error)
	CreateWallet(ctx context.Context, wallet ledger.Wallet) (ledger.Wallet, error)
	FindIdentityByID(ctx context.Context, id string) (ledger.Identity, error)
	WalletsByOwner(ctx context.Context, ownerID string, order ledger.SortOrder) ([]ledger.Wallet, error)
	RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error
}

var (
	_ Repository = (*ledger.InMemoryStore)(nil)
	_ Repository = (*ledger.PostgresStore)(nil)
)
