package ledger

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletledger/internal/infra"
	"github.com/congo-pay/walletledger/internal/logging"
	"github.com/congo-pay/walletledger/internal/money"
)

// newPostgresStore connects to TEST_DATABASE_URL and applies the schema.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := infra.NewPostgresPool(ctx, url, 8)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := infra.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPostgresStore(pool)
}

func pgIdentityWithWallet(t *testing.T, store *PostgresStore, prefix string) (Identity, Wallet) {
	t.Helper()
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	identity, err := store.CreateIdentity(ctx, Identity{
		ID:       uuid.NewString(),
		Username: prefix + "_" + suffix,
		Email:    prefix + "_" + suffix + "@example.com",
		Name:     prefix,
	})
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	wallet, err := store.CreateWallet(ctx, Wallet{ID: uuid.NewString(), OwnerID: identity.ID, Currency: "IDR"})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return identity, wallet
}

func TestPostgresConcurrentTransfersOnlyOneSucceeds(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	alice, aliceW := pgIdentityWithWallet(t, store, "alice")
	bob, bobW := pgIdentityWithWallet(t, store, "bob")
	engine := NewEngine(store, WithLogger(logging.Discard()))

	if _, err := engine.Deposit(ctx, aliceW.ID, alice.ID, money.FromInt(100), "IDR"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Transfer(ctx, TransferInput{
				SenderID:        alice.ID,
				SenderHandle:    alice.Username,
				SenderWalletID:  aliceW.ID,
				RecipientHandle: bob.Username,
				Amount:          money.FromInt(80),
			})
			mu.Lock()
			results = append(results, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("expected 1 success and 1 rejection, got %d/%d", ok, insufficient)
	}

	sender, err := store.GetWallet(ctx, aliceW.ID)
	if err != nil {
		t.Fatalf("get sender: %v", err)
	}
	recipient, err := store.GetWallet(ctx, bobW.ID)
	if err != nil {
		t.Fatalf("get recipient: %v", err)
	}
	if !sender.Balance.Equal(money.FromInt(20)) || !recipient.Balance.Equal(money.FromInt(80)) {
		t.Fatalf("unexpected balances: sender=%s recipient=%s", sender.Balance, recipient.Balance)
	}

	page, err := engine.ListTransactions(ctx, aliceW.ID, alice.ID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	transfers := 0
	for _, tx := range page.Transactions {
		if tx.Type == TypeTransfer {
			transfers++
		}
	}
	if transfers != 1 {
		t.Fatalf("expected one transfer record, got %d", transfers)
	}
}

func TestPostgresRankAndVolume(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	alice, aliceW := pgIdentityWithWallet(t, store, "alice")
	bob, bobW := pgIdentityWithWallet(t, store, "bob")
	engine := NewEngine(store, WithLogger(logging.Discard()))

	if _, err := engine.Deposit(ctx, aliceW.ID, alice.ID, money.FromInt(500), "IDR"); err != nil {
		t.Fatalf("deposit alice: %v", err)
	}
	if _, err := engine.Deposit(ctx, bobW.ID, bob.ID, money.FromInt(500), "IDR"); err != nil {
		t.Fatalf("deposit bob: %v", err)
	}
	if _, err := engine.Transfer(ctx, TransferInput{SenderID: alice.ID, SenderHandle: alice.Username, SenderWalletID: aliceW.ID, RecipientHandle: bob.Username, Amount: money.FromInt(200)}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := engine.Transfer(ctx, TransferInput{SenderID: bob.ID, SenderHandle: bob.Username, SenderWalletID: bobW.ID, RecipientHandle: alice.Username, Amount: money.FromInt(150)}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	ranked, err := store.RankUserTransactions(ctx, UserTransactionQuery{UserID: alice.ID, Limit: 10})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	want := []string{"500", "150", "-200"}
	if len(ranked) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(ranked))
	}
	for i, w := range want {
		if got := ranked[i].SignedFor(alice.ID); !got.Equal(money.MustParse(w)) {
			t.Fatalf("rank %d: expected %s, got %s", i, w, got)
		}
	}
	if ranked[1].FromOwner == nil || ranked[1].FromOwner.ID != bob.ID {
		t.Fatalf("expected bob as counterparty, got %+v", ranked[1].FromOwner)
	}

	owners, err := store.WalletOwners(ctx, []string{aliceW.ID, bobW.ID, "not-a-uuid"})
	if err != nil {
		t.Fatalf("owners: %v", err)
	}
	if owners[aliceW.ID].ID != alice.ID || owners[bobW.ID].ID != bob.ID {
		t.Fatalf("unexpected owners: %+v", owners)
	}
}

func TestPostgresDuplicateIdentityConflicts(t *testing.T) {
	store := newPostgresStore(t)
	alice, _ := pgIdentityWithWallet(t, store, "carol")

	_, err := store.CreateIdentity(context.Background(), Identity{
		ID:       uuid.NewString(),
		Username: alice.Username,
		Email:    uuid.NewString() + "@example.com",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
