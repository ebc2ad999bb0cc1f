package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletledger/internal/money"
)

func TestInMemoryAtomicDebitIsConditional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	SeedBalance(f.store, f.aliceW.ID, money.FromInt(50))

	ok, err := f.store.AtomicDebit(ctx, f.aliceW.ID, f.alice.ID, money.FromInt(51))
	if err != nil || ok {
		t.Fatalf("expected refused debit, got ok=%v err=%v", ok, err)
	}
	ok, err = f.store.AtomicDebit(ctx, f.aliceW.ID, f.bob.ID, money.FromInt(1))
	if err != nil || ok {
		t.Fatalf("expected refused debit for wrong owner, got ok=%v err=%v", ok, err)
	}
	ok, err = f.store.AtomicDebit(ctx, f.aliceW.ID, f.alice.ID, money.FromInt(50))
	if err != nil || !ok {
		t.Fatalf("expected debit to the last unit, got ok=%v err=%v", ok, err)
	}
	if got := balanceOf(t, f.store, f.aliceW.ID); !got.IsZero() {
		t.Fatalf("expected zero balance, got %s", got)
	}
}

func TestInMemoryRunAtomicRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	SeedBalance(f.store, f.aliceW.ID, money.FromInt(10))

	boom := errors.New("boom")
	err := f.store.RunAtomic(ctx, func(ctx context.Context) error {
		if _, err := f.store.CreditWallet(ctx, f.aliceW.ID, money.FromInt(5)); err != nil {
			return err
		}
		if _, err := f.store.InsertTransaction(ctx, Transaction{ID: uuid.NewString(), Type: TypeDeposit, Amount: money.FromInt(5), ToWalletID: f.aliceW.ID}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := balanceOf(t, f.store, f.aliceW.ID); !got.Equal(money.FromInt(10)) {
		t.Fatalf("expected balance restored to 10, got %s", got)
	}
	if len(f.store.txs) != 0 {
		t.Fatalf("expected records rolled back, got %d", len(f.store.txs))
	}
}

func TestInMemoryRunAtomicRollsBackOnPanic(t *testing.T) {
	f := newFixture(t)
	SeedBalance(f.store, f.aliceW.ID, money.FromInt(10))

	func() {
		defer func() { _ = recover() }()
		_ = f.store.RunAtomic(context.Background(), func(ctx context.Context) error {
			_, _ = f.store.CreditWallet(ctx, f.aliceW.ID, money.FromInt(5))
			panic("unexpected")
		})
	}()

	if got := balanceOf(t, f.store, f.aliceW.ID); !got.Equal(money.FromInt(10)) {
		t.Fatalf("expected balance restored to 10, got %s", got)
	}
}

func TestInMemoryNestedUnitJoinsOuter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.store.RunAtomic(ctx, func(ctx context.Context) error {
		return f.store.RunAtomic(ctx, func(ctx context.Context) error {
			_, err := f.store.CreditWallet(ctx, f.aliceW.ID, money.FromInt(3))
			return err
		})
	})
	if err != nil {
		t.Fatalf("nested unit: %v", err)
	}
	if got := balanceOf(t, f.store, f.aliceW.ID); !got.Equal(money.FromInt(3)) {
		t.Fatalf("expected balance 3, got %s", got)
	}
}

func TestInMemoryIdentityUniqueness(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	mustIdentity(t, store, "dana")

	_, err := store.CreateIdentity(ctx, Identity{ID: uuid.NewString(), Username: "DANA", Email: "other@example.com"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on username, got %v", err)
	}
	_, err = store.CreateIdentity(ctx, Identity{ID: uuid.NewString(), Username: "dana2", Email: "Dana@Example.com"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on email, got %v", err)
	}
	_, err = store.CreateWallet(ctx, Wallet{ID: uuid.NewString(), OwnerID: uuid.NewString(), Currency: "IDR"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown owner, got %v", err)
	}
}

func TestInMemoryFindIdentityByHandleReturnsOldestWalletFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	older, err := f.store.CreateWallet(ctx, Wallet{
		ID:        uuid.NewString(),
		OwnerID:   f.bob.ID,
		Currency:  "IDR",
		CreatedAt: f.bobW.CreatedAt.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	identity, wallets, err := f.store.FindIdentityByHandle(ctx, " Bob ")
	if err != nil {
		t.Fatalf("find identity: %v", err)
	}
	if identity.ID != f.bob.ID || len(wallets) != 2 || wallets[0].ID != older.ID {
		t.Fatalf("unexpected lookup result: %+v %+v", identity, wallets)
	}
	if primary, ok := PrimaryWallet(wallets); !ok || primary.ID != older.ID {
		t.Fatalf("expected primary wallet %s, got %+v", older.ID, primary)
	}
}

func TestPrimaryWalletBreaksTiesByID(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	wallets := []Wallet{
		{ID: "b", CreatedAt: at},
		{ID: "c", CreatedAt: at.Add(time.Second)},
		{ID: "a", CreatedAt: at},
	}
	primary, ok := PrimaryWallet(wallets)
	if !ok || primary.ID != "a" {
		t.Fatalf("expected wallet a, got %+v", primary)
	}
	if _, ok := PrimaryWallet(nil); ok {
		t.Fatal("expected no primary wallet for an empty list")
	}
}

func TestInMemoryRankUserTransactionsUsesSignedAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	record := func(tx Transaction) {
		t.Helper()
		tx.ID = uuid.NewString()
		if _, err := f.store.InsertTransaction(ctx, tx); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	record(Transaction{Type: TypeTransfer, Amount: money.FromInt(200), FromWalletID: f.aliceW.ID, ToWalletID: f.bobW.ID, CreatedAt: base})
	record(Transaction{Type: TypeTransfer, Amount: money.FromInt(150), FromWalletID: f.bobW.ID, ToWalletID: f.aliceW.ID, CreatedAt: base.Add(time.Minute)})
	record(Transaction{Type: TypeDeposit, Amount: money.FromInt(10), ToWalletID: f.aliceW.ID, CreatedAt: base.Add(2 * time.Minute)})
	record(Transaction{Type: TypeDeposit, Amount: money.FromInt(999), ToWalletID: f.bobW.ID, CreatedAt: base.Add(3 * time.Minute)})

	ranked, err := f.store.RankUserTransactions(ctx, UserTransactionQuery{UserID: f.alice.ID, Limit: 10})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("expected 3 records touching alice, got %d", len(ranked))
	}
	want := []string{"150", "10", "-200"}
	for i, w := range want {
		if got := ranked[i].SignedFor(f.alice.ID).String(); got != w {
			t.Fatalf("rank %d: expected signed %s, got %s", i, w, got)
		}
	}

	end := base.Add(30 * time.Second)
	ranged, err := f.store.RankUserTransactions(ctx, UserTransactionQuery{UserID: f.alice.ID, Range: DateRange{End: end}, Limit: 10})
	if err != nil {
		t.Fatalf("rank with range: %v", err)
	}
	if len(ranged) != 1 || ranged[0].SignedFor(f.alice.ID).String() != "-200" {
		t.Fatalf("unexpected ranged result: %+v", ranged)
	}
}

func TestInMemoryOutboundVolumeByWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, tx := range []Transaction{
		{Type: TypeTransfer, Amount: money.FromInt(40), FromWalletID: f.aliceW.ID, ToWalletID: f.bobW.ID, CreatedAt: at},
		{Type: TypeTransfer, Amount: money.FromInt(30), FromWalletID: f.aliceW.ID, ToWalletID: f.bobW.ID, CreatedAt: at},
		{Type: TypeTransfer, Amount: money.FromInt(50), FromWalletID: f.bobW.ID, ToWalletID: f.aliceW.ID, CreatedAt: at},
		{Type: TypeDeposit, Amount: money.FromInt(1000), ToWalletID: f.bobW.ID, CreatedAt: at},
	} {
		tx.ID = uuid.NewString()
		if _, err := f.store.InsertTransaction(ctx, tx); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	volumes, err := f.store.OutboundVolumeByWallet(ctx, DateRange{}, 10)
	if err != nil {
		t.Fatalf("volume: %v", err)
	}
	if len(volumes) != 2 {
		t.Fatalf("expected 2 sending wallets, got %d", len(volumes))
	}
	if volumes[0].WalletID != f.aliceW.ID || !volumes[0].Total.Equal(money.FromInt(70)) {
		t.Fatalf("unexpected top volume: %+v", volumes[0])
	}

	owners, err := f.store.WalletOwners(ctx, []string{f.aliceW.ID, f.bobW.ID, "missing"})
	if err != nil {
		t.Fatalf("owners: %v", err)
	}
	if len(owners) != 2 || owners[f.aliceW.ID].ID != f.alice.ID {
		t.Fatalf("unexpected owners: %+v", owners)
	}
}
