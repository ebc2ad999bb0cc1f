package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/congo-pay/walletledger/internal/money"
)

type unitKey struct{}

// InMemoryStore implements Store and the provisioning/reporting reads on
// maps. Units of work hold the write lock for their whole duration and are
// rolled back from a snapshot on failure, which gives AtomicDebit the same
// at-most-one-wins outcome as a row-locked conditional UPDATE.
type InMemoryStore struct {
	mu         sync.RWMutex
	wallets    map[string]Wallet
	identities map[string]Identity
	txs        []Transaction
}

// NewInMemory creates an empty store, used in tests and local development.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		wallets:    make(map[string]Wallet),
		identities: make(map[string]Identity),
	}
}

func (s *InMemoryStore) inUnit(ctx context.Context) bool {
	owner, _ := ctx.Value(unitKey{}).(*InMemoryStore)
	return owner == s
}

func (s *InMemoryStore) lock(ctx context.Context) func() {
	if s.inUnit(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *InMemoryStore) rlock(ctx context.Context) func() {
	if s.inUnit(ctx) {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// RunAtomic runs fn while holding the store lock and restores the previous
// state if fn fails or panics. Nested calls join the outer unit.
func (s *InMemoryStore) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inUnit(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wallets := make(map[string]Wallet, len(s.wallets))
	for k, v := range s.wallets {
		wallets[k] = v
	}
	identities := make(map[string]Identity, len(s.identities))
	for k, v := range s.identities {
		identities[k] = v
	}
	txCount := len(s.txs)

	committed := false
	defer func() {
		if !committed {
			s.wallets = wallets
			s.identities = identities
			s.txs = s.txs[:txCount]
		}
	}()

	if err := fn(context.WithValue(ctx, unitKey{}, s)); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *InMemoryStore) GetWallet(ctx context.Context, id string) (Wallet, error) {
	defer s.rlock(ctx)()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
	}
	return w, nil
}

func (s *InMemoryStore) GetOwnedWallet(ctx context.Context, id, ownerID string) (Wallet, error) {
	defer s.rlock(ctx)()
	w, ok := s.wallets[id]
	if !ok || w.OwnerID != ownerID {
		return Wallet{}, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
	}
	return w, nil
}

func (s *InMemoryStore) WalletsByOwner(ctx context.Context, ownerID string, order SortOrder) ([]Wallet, error) {
	defer s.rlock(ctx)()
	return s.walletsOf(ownerID, order), nil
}

func (s *InMemoryStore) walletsOf(ownerID string, order SortOrder) []Wallet {
	out := make([]Wallet, 0)
	for _, w := range s.wallets {
		if w.OwnerID == ownerID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			if order == OldestFirst {
				return out[i].ID < out[j].ID
			}
			return out[i].ID > out[j].ID
		}
		if order == OldestFirst {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *InMemoryStore) FindIdentityByHandle(ctx context.Context, handle string) (Identity, []Wallet, error) {
	defer s.rlock(ctx)()
	handle = strings.ToLower(strings.TrimSpace(handle))
	for _, id := range s.identities {
		if strings.ToLower(id.Username) == handle {
			return id, s.walletsOf(id.ID, OldestFirst), nil
		}
	}
	return Identity{}, nil, fmt.Errorf("identity %q: %w", handle, ErrNotFound)
}

func (s *InMemoryStore) AtomicDebit(ctx context.Context, walletID, ownerID string, amount money.Amount) (bool, error) {
	defer s.lock(ctx)()
	w, ok := s.wallets[walletID]
	if !ok || w.OwnerID != ownerID || w.Balance.Cmp(amount) < 0 {
		return false, nil
	}
	w.Balance = w.Balance.Sub(amount)
	s.wallets[walletID] = w
	return true, nil
}

func (s *InMemoryStore) CreditWallet(ctx context.Context, walletID string, amount money.Amount) (Wallet, error) {
	defer s.lock(ctx)()
	w, ok := s.wallets[walletID]
	if !ok {
		return Wallet{}, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	w.Balance = w.Balance.Add(amount)
	s.wallets[walletID] = w
	return w, nil
}

func (s *InMemoryStore) InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	defer s.lock(ctx)()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	s.txs = append(s.txs, tx)
	return tx, nil
}

func (s *InMemoryStore) QueryTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	defer s.rlock(ctx)()
	out := make([]Transaction, 0)
	for i := len(s.txs) - 1; i >= 0; i-- {
		tx := s.txs[i]
		if filter.WalletID != "" && tx.FromWalletID != filter.WalletID && tx.ToWalletID != filter.WalletID {
			continue
		}
		out = append(out, tx)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CreateIdentity registers an identity. Username and email are unique
// case-insensitively.
func (s *InMemoryStore) CreateIdentity(ctx context.Context, id Identity) (Identity, error) {
	defer s.lock(ctx)()
	for _, existing := range s.identities {
		if strings.EqualFold(existing.Username, id.Username) || strings.EqualFold(existing.Email, id.Email) || existing.ID == id.ID {
			return Identity{}, fmt.Errorf("identity %q: %w", id.Username, ErrConflict)
		}
	}
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now().UTC()
	}
	s.identities[id.ID] = id
	return id, nil
}

// CreateWallet adds a wallet for an existing identity.
func (s *InMemoryStore) CreateWallet(ctx context.Context, w Wallet) (Wallet, error) {
	defer s.lock(ctx)()
	if _, ok := s.identities[w.OwnerID]; !ok {
		return Wallet{}, fmt.Errorf("owner %s: %w", w.OwnerID, ErrNotFound)
	}
	if _, exists := s.wallets[w.ID]; exists {
		return Wallet{}, fmt.Errorf("wallet %s: %w", w.ID, ErrConflict)
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	s.wallets[w.ID] = w
	return w, nil
}

func (s *InMemoryStore) FindIdentityByID(ctx context.Context, id string) (Identity, error) {
	defer s.rlock(ctx)()
	identity, ok := s.identities[id]
	if !ok {
		return Identity{}, fmt.Errorf("identity %s: %w", id, ErrNotFound)
	}
	return identity, nil
}

func (s *InMemoryStore) RankUserTransactions(ctx context.Context, q UserTransactionQuery) ([]OwnedTransaction, error) {
	defer s.rlock(ctx)()
	out := make([]OwnedTransaction, 0)
	for _, tx := range s.txs {
		if !q.Range.Contains(tx.CreatedAt) {
			continue
		}
		owned := OwnedTransaction{Transaction: tx, FromOwner: s.ownerOf(tx.FromWalletID), ToOwner: s.ownerOf(tx.ToWalletID)}
		fromUser := owned.FromOwner != nil && owned.FromOwner.ID == q.UserID
		toUser := owned.ToOwner != nil && owned.ToOwner.ID == q.UserID
		if !fromUser && !toUser {
			continue
		}
		out = append(out, owned)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].SignedFor(q.UserID).Cmp(out[j].SignedFor(q.UserID)); c != 0 {
			return c > 0
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) ownerOf(walletID string) *Identity {
	if walletID == "" {
		return nil
	}
	w, ok := s.wallets[walletID]
	if !ok {
		return nil
	}
	identity, ok := s.identities[w.OwnerID]
	if !ok {
		return nil
	}
	return &identity
}

func (s *InMemoryStore) OutboundVolumeByWallet(ctx context.Context, rng DateRange, limit int) ([]WalletVolume, error) {
	defer s.rlock(ctx)()
	totals := make(map[string]money.Amount)
	for _, tx := range s.txs {
		if tx.Type != TypeTransfer || tx.FromWalletID == "" || !rng.Contains(tx.CreatedAt) {
			continue
		}
		totals[tx.FromWalletID] = totals[tx.FromWalletID].Add(tx.Amount)
	}
	out := make([]WalletVolume, 0, len(totals))
	for walletID, total := range totals {
		out = append(out, WalletVolume{WalletID: walletID, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].WalletID < out[j].WalletID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) WalletOwners(ctx context.Context, walletIDs []string) (map[string]Identity, error) {
	defer s.rlock(ctx)()
	out := make(map[string]Identity, len(walletIDs))
	for _, id := range walletIDs {
		if owner := s.ownerOf(id); owner != nil {
			out[id] = *owner
		}
	}
	return out, nil
}
