package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/money"
)

const (
	TopTransactionsDefault = 10
	TopTransactionsMax     = 50
	TopUsersDefault        = 10
	TopUsersMax            = 25

	// leaderboardOverFetch widens the wallet-group window so users who split
	// outbound volume across wallets still surface. Users fragmented below the
	// window are undercounted.
	leaderboardOverFetch = 5
)

// Store is the read side of the ledger used for reporting.
type Store interface {
	FindIdentityByID(ctx context.Context, id string) (ledger.Identity, error)
	RankUserTransactions(ctx context.Context, q ledger.UserTransactionQuery) ([]ledger.OwnedTransaction, error)
	OutboundVolumeByWallet(ctx context.Context, rng ledger.DateRange, limit int) ([]ledger.WalletVolume, error)
	WalletOwners(ctx context.Context, walletIDs []string) (map[string]ledger.Identity, error)
}

type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

type Counterparty struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// RankedTransaction is a ledger record seen from one user. Amount is signed:
// negative when the user's wallet was the source.
type RankedTransaction struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Currency     string        `json:"currency"`
	Amount       money.Amount  `json:"amount"`
	Direction    Direction     `json:"direction"`
	Counterparty *Counterparty `json:"counterparty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

type UserTopTransactions struct {
	UserID       string              `json:"userId"`
	Transactions []RankedTransaction `json:"transactions"`
}

type TopUser struct {
	UserID        string       `json:"userId"`
	Username      string       `json:"username"`
	Email         string       `json:"email"`
	Name          string       `json:"name"`
	TotalOutbound money.Amount `json:"totalOutbound"`
}

type Leaderboard struct {
	Users []TopUser `json:"users"`
}

// Service ranks ledger history. It never writes.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService builds an analytics service over the given store.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// ClampLimit maps non-positive limits to def and caps the rest at maxLimit.
func ClampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// TopTransactions returns the records touching any of the user's wallets,
// ordered by signed amount descending. Inbound credits therefore rank above
// every outbound debit regardless of size.
func (s *Service) TopTransactions(ctx context.Context, userID string, limit int, rng ledger.DateRange) (UserTopTransactions, error) {
	take := ClampLimit(limit, TopTransactionsDefault, TopTransactionsMax)

	if _, err := s.store.FindIdentityByID(ctx, userID); err != nil {
		return UserTopTransactions{}, err
	}

	rows, err := s.store.RankUserTransactions(ctx, ledger.UserTransactionQuery{UserID: userID, Range: rng, Limit: take})
	if err != nil {
		return UserTopTransactions{}, fmt.Errorf("rank transactions for %s: %w", userID, err)
	}

	out := make([]RankedTransaction, 0, len(rows))
	for _, row := range rows {
		direction := DirectionIn
		other := row.FromOwner
		if row.OutgoingFor(userID) {
			direction = DirectionOut
			other = row.ToOwner
		}
		out = append(out, RankedTransaction{
			ID:           row.ID,
			Type:         string(row.Type),
			Currency:     row.Currency,
			Amount:       row.SignedFor(userID),
			Direction:    direction,
			Counterparty: toCounterparty(other),
			CreatedAt:    row.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > take {
		out = out[:take]
	}

	return UserTopTransactions{UserID: userID, Transactions: out}, nil
}

// TopUsers ranks identities by summed outbound TRANSFER volume. Wallet groups
// are over-fetched before merging per owner, so the result approximates an
// exact per-user ranking.
func (s *Service) TopUsers(ctx context.Context, limit int, rng ledger.DateRange) (Leaderboard, error) {
	take := ClampLimit(limit, TopUsersDefault, TopUsersMax)

	volumes, err := s.store.OutboundVolumeByWallet(ctx, rng, take*leaderboardOverFetch)
	if err != nil {
		return Leaderboard{}, fmt.Errorf("outbound volume: %w", err)
	}
	if len(volumes) == 0 {
		return Leaderboard{Users: []TopUser{}}, nil
	}

	walletIDs := make([]string, 0, len(volumes))
	for _, v := range volumes {
		walletIDs = append(walletIDs, v.WalletID)
	}
	owners, err := s.store.WalletOwners(ctx, walletIDs)
	if err != nil {
		return Leaderboard{}, fmt.Errorf("resolve wallet owners: %w", err)
	}

	identities := make(map[string]ledger.Identity)
	parts := make(map[string][]money.Amount)
	order := make([]string, 0, len(volumes))
	for _, v := range volumes {
		owner, ok := owners[v.WalletID]
		if !ok {
			s.logger.Warn("leaderboard wallet without owner", "wallet_id", v.WalletID)
			continue
		}
		if _, seen := identities[owner.ID]; !seen {
			identities[owner.ID] = owner
			order = append(order, owner.ID)
		}
		parts[owner.ID] = append(parts[owner.ID], v.Total)
	}

	users := make([]TopUser, 0, len(order))
	for _, id := range order {
		owner := identities[id]
		users = append(users, TopUser{
			UserID:        owner.ID,
			Username:      owner.Username,
			Email:         owner.Email,
			Name:          owner.Name,
			TotalOutbound: money.Sum(parts[id]...),
		})
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].TotalOutbound.Cmp(users[j].TotalOutbound) > 0
	})
	if len(users) > take {
		users = users[:take]
	}
	return Leaderboard{Users: users}, nil
}

func toCounterparty(id *ledger.Identity) *Counterparty {
	if id == nil {
		return nil
	}
	return &Counterparty{ID: id.ID, Username: id.Username, Email: id.Email, Name: id.Name}
}
