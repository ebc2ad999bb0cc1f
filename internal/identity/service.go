package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/validation"
)

// Service provisions identities and their wallets.
type Service struct {
	repo            Repository
	defaultCurrency string
	logger          *slog.Logger
	now             func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository, defaultCurrency string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	defaultCurrency = strings.ToUpper(strings.TrimSpace(defaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = "IDR"
	}
	return &Service{
		repo:            repo,
		defaultCurrency: defaultCurrency,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Register creates the identity and its primary wallet in one unit of work.
// Duplicate usernames or emails fail with ledger.ErrConflict.
func (s *Service) Register(ctx context.Context, reg Registration) (Account, error) {
	v := validation.New()
	v.Handle("username", reg.Username)
	v.Email("email", reg.Email)
	v.Currency("currency", reg.Currency)
	if err := v.Err(); err != nil {
		return Account{}, err
	}

	now := s.now()
	var account Account
	err := s.repo.RunAtomic(ctx, func(ctx context.Context) error {
		identity, err := s.repo.CreateIdentity(ctx, ledger.Identity{
			ID:        uuid.NewString(),
			Username:  strings.TrimSpace(reg.Username),
			Email:     strings.ToLower(strings.TrimSpace(reg.Email)),
			Name:      strings.TrimSpace(reg.Name),
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		wallet, err := s.repo.CreateWallet(ctx, ledger.Wallet{
			ID:        uuid.NewString(),
			OwnerID:   identity.ID,
			Currency:  s.currency(reg.Currency),
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("create primary wallet: %w", err)
		}
		account = Account{Identity: identity, Wallet: wallet}
		return nil
	})
	if err != nil {
		return Account{}, err
	}

	s.logger.Info("identity provisioned",
		slog.String("user_id", account.Identity.ID),
		slog.String("username", account.Identity.Username),
		slog.String("wallet_id", account.Wallet.ID),
	)
	return account, nil
}

// AddWallet opens another wallet for an existing identity.
func (s *Service) AddWallet(ctx context.Context, ownerID, currency string) (ledger.Wallet, error) {
	v := validation.New()
	v.Currency("currency", currency)
	if err := v.Err(); err != nil {
		return ledger.Wallet{}, err
	}
	wallet, err := s.repo.CreateWallet(ctx, ledger.Wallet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Currency:  s.currency(currency),
		CreatedAt: s.now(),
	})
	if err != nil {
		return ledger.Wallet{}, err
	}
	s.logger.Info("wallet opened", slog.String("user_id", ownerID), slog.String("wallet_id", wallet.ID))
	return wallet, nil
}

// Profile returns the identity and its wallets, newest first.
func (s *Service) Profile(ctx context.Context, id string) (Profile, error) {
	identity, err := s.repo.FindIdentityByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	wallets, err := s.repo.WalletsByOwner(ctx, id, ledger.NewestFirst)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Identity: identity, Wallets: wallets}, nil
}

func (s *Service) currency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return s.defaultCurrency
	}
	return code
}
