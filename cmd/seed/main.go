package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/congo-pay/walletledger/internal/auth"
	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/infra"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/logging"
	"github.com/congo-pay/walletledger/internal/money"
)

// Provisions SEED_USERNAME / SEED_EMAIL (optionally SEED_NAME, SEED_DEPOSIT)
// with a primary wallet and prints a bearer token for it.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	username := strings.TrimSpace(os.Getenv("SEED_USERNAME"))
	email := strings.TrimSpace(os.Getenv("SEED_EMAIL"))
	if cfg.DatabaseURL == "" || username == "" || email == "" {
		logger.Error("DATABASE_URL, SEED_USERNAME and SEED_EMAIL must be set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := ledger.NewPostgresStore(db)
	account, err := identity.NewService(store, cfg.DefaultCurrency, logger).Register(ctx, identity.Registration{
		Username: username,
		Email:    email,
		Name:     os.Getenv("SEED_NAME"),
	})
	if errors.Is(err, ledger.ErrConflict) {
		logger.Error("identity already exists", "username", username)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("provision identity", "error", err)
		os.Exit(1)
	}

	if raw := strings.TrimSpace(os.Getenv("SEED_DEPOSIT")); raw != "" {
		amount, err := money.Parse(raw)
		if err != nil {
			logger.Error("invalid SEED_DEPOSIT", "error", err)
			os.Exit(1)
		}
		engine := ledger.NewEngine(store, ledger.WithLogger(logger))
		if _, err := engine.Deposit(ctx, account.Wallet.ID, account.Identity.ID, amount, ""); err != nil {
			logger.Error("seed deposit", "error", err)
			os.Exit(1)
		}
	}

	pair, err := auth.NewService(cfg.JWTSecret, cfg.TokenTTL, cfg.AppName).Issue(account.Identity.ID, account.Identity.Username, account.Wallet.ID)
	if err != nil {
		logger.Error("issue token", "error", err)
		os.Exit(1)
	}

	fmt.Printf("user_id=%s\nwallet_id=%s\naccess_token=%s\n", account.Identity.ID, account.Wallet.ID, pair.AccessToken)
}
