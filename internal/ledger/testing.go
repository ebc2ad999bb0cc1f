package ledger

import "github.com/congo-pay/walletledger/internal/money"

// SeedBalance is a test helper that overwrites a wallet balance in the
// in-memory store without writing a ledger record.
func SeedBalance(s *InMemoryStore, walletID string, amount money.Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wallets[walletID]; ok {
		w.Balance = amount
		s.wallets[walletID] = w
	}
}
