package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/ledger"
)

// RegisterWalletRoutes wires wallet reads and the money-moving endpoints.
// guards run before deposit and transfer only.
func RegisterWalletRoutes(r fiber.Router, h *ledger.Handler, guards ...fiber.Handler) {
	r.Get("/wallets/me", h.ListMine)
	r.Get("/wallets/:id/transactions", h.ListTransactions)
	r.Post("/wallets/transfer", guarded(guards, h.Transfer)...)
	r.Post("/wallets/:id/deposit", guarded(guards, h.Deposit)...)
}

func guarded(guards []fiber.Handler, h fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(guards)+1)
	out = append(out, guards...)
	return append(out, h)
}
