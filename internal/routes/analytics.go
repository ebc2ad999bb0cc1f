package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/analytics"
)

// RegisterAnalyticsRoutes wires the reporting endpoints.
func RegisterAnalyticsRoutes(r fiber.Router, h *analytics.Handler) {
	r.Get("/analytics/users/:id/top-transactions", h.TopTransactions)
	r.Get("/analytics/top-users", h.TopUsers)
}
