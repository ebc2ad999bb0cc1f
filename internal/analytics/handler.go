package analytics

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/validation"
)

// Handler exposes the analytics endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an analytics handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// TopTransactions serves a user's own ranked transactions.
func (h *Handler) TopTransactions(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	userID := c.Params("id")
	if userID != uid {
		return fiber.NewError(http.StatusForbidden, "you can only view analytics for your own account")
	}

	res, err := h.service.TopTransactions(c.UserContext(), userID, validation.ParseLimit(c.Query("limit")), dateRange(c))
	if err != nil {
		return ledger.ToHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(res)
}

// TopUsers serves the outbound-volume leaderboard.
func (h *Handler) TopUsers(c *fiber.Ctx) error {
	res, err := h.service.TopUsers(c.UserContext(), validation.ParseLimit(c.Query("limit")), dateRange(c))
	if err != nil {
		return ledger.ToHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(res)
}

func dateRange(c *fiber.Ctx) ledger.DateRange {
	return ledger.DateRange{
		Start: validation.ParseDate(c.Query("startDate")),
		End:   validation.ParseDate(c.Query("endDate")),
	}
}
