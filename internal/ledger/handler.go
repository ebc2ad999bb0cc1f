package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/money"
	"github.com/congo-pay/walletledger/internal/validation"
)

// Handler exposes wallet HTTP endpoints backed by the engine.
type Handler struct {
	engine *Engine
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type walletResponse struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Currency  string       `json:"currency"`
	Balance   money.Amount `json:"balance"`
	CreatedAt time.Time    `json:"createdAt"`
}

type transactionResponse struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Amount       money.Amount `json:"amount"`
	Currency     string       `json:"currency"`
	FromWalletID *string      `json:"fromWalletId"`
	ToWalletID   *string      `json:"toWalletId"`
	CreatedAt    time.Time    `json:"createdAt"`
}

type depositRequest struct {
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
}

type transferRequest struct {
	RecipientUsername string      `json:"recipientUsername"`
	Amount            json.Number `json:"amount"`
	FromWalletID      string      `json:"fromWalletId"`
}

func toWalletResponse(w Wallet) walletResponse {
	return walletResponse{ID: w.ID, UserID: w.OwnerID, Currency: w.Currency, Balance: w.Balance, CreatedAt: w.CreatedAt}
}

func toTransactionResponse(tx Transaction) transactionResponse {
	return transactionResponse{
		ID:           tx.ID,
		Type:         string(tx.Type),
		Amount:       tx.Amount,
		Currency:     tx.Currency,
		FromWalletID: optional(tx.FromWalletID),
		ToWalletID:   optional(tx.ToWalletID),
		CreatedAt:    tx.CreatedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ListMine returns the caller's wallets, newest first.
func (h *Handler) ListMine(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	wallets, err := h.engine.ListMine(c.UserContext(), uid)
	if err != nil {
		return ToHTTPError(err)
	}
	out := make([]walletResponse, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, toWalletResponse(w))
	}
	return c.Status(http.StatusOK).JSON(out)
}

// ListTransactions returns a wallet and its newest records.
func (h *Handler) ListTransactions(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	page, err := h.engine.ListTransactions(c.UserContext(), c.Params("id"), uid, validation.ParseLimit(c.Query("limit")))
	if err != nil {
		return ToHTTPError(err)
	}
	txs := make([]transactionResponse, 0, len(page.Transactions))
	for _, tx := range page.Transactions {
		txs = append(txs, toTransactionResponse(tx))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet":       toWalletResponse(page.Wallet),
		"transactions": txs,
	})
}

// Deposit credits one of the caller's wallets.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	v := validation.New()
	amount := v.PositiveAmount("amount", req.Amount.String())
	v.Currency("currency", req.Currency)
	if err := v.Err(); err != nil {
		return ToHTTPError(err)
	}

	res, err := h.engine.Deposit(c.UserContext(), c.Params("id"), uid, amount, req.Currency)
	if err != nil {
		return ToHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"wallet":      toWalletResponse(res.Wallet),
		"transaction": toTransactionResponse(res.Transaction),
	})
}

// Transfer sends funds from the caller's wallet to a recipient handle.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	username, _ := c.Locals("username").(string)
	walletID, _ := c.Locals("wallet_id").(string)

	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.FromWalletID) != "" {
		walletID = strings.TrimSpace(req.FromWalletID)
	}
	v := validation.New()
	v.Required("recipientUsername", req.RecipientUsername)
	amount := v.PositiveAmount("amount", req.Amount.String())
	v.Required("fromWalletId", walletID)
	if err := v.Err(); err != nil {
		return ToHTTPError(err)
	}

	res, err := h.engine.Transfer(c.UserContext(), TransferInput{
		SenderID:        uid,
		SenderHandle:    username,
		SenderWalletID:  walletID,
		RecipientHandle: req.RecipientUsername,
		Amount:          amount,
	})
	if err != nil {
		return ToHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"fromWallet":  toWalletResponse(res.FromWallet),
		"toWallet":    toWalletResponse(res.ToWallet),
		"transaction": toTransactionResponse(res.Transaction),
	})
}

// ToHTTPError maps ledger and validation errors onto fiber errors.
func ToHTTPError(err error) error {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return fiber.NewError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, "amount must be greater than zero")
	case errors.Is(err, ErrSelfTransfer):
		return fiber.NewError(http.StatusBadRequest, "cannot transfer to yourself")
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient funds")
	case errors.Is(err, ErrConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
