package identity

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/auth"
	"github.com/congo-pay/walletledger/internal/ledger"
)

// TokenIssuer mints bearer tokens for freshly provisioned accounts.
type TokenIssuer interface {
	Issue(userID, username, walletID string) (auth.TokenPair, error)
}

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
	tokens  TokenIssuer
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service, tokens TokenIssuer) *Handler {
	return &Handler{service: service, tokens: tokens}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

type openWalletRequest struct {
	Currency string `json:"currency"`
}

type identityResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type walletResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Currency  string    `json:"currency"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}

func toIdentityResponse(id ledger.Identity) identityResponse {
	return identityResponse{ID: id.ID, Username: id.Username, Email: id.Email, Name: id.Name, CreatedAt: id.CreatedAt}
}

func toWalletResponse(w ledger.Wallet) walletResponse {
	return walletResponse{ID: w.ID, UserID: w.OwnerID, Currency: w.Currency, Balance: w.Balance.String(), CreatedAt: w.CreatedAt}
}

// Register provisions an identity with its primary wallet and returns an
// access token bound to that wallet.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	account, err := h.service.Register(c.UserContext(), Registration{
		Username: req.Username,
		Email:    req.Email,
		Name:     req.Name,
		Currency: req.Currency,
	})
	if err != nil {
		return ledger.ToHTTPError(err)
	}

	resp := fiber.Map{
		"user":   toIdentityResponse(account.Identity),
		"wallet": toWalletResponse(account.Wallet),
	}
	if h.tokens != nil {
		pair, err := h.tokens.Issue(account.Identity.ID, account.Identity.Username, account.Wallet.ID)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		resp["token"] = pair
	}
	return c.Status(http.StatusCreated).JSON(resp)
}

// Me returns the caller's profile and wallets.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	profile, err := h.service.Profile(c.UserContext(), uid)
	if err != nil {
		return ledger.ToHTTPError(err)
	}
	wallets := make([]walletResponse, 0, len(profile.Wallets))
	for _, w := range profile.Wallets {
		wallets = append(wallets, toWalletResponse(w))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"user":    toIdentityResponse(profile.Identity),
		"wallets": wallets,
	})
}

// OpenWallet adds a wallet for the caller.
func (h *Handler) OpenWallet(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req openWalletRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	wallet, err := h.service.AddWallet(c.UserContext(), uid, req.Currency)
	if err != nil {
		return ledger.ToHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(toWalletResponse(wallet))
}
