package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = 24 * time.Hour

// Service issues access tokens for provisioned identities. Credential
// checks happen upstream; this only mints and verifies bearer tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewService builds a token service. A non-positive ttl uses 24h.
func NewService(secret string, ttl time.Duration, issuer string) *Service {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Service{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

type TokenPair struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Issue signs an access token for userID. walletID becomes the default
// sender wallet for transfers.
func (s *Service) Issue(userID, username, walletID string) (TokenPair, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	signed, err := Sign(Claims{
		Username: username,
		WalletID: walletID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}, s.secret)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: signed, TokenType: "Bearer", ExpiresIn: int64(s.ttl.Seconds())}, nil
}

// Verify parses a bearer token issued by this service.
func (s *Service) Verify(token string) (*Claims, error) {
	return Parse(token, s.secret)
}
