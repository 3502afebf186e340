package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/ledger/c32"
	"github.com/dmitrijs2005/poapgate/internal/server/auth"
	"github.com/dmitrijs2005/poapgate/internal/server/config"
	"github.com/google/uuid"
)

// Challenge is what a wallet must sign to log in.
type Challenge struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthService implements wallet login: a one-time challenge per address,
// verified against a Stacks signed-message signature, exchanged for a JWT.
type AuthService struct {
	nonces        auth.NonceStore
	jwtSecret     []byte
	tokenValidity time.Duration
	challengeTTL  time.Duration
}

func NewAuthService(nonces auth.NonceStore, cfg *config.Config) *AuthService {
	return &AuthService{
		nonces:        nonces,
		jwtSecret:     []byte(cfg.SecretKey),
		tokenValidity: cfg.TokenValidity,
		challengeTTL:  cfg.ChallengeTTL,
	}
}

func (s *AuthService) Challenge(ctx context.Context, address string) (*Challenge, error) {
	if _, _, err := c32.ParseAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	nonce := uuid.NewString()
	if err := s.nonces.Put(ctx, address, nonce, s.challengeTTL); err != nil {
		return nil, err
	}
	return &Challenge{
		Nonce:     nonce,
		Message:   auth.ChallengeMessage(nonce),
		ExpiresAt: time.Now().Add(s.challengeTTL),
	}, nil
}

// Verify consumes the outstanding challenge for address and, if signature
// is valid for it, returns a bearer token.
func (s *AuthService) Verify(ctx context.Context, address, signature string) (string, error) {
	nonce, err := s.nonces.Take(ctx, address)
	if err != nil {
		return "", err
	}
	if err := auth.VerifyMessage(address, auth.ChallengeMessage(nonce), signature); err != nil {
		return "", err
	}
	token, err := auth.GenerateToken(address, s.jwtSecret, s.tokenValidity)
	if err != nil {
		return "", errors.Join(common.ErrorInternal, err)
	}
	return token, nil
}

// Authenticate returns the address a bearer token was issued to.
func (s *AuthService) Authenticate(token string) (string, error) {
	return auth.AddressFromToken(token, s.jwtSecret)
}
