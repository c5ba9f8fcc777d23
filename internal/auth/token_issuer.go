package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 12 * time.Hour
	bearerPrefix    = "Bearer "
	tokenQueryKey   = "token"
)

var (
	ErrMissingSigningSecret = errors.New("auth: signing secret required")
	ErrMissingIssuer        = errors.New("auth: issuer required")
	ErrMissingToken         = errors.New("auth: token required")
	ErrInvalidToken         = errors.New("auth: invalid token")
	ErrExpiredToken         = errors.New("auth: token expired")
	ErrMissingSubject       = errors.New("auth: subject required")
)

// TokenIssuerConfig configures connection token issuance and validation.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer signs and validates connection tokens with a shared secret.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	ttl           time.Duration
	clock         func() time.Time
}

func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// Issue signs claims and returns the token with its lifetime in seconds.
// Issuer, issued-at and expiry are always set by the issuer.
func (i *TokenIssuer) Issue(_ context.Context, claims ConnectionClaims) (string, int64, error) {
	if strings.TrimSpace(claims.Subject) == "" && !claims.System {
		return "", 0, ErrMissingSubject
	}
	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl)
	claims.Issuer = i.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken parses tokenString and returns its claims.
func (i *TokenIssuer) ValidateToken(tokenString string) (ConnectionClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return ConnectionClaims{}, ErrMissingToken
	}

	claims := &ConnectionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, t.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithTimeFunc(i.clock),
		jwt.WithIssuer(i.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ConnectionClaims{}, ErrExpiredToken
		}
		return ConnectionClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return ConnectionClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" && !claims.System {
		return ConnectionClaims{}, ErrMissingSubject
	}
	return *claims, nil
}

// ValidateRequest reads the bearer token from the Authorization header, or
// from the token query parameter for websocket upgrades that cannot set
// headers.
func (i *TokenIssuer) ValidateRequest(r *http.Request) (ConnectionClaims, error) {
	if r == nil {
		return ConnectionClaims{}, ErrMissingToken
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, bearerPrefix) {
		return i.ValidateToken(strings.TrimPrefix(header, bearerPrefix))
	}
	return i.ValidateToken(r.URL.Query().Get(tokenQueryKey))
}
