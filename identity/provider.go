package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fleetrent/admin-gateway/config"
)

// Provider resolves a raw transport credential into a Principal.
type Provider interface {
	Resolve(ctx context.Context, credential string) (*Principal, error)
}

// Claims are the JWT claims carried by gateway tokens.
type Claims struct {
	Roles  []string `json:"roles"`
	Tenant string   `json:"tenant"`
	jwt.RegisteredClaims
}

// JWTProvider validates HS256 bearer tokens minted for the console.
type JWTProvider struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
}

// NewJWTProvider creates a JWTProvider from the auth configuration.
func NewJWTProvider(cfg config.AuthConfig) *JWTProvider {
	return &JWTProvider{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		tokenTTL: cfg.TokenTTL,
	}
}

// Resolve parses and verifies the token and builds the Principal.
func (p *JWTProvider) Resolve(ctx context.Context, credential string) (*Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithIssuer(p.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject in token: %w", err)
	}

	return &Principal{
		ID:     id,
		Roles:  claims.Roles,
		Tenant: claims.Tenant,
	}, nil
}

// Issue mints a signed token for the given principal. Used by the session
// bootstrap tooling and tests.
func (p *JWTProvider) Issue(principal *Principal) (string, error) {
	now := time.Now()
	claims := &Claims{
		Roles:  principal.Roles,
		Tenant: principal.Tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID.String(),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
