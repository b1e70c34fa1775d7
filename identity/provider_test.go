package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetrent/admin-gateway/config"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret: "test-secret-key",
		Issuer:    "admin-gateway",
		TokenTTL:  time.Hour,
	}
}

func TestJWTProvider_RoundTrip(t *testing.T) {
	provider := NewJWTProvider(testAuthConfig())
	principal := &Principal{
		ID:     uuid.New(),
		Roles:  []string{"admin", "account-owner"},
		Tenant: "acme",
	}

	token, err := provider.Issue(principal)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	resolved, err := provider.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, principal.ID, resolved.ID)
	assert.Equal(t, principal.Roles, resolved.Roles)
	assert.Equal(t, principal.Tenant, resolved.Tenant)
}

func TestJWTProvider_WrongSecret(t *testing.T) {
	provider := NewJWTProvider(testAuthConfig())
	other := NewJWTProvider(config.AuthConfig{
		JWTSecret: "a-different-secret",
		Issuer:    "admin-gateway",
		TokenTTL:  time.Hour,
	})

	token, err := other.Issue(&Principal{ID: uuid.New()})
	require.NoError(t, err)

	_, err = provider.Resolve(context.Background(), token)
	assert.Error(t, err)
}

func TestJWTProvider_WrongIssuer(t *testing.T) {
	provider := NewJWTProvider(testAuthConfig())
	other := NewJWTProvider(config.AuthConfig{
		JWTSecret: "test-secret-key",
		Issuer:    "someone-else",
		TokenTTL:  time.Hour,
	})

	token, err := other.Issue(&Principal{ID: uuid.New()})
	require.NoError(t, err)

	_, err = provider.Resolve(context.Background(), token)
	assert.Error(t, err)
}

func TestJWTProvider_ExpiredToken(t *testing.T) {
	cfg := testAuthConfig()
	cfg.TokenTTL = -time.Minute
	provider := NewJWTProvider(cfg)

	token, err := provider.Issue(&Principal{ID: uuid.New()})
	require.NoError(t, err)

	_, err = NewJWTProvider(testAuthConfig()).Resolve(context.Background(), token)
	assert.Error(t, err)
}

func TestJWTProvider_NonUUIDSubject(t *testing.T) {
	cfg := testAuthConfig()
	provider := NewJWTProvider(cfg)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	_, err = provider.Resolve(context.Background(), token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid subject")
}

func TestPrincipal_HasAnyRole(t *testing.T) {
	p := &Principal{Roles: []string{"viewer"}}

	assert.True(t, p.HasAnyRole(nil), "empty rule role list admits everyone")
	assert.True(t, p.HasAnyRole([]string{"admin", "viewer"}))
	assert.False(t, p.HasAnyRole([]string{"admin"}))
}
