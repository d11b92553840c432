package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"marketplace-service/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_IssueAndParse(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)

	tok, err := tokens.Issue(42, domain.RoleSeller)
	require.NoError(t, err)

	claims, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, domain.RoleSeller, claims.Role)
}

func TestTokens_ParseRejects(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	other := NewTokens("other", time.Hour)
	expired := NewTokens("secret", time.Hour)

	foreign, _ := other.Issue(1, domain.RoleBuyer)

	stale := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: 1,
		Role:   domain.RoleBuyer,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	staleStr, _ := stale.SignedString(expired.secret)

	noUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Role: domain.RoleBuyer}).SignedString(tokens.secret)

	for name, tok := range map[string]string{
		"empty":        "",
		"garbage":      "abc.def.ghi",
		"wrong secret": foreign,
		"expired":      staleStr,
		"missing user": noUser,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Parse(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=q", nil)
	assert.Equal(t, "q", FromRequest(r, true))
	assert.Equal(t, "", FromRequest(r, false))

	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", FromRequest(r, true))
}
