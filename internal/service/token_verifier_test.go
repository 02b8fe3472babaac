package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-announcement-api/internal/models"
	appErrors "github.com/noah-isme/sma-announcement-api/pkg/errors"
)

func signTestToken(t *testing.T, secret string, claims *models.JWTClaims, method jwt.SigningMethod) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func testClaims(issuer string, expiresIn time.Duration) *models.JWTClaims {
	now := time.Now()
	return &models.JWTClaims{
		UserID: "teacher-1",
		Role:   models.RoleTeacher,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "teacher-1",
			Audience:  jwt.ClaimStrings{"sma-web"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
}

func TestTokenVerifierAcceptsValidToken(t *testing.T) {
	verifier := NewTokenVerifier(TokenConfig{Secret: "secret", Issuer: "sma-auth", Audience: []string{"sma-web"}})

	claims, err := verifier.ValidateToken(signTestToken(t, "secret", testClaims("sma-auth", time.Hour), jwt.SigningMethodHS256))
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestTokenVerifierRejections(t *testing.T) {
	verifier := NewTokenVerifier(TokenConfig{Secret: "secret", Issuer: "sma-auth"})

	cases := map[string]string{
		"wrong secret":    signTestToken(t, "other", testClaims("sma-auth", time.Hour), jwt.SigningMethodHS256),
		"wrong issuer":    signTestToken(t, "secret", testClaims("someone-else", time.Hour), jwt.SigningMethodHS256),
		"expired":         signTestToken(t, "secret", testClaims("sma-auth", -time.Minute), jwt.SigningMethodHS256),
		"wrong algorithm": signTestToken(t, "secret", testClaims("sma-auth", time.Hour), jwt.SigningMethodHS512),
		"garbage":         "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.ValidateToken(token)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}

func TestTokenVerifierRequiresSubjectClaim(t *testing.T) {
	verifier := NewTokenVerifier(TokenConfig{Secret: "secret"})
	claims := testClaims("", time.Hour)
	claims.UserID = ""

	_, err := verifier.ValidateToken(signTestToken(t, "secret", claims, jwt.SigningMethodHS256))
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
