package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/reported-users/apiserver/config"
	"github.com/reported-users/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJWTConfig = config.JWTConfig{
	Secret:   "test-secret",
	Issuer:   "reported-users-api",
	Audience: "reported-users-clients",
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(testJWTConfig)
	require.NoError(t, err)
	return svc
}

func TestNewService_RequiresSecret(t *testing.T) {
	_, err := NewService(config.JWTConfig{Secret: "  ", Issuer: "iss", Audience: "aud"})
	require.Error(t, err)
}

func TestIssueAndValidate(t *testing.T) {
	svc := newTestService(t)
	user := types.User{ID: "user-1", Email: "jane@example.com", Name: "Jane"}

	tokenString, err := svc.Issue(user)
	require.NoError(t, err)

	claims, err := svc.Validate(tokenString)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, user.Name, claims.Name)
	assert.Equal(t, testJWTConfig.Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID, "token id must be set")

	require.NotNil(t, claims.ExpiresAt)
	ttl := time.Until(claims.ExpiresAt.Time)
	assert.InDelta(t, (3 * time.Hour).Seconds(), ttl.Seconds(), 60)
}

func TestIssue_FreshTokenIDs(t *testing.T) {
	svc := newTestService(t)
	user := types.User{ID: "user-1", Email: "jane@example.com"}

	first, err := svc.Issue(user)
	require.NoError(t, err)
	second, err := svc.Issue(user)
	require.NoError(t, err)

	firstClaims, err := svc.Validate(first)
	require.NoError(t, err)
	secondClaims, err := svc.Validate(second)
	require.NoError(t, err)
	assert.NotEqual(t, firstClaims.ID, secondClaims.ID)
}

func TestValidate_Rejections(t *testing.T) {
	svc := newTestService(t)
	user := types.User{ID: "user-1", Email: "jane@example.com"}

	good, err := svc.Issue(user)
	require.NoError(t, err)

	signWith := func(cfg config.JWTConfig, claims Claims) string {
		t.Helper()
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(cfg.Secret))
		require.NoError(t, err)
		return signed
	}
	baseClaims := func() Claims {
		now := time.Now()
		return Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   user.ID,
				Issuer:    testJWTConfig.Issuer,
				Audience:  jwt.ClaimStrings{testJWTConfig.Audience},
				ID:        "jti",
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"tampered", good + "x"},
		{"wrong secret", signWith(config.JWTConfig{Secret: "other-secret"}, baseClaims())},
		{"expired", signWith(testJWTConfig, func() Claims {
			c := baseClaims()
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			return c
		}())},
		{"missing expiry", signWith(testJWTConfig, func() Claims {
			c := baseClaims()
			c.ExpiresAt = nil
			return c
		}())},
		{"wrong issuer", signWith(testJWTConfig, func() Claims {
			c := baseClaims()
			c.Issuer = "someone-else"
			return c
		}())},
		{"wrong audience", signWith(testJWTConfig, func() Claims {
			c := baseClaims()
			c.Audience = jwt.ClaimStrings{"other-clients"}
			return c
		}())},
		{"empty subject", signWith(testJWTConfig, func() Claims {
			c := baseClaims()
			c.Subject = ""
			return c
		}())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := svc.Validate(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}
