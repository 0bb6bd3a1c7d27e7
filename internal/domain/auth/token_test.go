package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens([]byte("secret"), "storefront")

	raw, err := tokens.Issue("user-1", time.Hour)
	require.NoError(t, err)

	sub, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestTokens_Rejects(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	good := NewTokens([]byte("secret"), "storefront")
	good.now = func() time.Time { return now }

	expired := NewTokens([]byte("secret"), "storefront")
	expired.now = func() time.Time { return now.Add(-2 * time.Hour) }

	sign := func(method jwt.SigningMethod, key any, claims jwt.Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name string
		raw  func() string
	}{
		{name: "garbage", raw: func() string { return "not-a-jwt" }},
		{name: "wrong secret", raw: func() string {
			other := NewTokens([]byte("other"), "storefront")
			other.now = good.now
			s, _ := other.Issue("u", time.Hour)
			return s
		}},
		{name: "expired", raw: func() string { s, _ := expired.Issue("u", time.Hour); return s }},
		{name: "wrong issuer", raw: func() string {
			return sign(jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{
				Subject: "u", Issuer: "elsewhere", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			})
		}},
		{name: "no expiry", raw: func() string {
			return sign(jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{Subject: "u", Issuer: "storefront"})
		}},
		{name: "no subject", raw: func() string {
			return sign(jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{
				Issuer: "storefront", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			})
		}},
		{name: "none alg", raw: func() string {
			return sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.RegisteredClaims{
				Subject: "u", Issuer: "storefront", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := good.Verify(tt.raw())
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestHashKey(t *testing.T) {
	a := HashKey([]byte("pepper"), "key")
	b := HashKey([]byte("pepper"), "key")
	c := HashKey([]byte("other"), "key")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)

	k1, err := GenerateKey()
	require.NoError(t, err)
	k2, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, k1, 64)
	assert.NotEqual(t, k1, k2)
}
