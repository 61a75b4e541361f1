package oidc

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestInsecureVerifierReadsClaimsWithoutSignature(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1", "name": "Olivia"})
	raw, err := tok.SignedString([]byte("whatever"))
	require.NoError(t, err)

	v := NewInsecureVerifier()
	got, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, got.Claims(&claims))
	require.Equal(t, "user-1", claims["sub"])
	require.Equal(t, "Olivia", claims["name"])
}

func TestInsecureVerifierRejectsGarbage(t *testing.T) {
	v := NewInsecureVerifier()
	_, err := v.Verify(context.Background(), "not-a-jwt")
	require.Error(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"name": "x"}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), noSub)
	require.Error(t, err)
}
