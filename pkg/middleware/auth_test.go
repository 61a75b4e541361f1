package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// fakeToken implements Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier implements Verifier
type fakeVerifier struct{}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	if raw == "goodtoken" || raw == "black-token" {
		return &fakeToken{data: map[string]interface{}{"sub": "user1", "email": "test@example.com"}}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

type fakeRevocations map[string]bool

func (f fakeRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	return f[token], nil
}

func serve(h gin.HandlerFunc, header, target string) *httptest.ResponseRecorder {
	g := gin.New()
	g.GET("/", h, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sub": Subject(c), "raw": RawToken(c)})
	})
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	rw := serve(AuthMiddleware(&fakeVerifier{}, nil), "", "/")
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_InvalidHeader(t *testing.T) {
	for _, h := range []string{"BadHeader", "Basic abc", "Bearer ", "Bearer a b"} {
		rw := serve(AuthMiddleware(&fakeVerifier{}, nil), h, "/")
		require.Equal(t, http.StatusUnauthorized, rw.Code, h)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	rw := serve(AuthMiddleware(&fakeVerifier{}, nil), "Bearer goodtoken", "/")
	require.Equal(t, http.StatusOK, rw.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, "user1", got["sub"])
	require.Equal(t, "goodtoken", got["raw"])
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	rw := serve(AuthMiddleware(&fakeVerifier{}, nil), "", "/?access_token=goodtoken")
	require.Equal(t, http.StatusOK, rw.Code)
}

func TestAuthMiddleware_RejectsBlacklistedToken(t *testing.T) {
	rev := fakeRevocations{"black-token": true}
	rw := serve(AuthMiddleware(&fakeVerifier{}, rev), "Bearer black-token", "/")
	require.Equal(t, http.StatusUnauthorized, rw.Code)
	require.Contains(t, rw.Body.String(), "token revoked")
}

func TestAuthMiddleware_NoVerifier(t *testing.T) {
	rw := serve(AuthMiddleware(nil, nil), "Bearer goodtoken", "/")
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestOptionalAuth(t *testing.T) {
	h := OptionalAuth(&fakeVerifier{}, fakeRevocations{"black-token": true})

	rw := serve(h, "", "/")
	require.Equal(t, http.StatusOK, rw.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Empty(t, got["sub"])

	rw = serve(h, "Bearer goodtoken", "/")
	require.Equal(t, http.StatusOK, rw.Code)
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, "user1", got["sub"])

	require.Equal(t, http.StatusUnauthorized, serve(h, "Bearer bogus", "/").Code)
	require.Equal(t, http.StatusUnauthorized, serve(h, "Bearer black-token", "/").Code)
	require.Equal(t, http.StatusUnauthorized, serve(h, "garbage", "/").Code)
}

type rejectVerifier struct{}

func (rejectVerifier) Verify(context.Context, string) (Token, error) {
	return nil, fmt.Errorf("wrong issuer")
}

func TestVerifiersTryEachInOrder(t *testing.T) {
	chain := Verifiers{rejectVerifier{}, &fakeVerifier{}}
	rw := serve(AuthMiddleware(chain, nil), "Bearer goodtoken", "/")
	require.Equal(t, http.StatusOK, rw.Code)

	_, err := chain.Verify(context.Background(), "nope")
	require.ErrorContains(t, err, "wrong issuer")
	require.ErrorContains(t, err, "invalid token")

	_, err = Verifiers{}.Verify(context.Background(), "goodtoken")
	require.Error(t, err)
}
