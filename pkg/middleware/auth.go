package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/logger"
	"go.uber.org/multierr"
)

const (
	// ClaimsKey holds the verified claims map in the gin context.
	ClaimsKey   = "claims"
	rawTokenKey = "rawToken"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// Verifiers accepts a token when any member does, trying them in order.
type Verifiers []Verifier

func (vs Verifiers) Verify(ctx context.Context, raw string) (Token, error) {
	var errs error
	for _, v := range vs {
		tok, err := v.Verify(ctx, raw)
		if err == nil {
			return tok, nil
		}
		errs = multierr.Append(errs, err)
	}
	if errs == nil {
		return nil, errors.New("no token verifier configured")
	}
	return nil, errs
}

// RevocationChecker reports tokens revoked by logout. May be nil.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using the provided verifier
func AuthMiddleware(ver Verifier, rev RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present, ok := BearerToken(c)
		if !present {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "missing Authorization header"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid Authorization header"})
			return
		}
		if authenticate(c, ver, rev, token) {
			c.Next()
		}
	}
}

// OptionalAuth lets anonymous requests through untouched. A presented token
// must still be valid: a broken or revoked token is rejected rather than
// silently downgraded to guest.
func OptionalAuth(ver Verifier, rev RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present, ok := BearerToken(c)
		if !present {
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid Authorization header"})
			return
		}
		if authenticate(c, ver, rev, token) {
			c.Next()
		}
	}
}

func authenticate(c *gin.Context, ver Verifier, rev RevocationChecker, token string) bool {
	if ver == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication is not configured"})
		return false
	}
	if rev != nil {
		revoked, err := rev.IsRevoked(c.Request.Context(), token)
		if err != nil {
			logger.Errorf("revocation check failed: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "token check failed"})
			return false
		}
		if revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "token revoked"})
			return false
		}
	}

	idToken, err := ver.Verify(c.Request.Context(), token)
	if err != nil {
		logger.Debugf("token rejected: %v", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid token"})
		return false
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "failed to parse claims"})
		return false
	}

	c.Set(ClaimsKey, claims)
	c.Set(rawTokenKey, token)
	return true
}

// BearerToken extracts the token from "Authorization: Bearer <token>", or from
// the access_token query parameter for clients like EventSource that cannot
// set headers. present is false when neither is given.
func BearerToken(c *gin.Context) (token string, present, ok bool) {
	if auth := c.GetHeader("Authorization"); auth != "" {
		scheme, rest, found := strings.Cut(auth, " ")
		rest = strings.TrimSpace(rest)
		if !found || !strings.EqualFold(scheme, "Bearer") || rest == "" || strings.Contains(rest, " ") {
			return "", true, false
		}
		return rest, true, true
	}
	if q := strings.TrimSpace(c.Query("access_token")); q != "" {
		return q, true, true
	}
	return "", false, false
}

// Claims returns the verified claims, or nil for anonymous requests.
func Claims(c *gin.Context) map[string]interface{} {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	cm, _ := v.(map[string]interface{})
	return cm
}

// Subject returns the "sub" claim, or "" for anonymous requests.
func Subject(c *gin.Context) string {
	sub, _ := Claims(c)["sub"].(string)
	return sub
}

// RawToken returns the bearer token that authenticated the request.
func RawToken(c *gin.Context) string {
	return c.GetString(rawTokenKey)
}
