package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/config"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/sessions"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/tokens"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/users"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/logger"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/middleware"
)

// LoginRequest used for password-mode login (dev/testing) and the
// authorization-code exchange.
type LoginRequest struct {
	Mode        string `json:"mode" binding:"required"` // "password" | "auth_code"
	Username    string `json:"username"`
	Password    string `json:"password"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg       *config.Config
	usersSvc  *users.Service
	blacklist *sessions.Blacklist
	idTokens  middleware.Verifier
	http      *http.Client
	clock     clock.Clock
}

// NewAuthHandler wires login, logout and /api/v1/me. idTokens verifies the
// id_token returned by Keycloak and may be nil when login is not offered.
func NewAuthHandler(cfg *config.Config, u *users.Service, bl *sessions.Blacklist, idTokens middleware.Verifier) *AuthHandler {
	return &AuthHandler{cfg: cfg, usersSvc: u, blacklist: bl, idTokens: idTokens, http: &http.Client{Timeout: 10 * time.Second}, clock: clock.New()}
}

// Register routes under /auth and /api/v1. auth requires an identity.
func (h *AuthHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/logout", auth, h.Logout)
	rg.GET("/api/v1/me", auth, h.Me)
}

// Login exchanges credentials or an authorization code at Keycloak, records
// the user and returns a service access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	form := url.Values{}
	switch req.Mode {
	case "password":
		form.Set("grant_type", "password")
		form.Set("username", req.Username)
		form.Set("password", req.Password)
		form.Set("scope", "openid")
	case "auth_code":
		if req.Code == "" || req.RedirectURI == "" {
			respond(c, http.StatusBadRequest, "validation_failed", "code and redirect_uri required for auth_code mode")
			return
		}
		form.Set("grant_type", "authorization_code")
		form.Set("code", req.Code)
		form.Set("redirect_uri", req.RedirectURI)
	default:
		respond(c, http.StatusBadRequest, "validation_failed", "unsupported mode")
		return
	}
	issuer := h.cfg.Keycloak.Issuer()
	if issuer == "" || h.idTokens == nil {
		respond(c, http.StatusServiceUnavailable, "login_unavailable", "Keycloak not configured")
		return
	}
	if h.cfg.JWT.Secret == "" {
		respond(c, http.StatusServiceUnavailable, "login_unavailable", "JWT_SECRET not configured")
		return
	}

	tr, err := h.requestToken(c.Request.Context(), issuer+"/protocol/openid-connect/token", form)
	if err != nil {
		logger.Warnf("token exchange (%s) failed: %v", req.Mode, err)
		respond(c, http.StatusUnauthorized, "unauthorized", "authentication failed")
		return
	}
	idt, err := h.idTokens.Verify(c.Request.Context(), tr.IDToken)
	if err != nil {
		respond(c, http.StatusUnauthorized, "unauthorized", "invalid id token")
		return
	}
	var claims map[string]interface{}
	if err := idt.Claims(&claims); err != nil {
		respond(c, http.StatusUnauthorized, "unauthorized", "invalid id token")
		return
	}
	u, err := h.usersSvc.UpsertFromClaims(c.Request.Context(), claims)
	if err != nil {
		writeError(c, err)
		return
	}
	if u == nil {
		respond(c, http.StatusUnauthorized, "unauthorized", "id token has no subject")
		return
	}
	ttl := h.cfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	access, err := tokens.GenerateAccessToken(h.cfg, u, ttl)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": access, "user": u, "expiresIn": int(ttl.Seconds())})
}

// Logout revokes the presented access token until it would have expired.
func (h *AuthHandler) Logout(c *gin.Context) {
	if !h.blacklist.Enabled() {
		logger.Debugf("logout without Redis: token stays valid until it expires")
	}
	exp, ok := expiry(middleware.Claims(c))
	if ok {
		if err := h.blacklist.Revoke(c.Request.Context(), middleware.RawToken(c), exp.Sub(h.clock.Now())); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the stored user for the caller, creating it on first sight.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.Claims(c)
	if h.usersSvc != nil {
		u, err := h.usersSvc.UpsertFromClaims(c.Request.Context(), claims)
		if err != nil {
			writeError(c, err)
			return
		}
		if u != nil {
			c.JSON(http.StatusOK, gin.H{"user": u, "displayName": u.DisplayName()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"claims": claims})
}

// expiry reads the numeric "exp" claim.
func expiry(claims map[string]interface{}) (time.Time, bool) {
	switch v := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0), true
		}
	}
	return time.Time{}, false
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
}

// requestToken posts to the token endpoint with client_secret_post and, when
// Keycloak answers 401, retries once with HTTP Basic client authentication.
func (h *AuthHandler) requestToken(ctx context.Context, tokenURL string, form url.Values) (*tokenResponse, error) {
	form.Set("client_id", h.cfg.Keycloak.ClientID)
	if h.cfg.Keycloak.ClientSecret != "" {
		form.Set("client_secret", h.cfg.Keycloak.ClientSecret)
	}
	resp, err := h.postForm(ctx, tokenURL, form, false)
	if err == nil && resp.StatusCode == http.StatusUnauthorized && h.cfg.Keycloak.ClientSecret != "" {
		_ = resp.Body.Close()
		logger.Warnf("token endpoint rejected client_secret_post; retrying with HTTP Basic")
		form.Del("client_secret")
		resp, err = h.postForm(ctx, tokenURL, form, true)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, err
	}
	if tr.IDToken == "" {
		return nil, fmt.Errorf("token endpoint returned no id_token")
	}
	return &tr, nil
}

func (h *AuthHandler) postForm(ctx context.Context, tokenURL string, form url.Values, basic bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basic {
		req.SetBasicAuth(h.cfg.Keycloak.ClientID, h.cfg.Keycloak.ClientSecret)
	}
	return h.http.Do(req)
}
