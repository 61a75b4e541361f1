package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/config"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/models"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/oidc"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/sessions"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/tokens"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/users"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func idToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("keycloak-key"))
	require.NoError(t, err)
	return s
}

// keycloakStub answers the token endpoint. With basicOnly it rejects
// client_secret_post with 401, like a client configured for client_secret_basic.
func keycloakStub(t *testing.T, idt string, basicOnly bool, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if !strings.HasSuffix(r.URL.Path, "/realms/pdfshare/protocol/openid-connect/token") {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		if basicOnly {
			if _, _, ok := r.BasicAuth(); !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		if r.PostForm.Get("grant_type") == "password" && r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "kc-access", "id_token": idt})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type authEnv struct {
	router *gin.Engine
	mr     *miniredis.Miniredis
	users  *users.Service
	cfg    *config.Config
}

func newAuthEnv(t *testing.T, keycloakURL string) *authEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		Keycloak: config.KeycloakConfig{URL: keycloakURL, Realm: "pdfshare", ClientID: "pdfshare-web", ClientSecret: "s3cr3t"},
		JWT:      config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15 * time.Minute},
	}
	bl := sessions.NewBlacklist(rdb)
	svc := users.NewService(users.NewMemoryUserRepository())
	ver, err := tokens.NewHS256Verifier(testSecret)
	require.NoError(t, err)

	g := gin.New()
	NewAuthHandler(cfg, svc, bl, oidc.NewInsecureVerifier()).Register(g.Group("/"), middleware.AuthMiddleware(ver, bl))
	return &authEnv{router: g, mr: mr, users: svc, cfg: cfg}
}

func (e *authEnv) do(method, target, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type loginResponse struct {
	AccessToken string       `json:"accessToken"`
	User        *models.User `json:"user"`
	ExpiresIn   int          `json:"expiresIn"`
}

func TestLoginPasswordMode(t *testing.T) {
	var calls int32
	kc := keycloakStub(t, idToken(t, jwt.MapClaims{"sub": "kc-1", "name": "Olivia", "email": "olivia@example.com"}), false, &calls)
	env := newAuthEnv(t, kc.URL)

	w := env.do(http.MethodPost, "/auth/login", "", `{"mode":"password","username":"olivia","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, 900, resp.ExpiresIn)
	require.Equal(t, "kc-1", resp.User.Sub)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// the issued token is accepted by the service's own verifier
	ver, err := tokens.NewHS256Verifier(testSecret)
	require.NoError(t, err)
	tok, err := ver.Verify(t.Context(), resp.AccessToken)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "kc-1", claims["sub"])

	stored, err := env.users.GetBySub(t.Context(), "kc-1")
	require.NoError(t, err)
	require.Equal(t, "Olivia", stored.Name)
}

func TestLoginFallsBackToBasicClientAuth(t *testing.T) {
	var calls int32
	kc := keycloakStub(t, idToken(t, jwt.MapClaims{"sub": "kc-2", "preferred_username": "max"}), true, &calls)
	env := newAuthEnv(t, kc.URL)

	w := env.do(http.MethodPost, "/auth/login", "", `{"mode":"password","username":"max","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestLoginRejections(t *testing.T) {
	var calls int32
	kc := keycloakStub(t, idToken(t, jwt.MapClaims{"sub": "kc-1"}), false, &calls)
	env := newAuthEnv(t, kc.URL)

	w := env.do(http.MethodPost, "/auth/login", "", `{"mode":"password","username":"olivia","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/auth/login", "", `{"mode":"auth_code"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/auth/login", "", `{"mode":"magic"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/auth/login", "", `not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginWithoutKeycloakIsUnavailable(t *testing.T) {
	env := newAuthEnv(t, "")
	w := env.do(http.MethodPost, "/auth/login", "", `{"mode":"password","username":"a","password":"b"}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newAuthEnv(t, "")
	tok, err := tokens.GenerateAccessToken(env.cfg, &models.User{Sub: "u1", Name: "Olivia"}, time.Hour)
	require.NoError(t, err)

	w := env.do(http.MethodGet, "/api/v1/me", tok, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me struct {
		User        *models.User `json:"user"`
		DisplayName string       `json:"displayName"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	require.Equal(t, "u1", me.User.Sub)
	require.Equal(t, "Olivia", me.DisplayName)

	w = env.do(http.MethodPost, "/auth/logout", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.mr.Exists("blacklist:access:"+tok))
	require.Greater(t, env.mr.TTL("blacklist:access:"+tok), 59*time.Minute)

	w = env.do(http.MethodGet, "/api/v1/me", tok, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutRequiresToken(t *testing.T) {
	env := newAuthEnv(t, "")
	w := env.do(http.MethodPost, "/auth/logout", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
