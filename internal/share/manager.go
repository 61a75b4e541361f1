// Package share issues and resolves time-limited share links.
//
// A share token is an opaque random string stored in the document's token
// map together with its creation time. It resolves for DefaultTTL after
// creation and is never revoked early; past that it reports ErrTokenExpired
// until the sweeper eventually removes it, after which it reports not found.
package share

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document/repository"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/logger"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/metrics"
)

const (
	DefaultTTL              = 24 * time.Hour
	DefaultExpiredRetention = 7 * 24 * time.Hour

	tokenBytes    = 32
	maxIssueTries = 3
)

// Link is what the owner hands out.
type Link struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Window describes the remaining validity of a resolved token.
type Window struct {
	CreatedAt time.Time     `json:"createdAt"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Remaining time.Duration `json:"remaining"`
}

type Options struct {
	// Origin is prepended to "/shared/<token>" when building links.
	Origin string
	TTL    time.Duration
	// ExpiredRetention is how long an expired token is kept (and keeps
	// reporting "expired") before it is pruned.
	ExpiredRetention time.Duration
	// CacheSize bounds the token -> document id cache. Zero disables it.
	CacheSize int
	Clock     clock.Clock
}

type Manager struct {
	repo      repository.Repository
	origin    string
	ttl       time.Duration
	retention time.Duration
	clock     clock.Clock
	cache     *lru.Cache[string, string]
}

func NewManager(repo repository.Repository, opts Options) (*Manager, error) {
	m := &Manager{
		repo:      repo,
		origin:    strings.TrimRight(opts.Origin, "/"),
		ttl:       opts.TTL,
		retention: opts.ExpiredRetention,
		clock:     opts.Clock,
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.retention <= 0 {
		m.retention = DefaultExpiredRetention
	}
	if m.clock == nil {
		m.clock = clock.New()
	}
	if opts.CacheSize > 0 {
		c, err := lru.New[string, string](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("token cache: %w", err)
		}
		m.cache = c
	}
	return m, nil
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// LinkURL formats the public link for token.
func (m *Manager) LinkURL(token string) string {
	return m.origin + "/shared/" + token
}

// Generate issues a new token for documentID. Only the owner may share;
// earlier tokens stay live until they expire.
func (m *Manager) Generate(ctx context.Context, documentID, requesterID string) (Link, error) {
	doc, err := m.repo.Get(ctx, documentID)
	if err != nil {
		return Link{}, err
	}
	if !doc.IsOwner(requesterID) {
		return Link{}, document.ErrNotOwner
	}

	now := m.clock.Now().UTC()
	grant := document.ShareGrant{CreatedAt: now}
	var token string
	for attempt := 1; ; attempt++ {
		token, err = newToken()
		if err != nil {
			return Link{}, fmt.Errorf("generate share token: %w", err)
		}
		err = m.repo.AddShareToken(ctx, documentID, token, grant)
		if !errors.Is(err, repository.ErrDuplicateToken) || attempt == maxIssueTries {
			break
		}
	}
	if err != nil {
		return Link{}, err
	}
	metrics.ShareLinksGenerated.Inc()
	if m.cache != nil {
		m.cache.Add(token, documentID)
	}

	m.pruneStale(ctx, doc, now)

	return Link{
		Token:     token,
		URL:       m.LinkURL(token),
		CreatedAt: now,
		ExpiresAt: grant.ExpiresAt(m.ttl),
	}, nil
}

// Resolve returns the document the token grants access to and the remaining
// validity window. Unknown tokens yield document.ErrTokenNotFound, tokens older
// than the TTL yield document.ErrTokenExpired.
func (m *Manager) Resolve(ctx context.Context, token string) (*document.Document, Window, error) {
	doc, grant, err := m.lookup(ctx, token)
	if err != nil {
		m.observe(err)
		return nil, Window{}, err
	}
	now := m.clock.Now()
	if grant.Expired(now, m.ttl) {
		metrics.ShareResolutions.WithLabelValues("expired").Inc()
		return nil, Window{}, document.ErrTokenExpired
	}
	metrics.ShareResolutions.WithLabelValues("valid").Inc()
	exp := grant.ExpiresAt(m.ttl)
	return doc, Window{CreatedAt: grant.CreatedAt, ExpiresAt: exp, Remaining: exp.Sub(now)}, nil
}

// Lookup finds the document holding token without checking expiry. It serves
// authenticated callers who follow a link; they don't depend on the window.
func (m *Manager) Lookup(ctx context.Context, token string) (*document.Document, error) {
	doc, _, err := m.lookup(ctx, token)
	return doc, err
}

func (m *Manager) lookup(ctx context.Context, token string) (*document.Document, document.ShareGrant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, document.ShareGrant{}, document.ErrTokenNotFound
	}

	var doc *document.Document
	var err error
	if id, ok := m.cacheGet(token); ok {
		doc, err = m.repo.Get(ctx, id)
		if errors.Is(err, document.ErrNotFound) {
			err = document.ErrTokenNotFound
		}
	} else {
		doc, err = m.repo.FindByToken(ctx, token)
	}
	if err != nil {
		return nil, document.ShareGrant{}, err
	}

	grant, ok := doc.ShareTokens[token]
	if !ok {
		m.cacheRemove(token)
		return nil, document.ShareGrant{}, document.ErrTokenNotFound
	}
	if m.cache != nil {
		m.cache.Add(token, doc.ID)
	}
	return doc, grant, nil
}

// pruneStale drops tokens of doc that expired more than the retention ago.
// Best effort: failures are logged and left for the sweeper.
func (m *Manager) pruneStale(ctx context.Context, doc *document.Document, now time.Time) {
	var stale []string
	for t, g := range doc.ShareTokens {
		if g.Expired(now, m.ttl+m.retention) {
			stale = append(stale, t)
		}
	}
	if len(stale) == 0 {
		return
	}
	if err := m.repo.RemoveShareTokens(ctx, doc.ID, stale); err != nil {
		logger.Warnf("prune stale share tokens for %s: %v", doc.ID, err)
		return
	}
	for _, t := range stale {
		m.cacheRemove(t)
	}
	metrics.ShareTokensSwept.Add(float64(len(stale)))
}

func (m *Manager) observe(err error) {
	switch {
	case errors.Is(err, document.ErrNotFound):
		metrics.ShareResolutions.WithLabelValues("not_found").Inc()
	default:
		metrics.ShareResolutions.WithLabelValues("error").Inc()
	}
}

func (m *Manager) cacheGet(token string) (string, bool) {
	if m.cache == nil {
		return "", false
	}
	return m.cache.Get(token)
}

func (m *Manager) cacheRemove(token string) {
	if m.cache != nil {
		m.cache.Remove(token)
	}
}

// newToken returns 256 random bits, base64url without padding. The alphabet
// has no '.' or '$', so the token is safe as a document field name.
func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
