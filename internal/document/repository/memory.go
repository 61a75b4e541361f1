package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document"
)

// MemoryRepo is an in-memory repository used when no MongoDB is configured
// and in unit tests. Documents are copied on the way in and out.
type MemoryRepo struct {
	mu     sync.RWMutex
	store  map[string]*document.Document
	tokens map[string]TokenEntry
	now    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		store:  make(map[string]*document.Document),
		tokens: make(map[string]TokenEntry),
		now:    time.Now,
	}
}

func (m *MemoryRepo) Create(_ context.Context, doc *document.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = m.now().UTC()
	}
	doc.UpdatedAt = doc.CreatedAt
	m.store[doc.ID] = doc.Clone()
	return doc.ID, nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return d.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) ListByOwner(_ context.Context, ownerID string) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0)
	for _, d := range m.store {
		if d.OwnerID == ownerID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepo) AddShareToken(_ context.Context, documentID, token string, grant document.ShareGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[documentID]
	if !ok {
		return ErrNotFound
	}
	if _, taken := m.tokens[token]; taken {
		return ErrDuplicateToken
	}
	if d.ShareTokens == nil {
		d.ShareTokens = make(map[string]document.ShareGrant)
	}
	d.ShareTokens[token] = grant
	m.tokens[token] = TokenEntry{Token: token, DocumentID: documentID, CreatedAt: grant.CreatedAt}
	return nil
}

func (m *MemoryRepo) FindByToken(_ context.Context, token string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tokens[token]
	if !ok {
		return nil, document.ErrTokenNotFound
	}
	d, ok := m.store[e.DocumentID]
	if !ok {
		return nil, document.ErrTokenNotFound
	}
	return d.Clone(), nil
}

func (m *MemoryRepo) RemoveShareTokens(_ context.Context, documentID string, tokens []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[documentID]
	for _, t := range tokens {
		if e, indexed := m.tokens[t]; indexed && e.DocumentID == documentID {
			delete(m.tokens, t)
		}
		if ok {
			delete(d.ShareTokens, t)
		}
	}
	return nil
}

func (m *MemoryRepo) TokensCreatedBefore(_ context.Context, cutoff time.Time) ([]TokenEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TokenEntry, 0)
	for _, e := range m.tokens {
		if e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}
