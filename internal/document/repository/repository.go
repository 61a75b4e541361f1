package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pdfshare/pdfshare/backend/go-services/internal/document"
)

var (
	ErrNotFound = document.ErrNotFound

	// ErrDuplicateToken is returned when a token is already indexed (for any document).
	ErrDuplicateToken = errors.New("share token already issued")
)

// TokenEntry is one row of the token -> document index.
type TokenEntry struct {
	Token      string    `bson:"_id" json:"token"`
	DocumentID string    `bson:"documentId" json:"documentId"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}

// Repository persists documents, their share token map, and the token index
// used to find a document by token without scanning.
type Repository interface {
	Create(ctx context.Context, d *document.Document) (string, error)
	Get(ctx context.Context, id string) (*document.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*document.Document, error)

	// AddShareToken indexes token and merges it into the document's token map.
	// Returns ErrNotFound when the document is missing and ErrDuplicateToken
	// when the token is already in use.
	AddShareToken(ctx context.Context, documentID, token string, grant document.ShareGrant) error
	// FindByToken returns the document holding token or document.ErrTokenNotFound.
	FindByToken(ctx context.Context, token string) (*document.Document, error)
	// RemoveShareTokens drops tokens from both the document map and the index.
	RemoveShareTokens(ctx context.Context, documentID string, tokens []string) error
	// TokensCreatedBefore lists index entries issued strictly before cutoff.
	TokensCreatedBefore(ctx context.Context, cutoff time.Time) ([]TokenEntry, error)
}
