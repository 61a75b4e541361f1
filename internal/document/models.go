package document

import (
	"strings"
	"time"
)

// Document is an uploaded PDF and the share tokens issued for it.
// The binary itself lives in the blob store under StoragePath.
type Document struct {
	ID               string    `json:"id" bson:"_id"`
	OwnerID          string    `json:"ownerId" bson:"ownerId"`
	OwnerName        string    `json:"ownerName,omitempty" bson:"ownerName,omitempty"`
	OwnerEmail       string    `json:"ownerEmail,omitempty" bson:"ownerEmail,omitempty"`
	Title            string    `json:"title" bson:"title"`
	FileName         string    `json:"fileName" bson:"fileName"`
	OriginalFileName string    `json:"originalFileName" bson:"originalFileName"`
	StoragePath      string    `json:"storagePath" bson:"storagePath"`
	ContentType      string    `json:"contentType,omitempty" bson:"contentType,omitempty"`
	Size             int64     `json:"size" bson:"size"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt" bson:"updatedAt"`

	// ShareTokens maps token -> grant. Entries are only added by link generation
	// and only removed by the expired-token sweeper.
	ShareTokens map[string]ShareGrant `json:"-" bson:"shareTokens,omitempty"`
}

// ShareGrant records when a share token was issued.
type ShareGrant struct {
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// ExpiresAt is the last instant at which the grant is still valid.
func (g ShareGrant) ExpiresAt(ttl time.Duration) time.Time {
	return g.CreatedAt.Add(ttl)
}

// Expired reports whether more than ttl has elapsed since the grant was issued.
func (g ShareGrant) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(g.CreatedAt) > ttl
}

func (d *Document) IsOwner(userID string) bool {
	return userID != "" && d.OwnerID == userID
}

// Matches is the dashboard search: case-insensitive substring of title or original file name.
func (d *Document) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(d.Title), q) ||
		strings.Contains(strings.ToLower(d.OriginalFileName), q)
}

// Clone returns a deep copy, so callers can't mutate repository state.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := *d
	if d.ShareTokens != nil {
		cp.ShareTokens = make(map[string]ShareGrant, len(d.ShareTokens))
		for k, v := range d.ShareTokens {
			cp.ShareTokens[k] = v
		}
	}
	return &cp
}
