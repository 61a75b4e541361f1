package comments

import (
	"cmp"
	"slices"
	"time"
)

type AuthorKind string

const (
	AuthorRegistered AuthorKind = "registered"
	AuthorGuest      AuthorKind = "guest"
)

// Comment is one append-only entry of a document's feed. PostedAt is set by
// the store when the comment is written.
type Comment struct {
	ID          string     `json:"id" bson:"_id"`
	DocumentID  string     `json:"documentId" bson:"documentId"`
	Text        string     `json:"text" bson:"text"`
	AuthorLabel string     `json:"authorLabel" bson:"authorLabel"`
	AuthorKind  AuthorKind `json:"authorKind" bson:"authorKind"`
	AuthorID    string     `json:"authorId,omitempty" bson:"authorId,omitempty"`
	PostedAt    time.Time  `json:"postedAt" bson:"postedAt"`
}

// SortFeed orders newest first; equal timestamps fall back to id so the
// order is stable between deliveries.
func SortFeed(feed []Comment) {
	slices.SortFunc(feed, func(a, b Comment) int {
		if c := b.PostedAt.Compare(a.PostedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
