// Package comments holds the per-document comment feed: an append-only store,
// a publish path and long-lived subscriptions that push the full ordered feed
// every time it changes.
package comments

import (
	"context"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/access"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/logger"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/metrics"
)

const anonymousLabel = "Anonymous"

// Authorizer decides whether a viewer may act on a document now.
// Implemented by *access.Gate.
type Authorizer interface {
	Authorize(v access.Viewer, documentID string) error
}

// NameResolver looks up a registered user's display name.
type NameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

type Stream struct {
	store    Store
	notifier Notifier
	auth     Authorizer
	names    NameResolver
	clock    clock.Clock
}

// NewStream wires a feed. names may be nil, in which case registered authors
// fall back to the name carried by the viewer.
func NewStream(store Store, notifier Notifier, auth Authorizer, names NameResolver, clk clock.Clock) *Stream {
	if notifier == nil {
		notifier = NewLocalNotifier()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Stream{store: store, notifier: notifier, auth: auth, names: names, clock: clk}
}

// Publish appends one comment. Validation runs before anything is written.
func (s *Stream) Publish(ctx context.Context, documentID string, v access.Viewer, text string) (Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, document.Invalid("comment text must not be empty")
	}
	guestName := strings.TrimSpace(v.DisplayName)
	if v.IsGuest() && guestName == "" {
		return Comment{}, document.Invalid("guest name is required")
	}
	if err := s.auth.Authorize(v, documentID); err != nil {
		return Comment{}, err
	}

	c := Comment{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Text:       text,
	}
	if v.IsGuest() {
		c.AuthorKind = AuthorGuest
		c.AuthorLabel = guestName
	} else {
		c.AuthorKind = AuthorRegistered
		c.AuthorID = v.UserID
		c.AuthorLabel = s.authorLabel(ctx, v)
	}

	saved, err := s.store.Append(ctx, c)
	if err != nil {
		return Comment{}, err
	}
	if err := s.notifier.Notify(ctx, documentID); err != nil {
		logger.L().Warn("comment notify failed",
			logger.String("document_id", documentID),
			logger.String("comment_id", saved.ID),
			logger.Err(err))
	}
	metrics.CommentsPublished.WithLabelValues(string(saved.AuthorKind)).Inc()
	return saved, nil
}

func (s *Stream) authorLabel(ctx context.Context, v access.Viewer) string {
	if s.names != nil && v.UserID != "" {
		name, err := s.names.DisplayName(ctx, v.UserID)
		if err != nil {
			logger.Debugf("display name lookup for %s: %v", v.UserID, err)
		} else if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	if name := strings.TrimSpace(v.DisplayName); name != "" {
		return name
	}
	return anonymousLabel
}

// Snapshot returns the current ordered feed once.
func (s *Stream) Snapshot(ctx context.Context, documentID string, v access.Viewer) ([]Comment, error) {
	if err := s.auth.Authorize(v, documentID); err != nil {
		return nil, err
	}
	return s.store.List(ctx, documentID)
}

// Subscribe opens a live feed. The first delivery is the current feed; every
// later one is the full feed after a change. The subscription lives until
// Close, until ctx is done, or, for guests, until the link window closes.
func (s *Stream) Subscribe(ctx context.Context, documentID string, v access.Viewer) (*Subscription, error) {
	if err := s.auth.Authorize(v, documentID); err != nil {
		return nil, err
	}
	// Register before the first read so nothing published in between is lost.
	w, err := s.notifier.Watch(ctx, documentID)
	if err != nil {
		return nil, err
	}
	feed, err := s.store.List(ctx, documentID)
	if err != nil {
		_ = w.Close()
		return nil, err
	}

	sub := newSubscription(s, documentID, w)
	if v.IsGuest() {
		now := s.clock.Now()
		// The window includes ExpiresAt itself.
		sub.expiry = s.clock.Timer(v.ExpiresAt.Sub(now) + 1)
	}
	metrics.ActiveSubscriptions.Inc()
	go sub.run(ctx, feed)
	return sub, nil
}
