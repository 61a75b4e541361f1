package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/share"
)

// Request carries what a caller presented: an identity (CallerID, from the
// auth middleware) and a document id or a share token.
type Request struct {
	CallerID   string
	CallerName string
	DocumentID string
	Token      string
	// GuestName is the display name typed by a guest for this call.
	GuestName string
}

// Documents is the read side of the document store.
type Documents interface {
	Get(ctx context.Context, id string) (*document.Document, error)
}

// Links resolves share tokens. Implemented by *share.Manager.
type Links interface {
	Resolve(ctx context.Context, token string) (*document.Document, share.Window, error)
	Lookup(ctx context.Context, token string) (*document.Document, error)
}

type Gate struct {
	docs  Documents
	links Links
	clock clock.Clock
}

func NewGate(docs Documents, links Links, clk clock.Clock) *Gate {
	if clk == nil {
		clk = clock.New()
	}
	return &Gate{docs: docs, links: links, clock: clk}
}

// Classify turns a request into a Viewer. An identity always wins over guest
// classification; a document id wins over a token.
func (g *Gate) Classify(ctx context.Context, req Request) (Viewer, error) {
	req.CallerID = strings.TrimSpace(req.CallerID)
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.Token = strings.TrimSpace(req.Token)

	if req.CallerID != "" {
		return g.classifyRegistered(ctx, req)
	}
	if req.Token == "" {
		return Viewer{}, document.ErrUnauthorized
	}

	doc, w, err := g.links.Resolve(ctx, req.Token)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) || errors.Is(err, document.ErrTokenExpired) {
			return Viewer{}, fmt.Errorf("%w: %w", document.ErrUnauthorized, err)
		}
		return Viewer{}, err
	}
	return Viewer{
		Kind:        KindGuest,
		DocumentID:  doc.ID,
		DisplayName: strings.TrimSpace(req.GuestName),
		ExpiresAt:   w.ExpiresAt,
	}, nil
}

func (g *Gate) classifyRegistered(ctx context.Context, req Request) (Viewer, error) {
	var doc *document.Document
	var err error
	switch {
	case req.DocumentID != "":
		doc, err = g.docs.Get(ctx, req.DocumentID)
	case req.Token != "":
		doc, err = g.links.Lookup(ctx, req.Token)
	default:
		return Viewer{}, document.ErrUnauthorized
	}
	if err != nil {
		return Viewer{}, err
	}

	kind := KindAuthenticated
	if doc.IsOwner(req.CallerID) {
		kind = KindOwner
	}
	return Viewer{
		Kind:        kind,
		DocumentID:  doc.ID,
		UserID:      req.CallerID,
		DisplayName: strings.TrimSpace(req.CallerName),
	}, nil
}

// Authorize checks that v may subscribe to or publish on documentID right now.
func (g *Gate) Authorize(v Viewer, documentID string) error {
	if v.Active(documentID, g.clock.Now()) {
		return nil
	}
	if v.IsGuest() && v.DocumentID == documentID {
		return fmt.Errorf("%w: %w", document.ErrUnauthorized, document.ErrTokenExpired)
	}
	return document.ErrUnauthorized
}

// Clock exposes the gate's clock for timers bound to a viewer's window.
func (g *Gate) Clock() clock.Clock { return g.clock }
