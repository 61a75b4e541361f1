package handlers

import (
	"bytes"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/access"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/blob"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document/repository"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/share"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/middleware"
)

const (
	minTitleLen = 3
	maxTitleLen = 100
	pdfMagic    = "%PDF-"
)

// DocumentHandler serves upload, the owner's dashboard, the viewer and link
// generation.
type DocumentHandler struct {
	docs       repository.Repository
	blobs      blob.Store
	gate       *access.Gate
	links      *share.Manager
	maxBytes   int64
	presignTTL time.Duration
	clock      clock.Clock
}

type DocumentOptions struct {
	MaxBytes   int64
	PresignTTL time.Duration
	Clock      clock.Clock
}

func NewDocumentHandler(docs repository.Repository, blobs blob.Store, gate *access.Gate, links *share.Manager, opts DocumentOptions) *DocumentHandler {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &DocumentHandler{docs: docs, blobs: blobs, gate: gate, links: links, maxBytes: opts.MaxBytes, presignTTL: opts.PresignTTL, clock: opts.Clock}
}

// Register routes under /api/documents. auth must require an identity.
func (h *DocumentHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	d := rg.Group("/api/documents", auth)
	d.POST("", h.Upload)
	d.GET("", h.List)
	d.GET("/:id", h.Get)
	d.POST("/:id/share", h.Share)
}

// documentView is the public shape of a document.
type documentView struct {
	*document.Document
	DownloadURL string `json:"downloadUrl,omitempty"`
	Viewer      string `json:"viewer,omitempty"`
}

// Upload accepts multipart form fields "title" and "file".
func (h *DocumentHandler) Upload(c *gin.Context) {
	// multipart overhead on top of the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)

	title := strings.TrimSpace(c.PostForm("title"))
	if n := utf8.RuneCountInString(title); n < minTitleLen || n > maxTitleLen {
		writeError(c, document.Invalid("title must be between 3 and 100 characters"))
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, document.Invalid("a PDF file is required"))
		return
	}
	if fh.Size > h.maxBytes {
		writeError(c, document.Invalid("file is too large"))
		return
	}
	if !looksLikePDF(fh.Filename, fh.Header.Get("Content-Type")) {
		writeError(c, document.Invalid("only PDF files are accepted"))
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()
	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, head); err != nil || string(head) != pdfMagic {
		writeError(c, document.Invalid("file is not a PDF"))
		return
	}

	claims := middleware.Claims(c)
	ownerID := middleware.Subject(c)
	now := h.clock.Now().UTC()
	path := blob.ObjectPath(ownerID, fh.Filename, now)
	body := io.MultiReader(bytes.NewReader(head), f)
	if err := h.blobs.Upload(c.Request.Context(), path, body, fh.Size, "application/pdf"); err != nil {
		writeError(c, err)
		return
	}

	doc := &document.Document{
		OwnerID:          ownerID,
		OwnerName:        claimString(claims, "name", "preferred_username"),
		OwnerEmail:       claimString(claims, "email"),
		Title:            title,
		FileName:         filepath.Base(path),
		OriginalFileName: fh.Filename,
		StoragePath:      path,
		ContentType:      "application/pdf",
		Size:             fh.Size,
		CreatedAt:        now,
	}
	if _, err := h.docs.Create(c.Request.Context(), doc); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, documentView{Document: doc, Viewer: access.KindOwner.String()})
}

// List returns the caller's own documents, optionally filtered by ?q=.
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docs.ListByOwner(c.Request.Context(), middleware.Subject(c))
	if err != nil {
		writeError(c, err)
		return
	}
	q := c.Query("q")
	out := make([]*document.Document, 0, len(docs))
	for _, d := range docs {
		if d.Matches(q) {
			out = append(out, d)
		}
	}
	c.JSON(http.StatusOK, gin.H{"documents": out})
}

// Get returns metadata plus a short-lived download URL to any registered user.
func (h *DocumentHandler) Get(c *gin.Context) {
	v, err := h.gate.Classify(c.Request.Context(), access.Request{
		CallerID:   middleware.Subject(c),
		DocumentID: c.Param("id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	doc, err := h.docs.Get(c.Request.Context(), v.DocumentID)
	if err != nil {
		writeError(c, err)
		return
	}
	url, err := h.blobs.PresignedURL(c.Request.Context(), doc.StoragePath, h.presignTTL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, documentView{Document: doc, DownloadURL: url, Viewer: v.Kind.String()})
}

// Share issues a new link. Owner only.
func (h *DocumentHandler) Share(c *gin.Context) {
	link, err := h.links.Generate(c.Request.Context(), c.Param("id"), middleware.Subject(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}

func looksLikePDF(name, contentType string) bool {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return true
	}
	ct, _, _ := strings.Cut(contentType, ";")
	return strings.EqualFold(strings.TrimSpace(ct), "application/pdf")
}

// claimString returns the first non-empty string claim among keys.
func claimString(claims map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, _ := claims[k].(string); strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
