package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/access"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/blob"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document/repository"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/middleware"
)

// SharedHandler opens a document through a share link.
type SharedHandler struct {
	docs       repository.Repository
	blobs      blob.Store
	gate       *access.Gate
	presignTTL time.Duration
}

func NewSharedHandler(docs repository.Repository, blobs blob.Store, gate *access.Gate, presignTTL time.Duration) *SharedHandler {
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	return &SharedHandler{docs: docs, blobs: blobs, gate: gate, presignTTL: presignTTL}
}

// Register routes under /api/shared. optAuth attaches an identity when one is presented.
func (h *SharedHandler) Register(rg *gin.RouterGroup, optAuth gin.HandlerFunc) {
	rg.GET("/api/shared/:token", optAuth, h.Open)
}

type linkWindow struct {
	ExpiresAt        time.Time `json:"expiresAt"`
	RemainingSeconds int64     `json:"remainingSeconds"`
}

// Open answers with the document and, for guests, the remaining validity
// window. Expired links answer 410 and unknown ones 404.
func (h *SharedHandler) Open(c *gin.Context) {
	ctx := c.Request.Context()
	v, err := h.gate.Classify(ctx, access.Request{
		CallerID: middleware.Subject(c),
		Token:    c.Param("token"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	doc, err := h.docs.Get(ctx, v.DocumentID)
	if err != nil {
		writeError(c, err)
		return
	}
	url, err := h.blobs.PresignedURL(ctx, doc.StoragePath, h.presignTTL)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{
		"status":   "valid",
		"document": documentView{Document: doc, DownloadURL: url, Viewer: v.Kind.String()},
	}
	if v.IsGuest() {
		remaining := v.ExpiresAt.Sub(h.gate.Clock().Now())
		resp["window"] = linkWindow{ExpiresAt: v.ExpiresAt, RemainingSeconds: int64(remaining / time.Second)}
	}
	c.JSON(http.StatusOK, resp)
}
