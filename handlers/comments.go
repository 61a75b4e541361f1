package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/access"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/comments"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/middleware"
)

const defaultHeartbeat = 25 * time.Second

// CommentsHandler exposes the comment feed of a document, addressed either by
// document id (registered users) or by share token (guests or registered).
type CommentsHandler struct {
	gate      *access.Gate
	stream    *comments.Stream
	heartbeat time.Duration
}

// NewCommentsHandler creates the handler. heartbeat is the SSE keep-alive
// interval; zero picks a default.
func NewCommentsHandler(gate *access.Gate, stream *comments.Stream, heartbeat time.Duration) *CommentsHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &CommentsHandler{gate: gate, stream: stream, heartbeat: heartbeat}
}

// Register mounts both address forms. auth requires an identity; optAuth
// attaches one when presented.
func (h *CommentsHandler) Register(rg *gin.RouterGroup, auth, optAuth gin.HandlerFunc) {
	byID := rg.Group("/api/documents/:id/comments", auth)
	byID.GET("", h.List)
	byID.GET("/stream", h.Stream)
	byID.POST("", h.Post)

	byToken := rg.Group("/api/shared/:token/comments", optAuth)
	byToken.GET("", h.List)
	byToken.GET("/stream", h.Stream)
	byToken.POST("", h.Post)
}

type postCommentRequest struct {
	Text      string `json:"text"`
	GuestName string `json:"guestName"`
}

func (h *CommentsHandler) classify(c *gin.Context, guestName string) (access.Viewer, error) {
	claims := middleware.Claims(c)
	return h.gate.Classify(c.Request.Context(), access.Request{
		CallerID:   middleware.Subject(c),
		CallerName: claimString(claims, "name", "preferred_username"),
		DocumentID: c.Param("id"),
		Token:      c.Param("token"),
		GuestName:  guestName,
	})
}

// List returns the current feed once.
func (h *CommentsHandler) List(c *gin.Context) {
	v, err := h.classify(c, "")
	if err != nil {
		writeError(c, err)
		return
	}
	feed, err := h.stream.Snapshot(c.Request.Context(), v.DocumentID, v)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": feed})
}

// Post appends a comment. Guests must send guestName along with text.
func (h *CommentsHandler) Post(c *gin.Context) {
	var req postCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, document.Invalid("request body must be JSON with a text field"))
		return
	}
	v, err := h.classify(c, req.GuestName)
	if err != nil {
		writeError(c, err)
		return
	}
	comment, err := h.stream.Publish(c.Request.Context(), v.DocumentID, v, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// Stream pushes the full ordered feed as a "comments" Server-Sent Event on
// connect and after every change. A guest's stream ends with an "expired"
// event when the link's window closes.
func (h *CommentsHandler) Stream(c *gin.Context) {
	v, err := h.classify(c, "")
	if err != nil {
		writeError(c, err)
		return
	}
	ctx := c.Request.Context()
	sub, err := h.stream.Subscribe(ctx, v.DocumentID, v)
	if err != nil {
		writeError(c, err)
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case feed, ok := <-sub.Updates():
			if !ok {
				if err := sub.Err(); errors.Is(err, document.ErrTokenExpired) {
					c.SSEvent("expired", gin.H{"error": "link_expired"})
				} else if err != nil {
					c.SSEvent("error", gin.H{"error": "stream_interrupted"})
				}
				return false
			}
			c.SSEvent("comments", feed)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", "")
			return true
		case <-ctx.Done():
			return false
		}
	})
}
