package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/blob"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/logger"
)

// writeError maps the domain error taxonomy onto HTTP. Expired links are
// checked before not-found and unauthorized so the UI can tell them apart.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, document.ErrTokenExpired):
		respond(c, http.StatusGone, "link_expired", "This share link has expired. Ask the owner for a new one.")
	case errors.Is(err, document.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		respond(c, http.StatusNotFound, "not_found", "Not found.")
	case errors.Is(err, document.ErrNotOwner):
		respond(c, http.StatusForbidden, "not_owner", "Only the document owner can do this.")
	case errors.Is(err, document.ErrUnauthorized):
		respond(c, http.StatusUnauthorized, "unauthorized", "Sign in or open a valid share link.")
	case errors.Is(err, document.ErrValidation):
		respond(c, http.StatusBadRequest, "validation_failed", validationReason(err))
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		respond(c, http.StatusInternalServerError, "internal_error", "Something went wrong. Please try again.")
	}
}

func respond(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}

func validationReason(err error) string {
	msg := err.Error()
	if _, reason, ok := strings.Cut(msg, document.ErrValidation.Error()+": "); ok {
		return reason
	}
	return msg
}
