package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(r gin.IRoutes) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>pdfshare API - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "pdfshare", "version": "v0.2.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } },
    "schemas": {
      "Error": { "type": "object", "properties": { "error": { "type": "string", "enum": ["not_found", "link_expired", "not_owner", "unauthorized", "validation_failed", "internal_error", "rate_limited"] }, "message": { "type": "string" } } },
      "Comment": { "type": "object", "properties": { "id": {"type":"string"}, "documentId": {"type":"string"}, "text": {"type":"string"}, "authorLabel": {"type":"string"}, "authorKind": {"type":"string","enum":["registered","guest"]}, "authorId": {"type":"string"}, "postedAt": {"type":"string","format":"date-time"} } },
      "ShareLink": { "type": "object", "properties": { "token": {"type":"string"}, "url": {"type":"string"}, "createdAt": {"type":"string","format":"date-time"}, "expiresAt": {"type":"string","format":"date-time"} } }
    }
  },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Exchange authorization code / login",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"mode":{"type":"string"},"username":{"type":"string"},"password":{"type":"string"},"code":{"type":"string"},"redirect_uri":{"type":"string"}}}}}},
        "responses": { "200": { "description": "access token and user" }, "401": { "description": "authentication failed" } }
      }
    },
    "/auth/logout": {
      "post": { "summary": "Revoke the presented access token", "security": [{"bearer": []}], "responses": { "200": { "description": "logged out" } } }
    },
    "/api/v1/me": {
      "get": { "summary": "Get user info", "security": [{"bearer": []}], "responses": { "200": { "description": "user or claims" } } }
    },
    "/api/documents": {
      "get": { "summary": "List own documents, filtered by ?q=", "security": [{"bearer": []}], "responses": { "200": { "description": "documents" } } },
      "post": { "summary": "Upload a PDF (multipart: title, file)", "security": [{"bearer": []}], "responses": { "201": { "description": "created" }, "400": { "description": "validation failed" } } }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Document metadata and download URL", "security": [{"bearer": []}], "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } }
    },
    "/api/documents/{id}/share": {
      "post": { "summary": "Issue a 24h share link (owner only)", "security": [{"bearer": []}], "responses": { "201": { "description": "link", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/ShareLink" } } } }, "403": { "description": "not owner" } } }
    },
    "/api/documents/{id}/comments": {
      "get": { "summary": "Current comment feed, newest first", "security": [{"bearer": []}], "responses": { "200": { "description": "comments" } } },
      "post": { "summary": "Post a comment", "security": [{"bearer": []}], "responses": { "201": { "description": "comment" }, "400": { "description": "empty text" } } }
    },
    "/api/documents/{id}/comments/stream": {
      "get": { "summary": "Live feed as Server-Sent Events (event: comments)", "security": [{"bearer": []}], "responses": { "200": { "description": "text/event-stream" } } }
    },
    "/api/shared/{token}": {
      "get": { "summary": "Open a shared document", "responses": { "200": { "description": "document and validity window" }, "404": { "description": "unknown link" }, "410": { "description": "link expired" } } }
    },
    "/api/shared/{token}/comments": {
      "get": { "summary": "Current comment feed through a share link", "responses": { "200": { "description": "comments" }, "410": { "description": "link expired" } } },
      "post": { "summary": "Post a comment through a share link; guests send guestName", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"text":{"type":"string"},"guestName":{"type":"string"}}}}}}, "responses": { "201": { "description": "comment" }, "400": { "description": "empty text or guest name" }, "410": { "description": "link expired" } } }
    },
    "/api/shared/{token}/comments/stream": {
      "get": { "summary": "Live feed through a share link; ends with event: expired", "responses": { "200": { "description": "text/event-stream" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "text exposition" } } } }
  }
}`
