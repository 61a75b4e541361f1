package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pdfshare/pdfshare/backend/go-services/internal/comments"
	"github.com/stretchr/testify/require"
)

func TestPostCommentAsGuest(t *testing.T) {
	env := newTestEnv(t)
	token := env.shareLink(t, env.seedDocument(t, "Quarterly report"))

	w := env.postJSON("/api/shared/"+token+"/comments", "", map[string]string{"text": "Looks good"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "validation_failed", errorCode(t, w))

	w = env.postJSON("/api/shared/"+token+"/comments", "", map[string]string{"text": "  ", "guestName": "Ana"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.postJSON("/api/shared/"+token+"/comments", "", map[string]string{"text": " Looks good ", "guestName": " Ana "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c comments.Comment
	decode(t, w, &c)
	require.Equal(t, "Looks good", c.Text)
	require.Equal(t, "Ana", c.AuthorLabel)
	require.Equal(t, comments.AuthorGuest, c.AuthorKind)
	require.Empty(t, c.AuthorID)

	w = env.do(http.MethodGet, "/api/shared/"+token+"/comments", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Comments []comments.Comment `json:"comments"`
	}
	decode(t, w, &list)
	require.Len(t, list.Comments, 1)
}

func TestPostCommentAfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedDocument(t, "Quarterly report")
	token := env.shareLink(t, id)
	env.clock.Add(25 * time.Hour)

	w := env.postJSON("/api/shared/"+token+"/comments", "", map[string]string{"text": "late", "guestName": "Ana"})
	require.Equal(t, http.StatusGone, w.Code)
	require.Equal(t, "link_expired", errorCode(t, w))

	// a signed-in reader following the same link is unaffected
	w = env.postJSON("/api/shared/"+token+"/comments", "member-token", map[string]string{"text": "still here"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c comments.Comment
	decode(t, w, &c)
	require.Equal(t, "Max", c.AuthorLabel)
	require.Equal(t, "member-1", c.AuthorID)
}

func TestCommentsByDocumentID(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedDocument(t, "Quarterly report")

	w := env.postJSON("/api/documents/"+id+"/comments", "owner-token", map[string]string{"text": "First"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c comments.Comment
	decode(t, w, &c)
	require.Equal(t, "Olivia", c.AuthorLabel)
	require.Equal(t, comments.AuthorRegistered, c.AuthorKind)

	w = env.postJSON("/api/documents/"+id+"/comments", "", map[string]string{"text": "anon"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.postJSON("/api/documents/missing/comments", "owner-token", map[string]string{"text": "x"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/documents/"+id+"/comments", "owner-token", strings.NewReader("nope"), "application/json")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func openStream(t *testing.T, ctx context.Context, url string) *bufio.Reader {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))
	return bufio.NewReader(resp.Body)
}

func TestCommentStreamDeliversFeed(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedDocument(t, "Quarterly report")
	token := env.shareLink(t, id)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	guest := openStream(t, ctx, srv.URL+"/api/shared/"+token+"/comments/stream")
	owner := openStream(t, ctx, srv.URL+"/api/documents/"+id+"/comments/stream?access_token=owner-token")

	require.Empty(t, feedOf(t, readEvent(t, guest)))
	require.Empty(t, feedOf(t, readEvent(t, owner)))

	w := env.postJSON("/api/shared/"+token+"/comments", "", map[string]string{"text": "Hi", "guestName": "Ana"})
	require.Equal(t, http.StatusCreated, w.Code)

	for _, r := range []*bufio.Reader{guest, owner} {
		feed := feedOf(t, readEvent(t, r))
		require.Len(t, feed, 1)
		require.Equal(t, "Hi", feed[0].Text)
		require.Equal(t, "Ana", feed[0].AuthorLabel)
	}

	env.clock.Add(time.Second)
	w = env.postJSON("/api/documents/"+id+"/comments", "owner-token", map[string]string{"text": "Thanks"})
	require.Equal(t, http.StatusCreated, w.Code)

	feed := feedOf(t, readEvent(t, owner))
	require.Len(t, feed, 2)
	require.Equal(t, "Thanks", feed[0].Text)
	require.Equal(t, "Hi", feed[1].Text)
}

func TestCommentStreamEndsWhenLinkExpires(t *testing.T) {
	env := newTestEnv(t)
	token := env.shareLink(t, env.seedDocument(t, "Quarterly report"))
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	guest := openStream(t, context.Background(), srv.URL+"/api/shared/"+token+"/comments/stream")
	require.Empty(t, feedOf(t, readEvent(t, guest)))

	env.clock.Add(24*time.Hour + time.Second)
	ev := readEvent(t, guest)
	require.Equal(t, "expired", ev.Name)
	require.JSONEq(t, `{"error":"link_expired"}`, ev.Data)
}

func TestCommentStreamRejectsExpiredLink(t *testing.T) {
	env := newTestEnv(t)
	token := env.shareLink(t, env.seedDocument(t, "Quarterly report"))
	env.clock.Add(25 * time.Hour)

	w := env.do(http.MethodGet, "/api/shared/"+token+"/comments/stream", "", nil, "")
	require.Equal(t, http.StatusGone, w.Code)
}
