package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/access"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/blob"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/comments"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document/repository"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/share"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/middleware"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

// fakeToken implements middleware.Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier accepts a fixed set of bearer tokens.
type fakeVerifier map[string]map[string]interface{}

func (f fakeVerifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	if claims, ok := f[raw]; ok {
		return &fakeToken{data: claims}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

var testUsers = fakeVerifier{
	"owner-token":  {"sub": "owner-1", "name": "Olivia", "email": "olivia@example.com"},
	"member-token": {"sub": "member-1", "name": "Max"},
}

type testEnv struct {
	router *gin.Engine
	docs   *repository.MemoryRepo
	blobs  *blob.MemoryStore
	links  *share.Manager
	gate   *access.Gate
	stream *comments.Stream
	clock  *clock.Mock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(t0)

	docs := repository.NewMemoryRepo()
	blobs := blob.NewMemoryStore("http://blobs.test", clk)
	links, err := share.NewManager(docs, share.Options{Origin: "https://pdf.example.com", Clock: clk})
	require.NoError(t, err)
	gate := access.NewGate(docs, links, clk)
	stream := comments.NewStream(comments.NewMemoryStore(clk), comments.NewLocalNotifier(), gate, nil, clk)

	g := gin.New()
	auth := middleware.AuthMiddleware(testUsers, nil)
	opt := middleware.OptionalAuth(testUsers, nil)
	rg := g.Group("/")
	NewDocumentHandler(docs, blobs, gate, links, DocumentOptions{MaxBytes: 1 << 20, Clock: clk}).Register(rg, auth)
	NewSharedHandler(docs, blobs, gate, time.Minute).Register(rg, opt)
	NewCommentsHandler(gate, stream, time.Hour).Register(rg, auth, opt)

	return &testEnv{router: g, docs: docs, blobs: blobs, links: links, gate: gate, stream: stream, clock: clk}
}

// seedDocument stores an owner-1 PDF and returns its id.
func (e *testEnv) seedDocument(t *testing.T, title string) string {
	t.Helper()
	ctx := context.Background()
	path := blob.ObjectPath("owner-1", title+".pdf", e.clock.Now())
	require.NoError(t, e.blobs.Upload(ctx, path, strings.NewReader("%PDF-1.7"), 8, "application/pdf"))
	id, err := e.docs.Create(ctx, &document.Document{OwnerID: "owner-1", Title: title, OriginalFileName: title + ".pdf", StoragePath: path})
	require.NoError(t, err)
	return id
}

func (e *testEnv) do(method, target, bearer string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postJSON(target, bearer string, v interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(v)
	return e.do(http.MethodPost, target, bearer, bytes.NewReader(b), "application/json")
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	return body.Error
}

func multipartUpload(t *testing.T, title, fileName, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", title))
	if fileName != "" {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName)}
		h["Content-Type"] = []string{contentType}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

type sseEvent struct {
	Name string
	Data string
}

// readEvent reads one Server-Sent Event, skipping keep-alive pings.
func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	type result struct {
		ev  sseEvent
		err error
	}
	ch := make(chan result, 1)
	go func() {
		for {
			var ev sseEvent
			for {
				line, err := r.ReadString('\n')
				if err != nil {
					ch <- result{err: err}
					return
				}
				line = strings.TrimRight(line, "\r\n")
				if line == "" {
					break
				}
				switch {
				case strings.HasPrefix(line, "event:"):
					ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				case strings.HasPrefix(line, "data:"):
					ev.Data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				}
			}
			if ev.Name == "ping" || (ev.Name == "" && ev.Data == "") {
				continue
			}
			ch <- result{ev: ev}
			return
		}
	}()
	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for an event")
		return sseEvent{}
	}
}

func feedOf(t *testing.T, ev sseEvent) []comments.Comment {
	t.Helper()
	require.Equal(t, "comments", ev.Name)
	var feed []comments.Comment
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &feed))
	return feed
}
