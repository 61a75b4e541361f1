// Package blob stores uploaded PDFs and produces time-limited retrieval URLs.
// Callers treat paths as opaque.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

var ErrNotFound = errors.New("blob not found")

type Store interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// ObjectPath builds the storage key for an owner's upload:
// pdfs/<owner>/<base>_<unix millis><ext>.
func ObjectPath(ownerID, fileName string, at time.Time) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" || base == "." || base == "/" {
		base = "document"
	}
	if ext == "" {
		ext = ".pdf"
	}
	return fmt.Sprintf("pdfs/%s/%s_%d%s", ownerID, sanitize(base), at.UnixMilli(), strings.ToLower(ext))
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

type object struct {
	data        []byte
	contentType string
}

// MemoryStore is used when MinIO is not configured and in tests. Its URLs
// point at baseURL and carry an expiry query parameter.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
	clock   clock.Clock
}

func NewMemoryStore(baseURL string, clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryStore{objects: make(map[string]object), baseURL: strings.TrimRight(baseURL, "/"), clock: clk}
}

func (m *MemoryStore) Upload(_ context.Context, p string, r io.Reader, _ int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[p] = object{data: buf.Bytes(), contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) PresignedURL(_ context.Context, p string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[p]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	q := url.Values{}
	q.Set("expires", fmt.Sprint(m.clock.Now().Add(ttl).Unix()))
	return m.baseURL + "/" + p + "?" + q.Encode(), nil
}

// Open returns the stored bytes of p.
func (m *MemoryStore) Open(p string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[p]
	return o.data, o.contentType, ok
}
