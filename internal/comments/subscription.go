package comments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/logger"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/metrics"
)

// ErrWatchLost is reported when the change signal ends underneath a live subscription.
var ErrWatchLost = errors.New("comment watch lost")

// Subscription is a live, ordered view of one document's feed. Deliveries
// are coalesced: a slow reader sees only the latest feed, never a backlog.
type Subscription struct {
	stream     *Stream
	documentID string
	watch      Watch
	expiry     *clock.Timer

	updates chan []Comment
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once

	mu  sync.Mutex
	err error
}

func newSubscription(s *Stream, documentID string, w Watch) *Subscription {
	return &Subscription{
		stream:     s,
		documentID: documentID,
		watch:      w,
		updates:    make(chan []Comment),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Updates yields ordered feeds. It is closed when the subscription ends.
func (s *Subscription) Updates() <-chan []Comment { return s.updates }

// Done is closed once the subscription has fully stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err is nil after Close or context cancellation. A guest whose link window
// closed gets an error matching document.ErrTokenExpired.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the subscription and waits for it to wind down. Nothing is
// delivered once Close has returned.
func (s *Subscription) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Subscription) run(ctx context.Context, initial []Comment) {
	defer close(s.done)
	defer close(s.updates)
	defer metrics.ActiveSubscriptions.Dec()
	defer s.watch.Close()

	var expired <-chan time.Time
	if s.expiry != nil {
		defer s.expiry.Stop()
		expired = s.expiry.C
	}

	pending := initial
	for {
		// A nil channel disables the send case until there is something to deliver.
		var out chan<- []Comment
		if pending != nil {
			out = s.updates
		}
		select {
		case out <- pending:
			pending = nil
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-expired:
			s.fail(fmt.Errorf("%w: %w", document.ErrUnauthorized, document.ErrTokenExpired))
			return
		case _, ok := <-s.watch.C():
			if !ok {
				s.fail(ErrWatchLost)
				return
			}
			feed, err := s.stream.store.List(ctx, s.documentID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.L().Warn("comment feed refresh failed",
					logger.String("document_id", s.documentID),
					logger.Err(err))
				continue
			}
			pending = feed
		}
	}
}
