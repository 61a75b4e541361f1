package comments

import (
	"context"
	"sync"
)

// Notifier is the change signal behind live queries: Notify is called after
// every successful append, and every Watch on that document receives a tick.
// Ticks carry no payload; watchers re-read the feed.
type Notifier interface {
	Notify(ctx context.Context, documentID string) error
	Watch(ctx context.Context, documentID string) (Watch, error)
}

// Watch is one registration. C is closed when the watch ends.
type Watch interface {
	C() <-chan struct{}
	Close() error
}

// LocalNotifier fans out in-process. It's sufficient for a single instance.
type LocalNotifier struct {
	mu       sync.Mutex
	watchers map[string]map[*localWatch]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{watchers: make(map[string]map[*localWatch]struct{})}
}

func (n *LocalNotifier) Notify(_ context.Context, documentID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for w := range n.watchers[documentID] {
		w.signal()
	}
	return nil
}

func (n *LocalNotifier) Watch(_ context.Context, documentID string) (Watch, error) {
	w := &localWatch{n: n, documentID: documentID, ch: make(chan struct{}, 1)}
	n.mu.Lock()
	set, ok := n.watchers[documentID]
	if !ok {
		set = make(map[*localWatch]struct{})
		n.watchers[documentID] = set
	}
	set[w] = struct{}{}
	n.mu.Unlock()
	return w, nil
}

type localWatch struct {
	n          *LocalNotifier
	documentID string
	ch         chan struct{}
	once       sync.Once
}

func (w *localWatch) C() <-chan struct{} { return w.ch }

// signal never blocks: a pending tick already covers this change.
func (w *localWatch) signal() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

func (w *localWatch) Close() error {
	w.once.Do(func() {
		w.n.mu.Lock()
		if set, ok := w.n.watchers[w.documentID]; ok {
			delete(set, w)
			if len(set) == 0 {
				delete(w.n.watchers, w.documentID)
			}
		}
		close(w.ch)
		w.n.mu.Unlock()
	})
	return nil
}
