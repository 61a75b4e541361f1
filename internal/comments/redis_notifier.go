package comments

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const defaultChannelPrefix = "comments:"

// RedisNotifier broadcasts change ticks over Redis Pub/Sub so subscribers
// connected to any instance see comments published on any other.
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

// NewRedisNotifier creates a notifier publishing on "<prefix><documentID>". Prefix may be empty.
func NewRedisNotifier(client *redis.Client, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	return &RedisNotifier{client: client, prefix: prefix}
}

func (n *RedisNotifier) channel(documentID string) string {
	return n.prefix + documentID
}

func (n *RedisNotifier) Notify(ctx context.Context, documentID string) error {
	return n.client.Publish(ctx, n.channel(documentID), "changed").Err()
}

// Watch returns once the SUBSCRIBE is confirmed, so a Notify issued after
// Watch returns is never missed.
func (n *RedisNotifier) Watch(ctx context.Context, documentID string) (Watch, error) {
	ps := n.client.Subscribe(ctx, n.channel(documentID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", n.channel(documentID), err)
	}
	w := &redisWatch{ps: ps, ch: make(chan struct{}, 1), done: make(chan struct{})}
	go w.pump()
	return w, nil
}

type redisWatch struct {
	ps   *redis.PubSub
	ch   chan struct{}
	done chan struct{}
	once sync.Once
	err  error
}

func (w *redisWatch) pump() {
	defer close(w.ch)
	msgs := w.ps.Channel()
	for {
		select {
		case <-w.done:
			return
		case _, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case w.ch <- struct{}{}:
			default:
			}
		}
	}
}

func (w *redisWatch) C() <-chan struct{} { return w.ch }

func (w *redisWatch) Close() error {
	w.once.Do(func() {
		close(w.done)
		w.err = w.ps.Close()
	})
	return w.err
}
