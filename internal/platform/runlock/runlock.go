// Package runlock provides a redis-backed mutual exclusion for pipeline runs.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKey = "logforge:pipeline:run-lock"

var (
	ErrLocked   = errors.New("another pipeline run holds the lock")
	ErrNotOwner = errors.New("run lock no longer owned")
)

// releaseScript deletes the key only while it still carries our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// renewScript extends the TTL only while the key still carries our token.
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

type client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type Lock struct {
	client     client
	closer     func() error
	key        string
	ttl        time.Duration
	renewEvery time.Duration
}

// New connects to the redis instance at url.
func New(url string, ttl time.Duration) (*Lock, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	c := redis.NewClient(opts)

	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Lock{client: c, closer: c.Close, key: DefaultKey, ttl: ttl, renewEvery: ttl / 3}, nil
}

func newWithClient(c client, key string, ttl time.Duration) *Lock {
	return &Lock{client: c, closer: func() error { return nil }, key: key, ttl: ttl, renewEvery: ttl / 3}
}

func (l *Lock) Close() error {
	return l.closer()
}

// Acquire takes the lock for owner until the returned release is called. The
// TTL is renewed every third of its length while the lock is held, so it only
// lapses when this process stops renewing it.
func (l *Lock) Acquire(ctx context.Context, owner string) (func(context.Context) error, error) {
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("set run lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(owner, stop, done)

	var once sync.Once
	release := func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})
		n, err := l.client.Eval(ctx, releaseScript, []string{l.key}, owner).Int64()
		if err != nil {
			return fmt.Errorf("release run lock: %w", err)
		}
		if n == 0 {
			return ErrNotOwner
		}
		return nil
	}
	return release, nil
}

// keepAlive extends the TTL until stop is closed or the key is found to belong
// to someone else. Redis errors are retried on the next tick.
func (l *Lock) keepAlive(owner string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if l.renewEvery <= 0 {
		return
	}

	ticker := time.NewTicker(l.renewEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.renewEvery)
			n, err := l.client.Eval(ctx, renewScript, []string{l.key}, owner, l.ttl.Milliseconds()).Int64()
			cancel()
			if err == nil && n == 0 {
				return
			}
		}
	}
}
