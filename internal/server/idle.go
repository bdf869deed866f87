package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"
)

// ErrIdle is returned by IdleWatcher.Run once the server has been idle for
// the configured delay.
var ErrIdle = errors.New("server idle")

// IdleWatcher tracks the time of the last request so that an instance
// nobody uses can stop itself and let the platform scale it to zero.
type IdleWatcher struct {
	delay time.Duration
	last  atomic.Int64 // unix nanoseconds
	now   func() time.Time
}

// NewIdleWatcher returns a watcher that considers the server idle after delay
// without requests.
func NewIdleWatcher(delay time.Duration) *IdleWatcher {
	w := &IdleWatcher{delay: delay, now: time.Now}
	w.Touch()
	return w
}

// Touch records activity.
func (w *IdleWatcher) Touch() {
	w.last.Store(w.now().UnixNano())
}

// IdleFor is the time since the last recorded activity.
func (w *IdleWatcher) IdleFor() time.Duration {
	return w.now().Sub(time.Unix(0, w.last.Load()))
}

// Middleware records every request as activity.
func (w *IdleWatcher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w.Touch()
		next.ServeHTTP(rw, r)
	})
}

// Run checks once per delay and returns ErrIdle when no request arrived for at
// least delay. It returns nil when ctx is done first.
func (w *IdleWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if w.IdleFor() >= w.delay {
				return ErrIdle
			}
		}
	}
}
