package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reaper removes bundle directories a fixed delay after they were served.
// Every Schedule call spawns its own detached goroutine; there is no
// deduplication, so a second reaper for the same bundle finds it gone and
// logs a warning.
type Reaper struct {
	delay   time.Duration
	logger  *zap.Logger
	metrics *Metrics

	// removeAll is os.RemoveAll outside of tests.
	removeAll func(string) error

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewReaper returns a reaper that waits delay before each removal.
func NewReaper(delay time.Duration, logger *zap.Logger, metrics *Metrics) *Reaper {
	return &Reaper{
		delay:     delay,
		logger:    logger,
		metrics:   metrics,
		removeAll: os.RemoveAll,
		stop:      make(chan struct{}),
	}
}

// Schedule removes dir after the reaper delay. It returns immediately.
// The caller's request context plays no part: a client hanging up does not
// cancel the removal. Only Stop does.
func (r *Reaper) Schedule(id uuid.UUID, dir string) {
	r.metrics.RecordReaperScheduled()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		timer := time.NewTimer(r.delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			r.reap(id, dir)
		case <-r.stop:
			r.metrics.RecordReaperAbandoned()
			r.logger.Info("bundle removal abandoned at shutdown",
				zap.String("path", dir),
				zap.Stringer("build_id", id),
			)
		}
	}()
}

func (r *Reaper) reap(id uuid.UUID, dir string) {
	err := r.remove(dir)
	if err != nil {
		r.metrics.RecordReaperResult(false)
		r.logger.Warn("failed to delete built project",
			zap.NamedError("err", err),
			zap.String("path", dir),
			zap.Stringer("build_id", id),
		)
		return
	}
	r.metrics.RecordReaperResult(true)
	r.logger.Debug("deleted built project",
		zap.String("path", dir),
		zap.Stringer("build_id", id),
	)
}

// remove deletes dir recursively. os.RemoveAll reports success for a
// missing directory; here that case is an error so that duplicate reapers
// are visible.
func (r *Reaper) remove(dir string) error {
	if _, err := os.Lstat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("bundle already removed: %w", err)
		}
		return err
	}
	return r.removeAll(dir)
}

// Stop abandons every reaper still waiting for its delay. Removals already
// in progress finish. Stop is safe to call more than once.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Wait blocks until every scheduled reaper has finished or been abandoned.
func (r *Reaper) Wait() {
	r.wg.Wait()
}
