package server

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestReaper(delay time.Duration) (*Reaper, *observer.ObservedLogs, *Metrics) {
	core, logs := observer.New(zapcore.DebugLevel)
	metrics := NewMetrics()
	return NewReaper(delay, zap.New(core), metrics), logs, metrics
}

func TestReaper_RemovesAfterDelay(t *testing.T) {
	defer goleak.VerifyNone(t)

	const delay = 50 * time.Millisecond
	reaper, _, metrics := newTestReaper(delay)
	dir := writeBundle(t, t.TempDir(), testBuildID, map[string][]byte{
		"index.html":      indexHTML,
		"nested/deep.js":  appJS,
		"nested/app.wasm": appWasm,
	})

	var (
		mu        sync.Mutex
		removedAt time.Time
	)
	reaper.removeAll = func(path string) error {
		mu.Lock()
		removedAt = time.Now()
		mu.Unlock()
		return os.RemoveAll(path)
	}

	spawned := time.Now()
	reaper.Schedule(uuid.MustParse(testBuildID), dir)
	assert.DirExists(t, dir, "Schedule must return before the delay")

	reaper.Wait()

	assert.NoDirExists(t, dir)
	mu.Lock()
	assert.GreaterOrEqual(t, removedAt.Sub(spawned), delay)
	mu.Unlock()

	snap := metrics.Snapshot()
	assert.EqualValues(t, 1, snap.ReaperScheduledTotal)
	assert.EqualValues(t, 1, snap.ReaperRemovedTotal)
}

func TestReaper_AlreadyGoneLogsWarning(t *testing.T) {
	defer goleak.VerifyNone(t)

	reaper, logs, metrics := newTestReaper(time.Millisecond)
	dir := filepath.Join(t.TempDir(), testBuildID)

	reaper.Schedule(uuid.MustParse(testBuildID), dir)
	reaper.Wait()

	entries := logs.FilterMessage("failed to delete built project").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, testBuildID, fields["build_id"])
	assert.Equal(t, dir, fields["path"])
	assert.EqualValues(t, 1, metrics.Snapshot().ReaperFailedTotal)
}

func TestReaper_RemoveFailureIsNotRetried(t *testing.T) {
	defer goleak.VerifyNone(t)

	reaper, logs, metrics := newTestReaper(time.Millisecond)
	dir := writeBundle(t, t.TempDir(), testBuildID, map[string][]byte{"index.html": indexHTML})

	calls := 0
	reaper.removeAll = func(string) error {
		calls++
		return errors.New("device busy")
	}

	reaper.Schedule(uuid.MustParse(testBuildID), dir)
	reaper.Wait()

	assert.Equal(t, 1, calls)
	assert.DirExists(t, dir)
	assert.Equal(t, 1, logs.FilterMessage("failed to delete built project").Len())
	assert.EqualValues(t, 1, metrics.Snapshot().ReaperFailedTotal)
}

func TestReaper_StopAbandonsPending(t *testing.T) {
	defer goleak.VerifyNone(t)

	reaper, logs, metrics := newTestReaper(time.Hour)
	dir := writeBundle(t, t.TempDir(), testBuildID, map[string][]byte{"index.html": indexHTML})

	reaper.Schedule(uuid.MustParse(testBuildID), dir)
	reaper.Stop()
	reaper.Stop()
	reaper.Wait()

	assert.DirExists(t, dir)
	assert.Equal(t, 1, logs.FilterMessage("bundle removal abandoned at shutdown").Len())
	assert.EqualValues(t, 1, metrics.Snapshot().ReaperAbandonedTotal)
}

func TestReaper_OnlyTouchesItsBundle(t *testing.T) {
	defer goleak.VerifyNone(t)

	reaper, _, _ := newTestReaper(time.Millisecond)
	root := t.TempDir()
	dir := writeBundle(t, root, testBuildID, map[string][]byte{"index.html": indexHTML})
	other := writeBundle(t, root, "22222222-2222-2222-2222-222222222222", map[string][]byte{"index.html": indexHTML})

	reaper.Schedule(uuid.MustParse(testBuildID), dir)
	reaper.Wait()

	assert.NoDirExists(t, dir)
	assert.DirExists(t, other)
	assert.DirExists(t, root)
}
