package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testBuildID = "11111111-1111-1111-1111-111111111111"

// newTestServer builds a server over a fresh bundle root with every log line captured.
func newTestServer(t *testing.T, delay time.Duration, mutate ...func(*Config)) (*Server, *observer.ObservedLogs, string) {
	t.Helper()

	root := t.TempDir()
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := Config{
		Addr:         "127.0.0.1:0",
		TempPath:     root,
		RemovalDelay: delay,
		Logger:       zap.New(core),
		Build:        BuildInfo{Version: "test", Commit: "abc123"},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	srv, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		srv.reaper.Stop()
		srv.reaper.Wait()
	})
	return srv, logs, root
}

// writeBundle creates <root>/<id>/ with the given files and returns the bundle dir.
func writeBundle(t *testing.T, root, id string, files map[string][]byte) string {
	t.Helper()

	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, data := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, data, 0o644))
	}
	return dir
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// sampleBytes returns n deterministic, non-repeating-looking bytes.
func sampleBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte((i*31 + i/251) % 256)
	}
	return b
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}
