package server

import (
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Response bodies. They never reveal why a request failed.
const (
	bodyNotFound    = "not found"
	bodyReadFailure = "read failure"
)

// artifactHandler serves the files of ephemeral build bundles:
//
//	GET /build/{id}          index.html, schedules the bundle's removal
//	GET /build/{id}/{path…}  whitelisted wasm and js assets
type artifactHandler struct {
	resolver *PathResolver
	reaper   *Reaper
	logger   *zap.Logger
	metrics  *Metrics
}

func (h *artifactHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := h.buildID(w, r)
	if !ok {
		return
	}

	artifact := h.resolver.ResolveIndex(id)
	f, err := artifact.Open()
	if err != nil {
		h.metrics.RecordReadFailure()
		h.logger.Error("failed to read built project",
			zap.NamedError("err", err),
			zap.String("path", artifact.Path()),
			zap.Stringer("build_id", id),
		)
		replyError(w, bodyNotFound, http.StatusNotFound)
		return
	}
	defer f.Close()

	// Removal runs on its own clock, whatever happens to the response.
	h.reaper.Schedule(id, artifact.Dir)

	h.stream(w, f, KindHTML, artifact)
}

func (h *artifactHandler) serveAsset(w http.ResponseWriter, r *http.Request) {
	subPath := r.PathValue("path")
	if subPath == "" {
		h.serveIndex(w, r)
		return
	}

	id, ok := h.buildID(w, r)
	if !ok {
		return
	}

	artifact, err := h.resolver.ResolveAsset(id, subPath)
	if err != nil {
		h.metrics.RecordUnsafePath()
		h.logger.Warn("rejected unsafe artifact path",
			zap.NamedError("err", err),
			zap.String("path", subPath),
			zap.Stringer("build_id", id),
		)
		replyError(w, bodyNotFound, http.StatusNotFound)
		return
	}

	kind, err := AssetKind(artifact.Name)
	switch {
	case errors.Is(err, ErrNotAllowed):
		h.metrics.RecordDenied()
		h.logger.Warn("project tried accessing denied file",
			zap.NamedError("err", err),
			zap.String("path", artifact.Path()),
			zap.Stringer("build_id", id),
		)
		replyError(w, bodyNotFound, http.StatusNotFound)
		return
	case err != nil:
		h.metrics.RecordMalformed()
		h.logger.Warn("failed to get file extension",
			zap.NamedError("err", err),
			zap.String("path", artifact.Path()),
			zap.Stringer("build_id", id),
		)
		replyError(w, bodyReadFailure, http.StatusInternalServerError)
		return
	}

	f, err := artifact.Open()
	if err != nil {
		h.metrics.RecordReadFailure()
		h.logger.Error("failed to read built project",
			zap.NamedError("err", err),
			zap.String("path", artifact.Path()),
			zap.Stringer("build_id", id),
		)
		replyError(w, bodyReadFailure, http.StatusNotFound)
		return
	}
	defer f.Close()

	h.stream(w, f, kind, artifact)
}

// buildID validates the {id} path value and answers 404 when it is not a
// canonical build id.
func (h *artifactHandler) buildID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.PathValue("id")
	id, err := ParseBuildID(raw)
	if err != nil {
		h.logger.Debug("rejected build id", zap.NamedError("err", err), zap.String("build_id", raw))
		replyError(w, bodyNotFound, http.StatusNotFound)
		return uuid.Nil, false
	}
	return id, true
}

// stream copies f to the client as it is read. Content-Length is left to the
// transport. Writes block while the client is slow, which in turn stops the
// reads, so memory stays bounded by the copy buffer.
func (h *artifactHandler) stream(w http.ResponseWriter, f *os.File, kind ContentKind, artifact Artifact) {
	start := time.Now()

	w.Header().Set("Content-Type", kind.MIME())
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, f)
	if err != nil {
		// Headers are gone already; the client sees a truncated body.
		h.logger.Debug("artifact stream interrupted",
			zap.NamedError("err", err),
			zap.String("path", artifact.Path()),
			zap.Stringer("build_id", artifact.BuildID),
			zap.Int64("bytes", n),
		)
	}
	h.metrics.RecordServed(kind, n, time.Since(start))
}

// replyError writes one of the fixed failure bodies, without the trailing
// newline http.Error would add.
func replyError(w http.ResponseWriter, body string, status int) {
	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
