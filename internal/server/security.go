// security.go - Response headers for bundle routes and the build path guard
package server

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const buildPrefix = "/build/"

// buildHeadersMiddleware hardens responses from the bundle routes. Bundles
// are single-use, so nothing may be cached, and browsers must honour the
// Content-Type the whitelist chose.
func buildHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, buildPrefix) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Referrer-Policy", "no-referrer")
		}
		next.ServeHTTP(w, r)
	})
}

// buildPathGuard answers 404 for bundle paths with dot or empty segments.
// Left alone, ServeMux would redirect them to their cleaned form.
func buildPathGuard(logger *zap.Logger, metrics *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, buildPrefix) && hasUnsafeSegment(r.URL.Path[len(buildPrefix):]) {
			metrics.RecordUnsafePath()
			logger.Warn("rejected unsafe artifact path",
				zap.NamedError("err", ErrPathUnsafe),
				zap.String("path", r.URL.Path),
				zap.String("build_id", buildIDSegment(r.URL.Path)),
			)
			replyError(w, bodyNotFound, http.StatusNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// hasUnsafeSegment reports whether rest contains a ".", ".." or empty segment.
// A single trailing slash is allowed.
func hasUnsafeSegment(rest string) bool {
	rest = strings.TrimSuffix(rest, "/")
	for _, seg := range strings.Split(rest, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

func buildIDSegment(p string) string {
	id, _, _ := strings.Cut(strings.TrimPrefix(p, buildPrefix), "/")
	return id
}
