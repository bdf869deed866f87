package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrNotAllowed is returned for extensions outside the whitelist.
	ErrNotAllowed = errors.New("file extension not allowed")
	// ErrMalformedRequest is returned when the requested file has no extension.
	ErrMalformedRequest = errors.New("file has no extension")
)

// ContentKind is the type of file the server is willing to return.
type ContentKind int

const (
	KindHTML ContentKind = iota
	KindWasm
	KindJavaScript
)

// MIME is the Content-Type header value for the kind.
func (k ContentKind) MIME() string {
	switch k {
	case KindWasm:
		return "application/wasm"
	case KindJavaScript:
		return "application/javascript"
	default:
		return "text/html"
	}
}

func (k ContentKind) String() string {
	switch k {
	case KindWasm:
		return "wasm"
	case KindJavaScript:
		return "javascript"
	default:
		return "html"
	}
}

// allowedAssets is the sub-path whitelist. html is deliberately absent: the
// index route serves it without consulting this table.
var allowedAssets = map[string]ContentKind{
	"wasm": KindWasm,
	"js":   KindJavaScript,
}

// AssetKind decides whether the file at name may be served from an asset
// route and with which content type.
func AssetKind(name string) (ContentKind, error) {
	ext, ok := extension(filepath.Base(name))
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, ErrMalformedRequest)
	}
	kind, ok := allowedAssets[ext]
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, ErrNotAllowed)
	}
	return kind, nil
}

// extension returns the text after the last dot of base. A single leading
// dot (".env") does not start an extension.
func extension(base string) (string, bool) {
	stem := strings.TrimPrefix(base, ".")
	i := strings.LastIndexByte(stem, '.')
	if i < 0 {
		return "", false
	}
	return stem[i+1:], true
}
