package server

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrPathUnsafe is returned when a requested sub-path would leave its bundle directory.
var ErrPathUnsafe = errors.New("path escapes bundle directory")

var errNotRegularFile = errors.New("not a regular file")

const indexFile = "index.html"

// Artifact is a validated, request-scoped reference to one file of a bundle.
type Artifact struct {
	BuildID uuid.UUID
	// Dir is the bundle directory, <root>/<build id>.
	Dir string
	// Name is the cleaned path of the file relative to Dir.
	Name string
}

// Path is the absolute path of the artifact.
func (a Artifact) Path() string {
	return filepath.Join(a.Dir, a.Name)
}

// Open opens the artifact for reading. The open is confined to the bundle
// directory, so symlinks inside a bundle cannot point the server elsewhere.
// Directories are refused.
func (a Artifact) Open() (*os.File, error) {
	root, err := os.OpenRoot(a.Dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	f, err := root.Open(a.Name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", a.Name, errNotRegularFile)
	}
	return f, nil
}

// PathResolver maps build ids and untrusted sub-paths onto the bundle root.
// It is purely lexical and never touches the filesystem.
type PathResolver struct {
	root string
}

// NewPathResolver returns a resolver rooted at root, made absolute.
func NewPathResolver(root string) (*PathResolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve bundle root %q: %w", root, err)
	}
	return &PathResolver{root: abs}, nil
}

// Root is the absolute bundle root.
func (p *PathResolver) Root() string {
	return p.root
}

// BundleDir is the directory holding the bundle for id.
func (p *PathResolver) BundleDir(id uuid.UUID) string {
	return filepath.Join(p.root, id.String())
}

// ResolveIndex returns the index.html artifact of a bundle.
func (p *PathResolver) ResolveIndex(id uuid.UUID) Artifact {
	return Artifact{BuildID: id, Dir: p.BundleDir(id), Name: indexFile}
}

// ResolveAsset validates subPath (slash separated, as taken from the URL) and
// returns the artifact it names. Absolute paths, drive letters, backslashes,
// NUL bytes and anything that normalizes to outside the bundle fail with
// ErrPathUnsafe.
func (p *PathResolver) ResolveAsset(id uuid.UUID, subPath string) (Artifact, error) {
	name, err := cleanSubPath(subPath)
	if err != nil {
		return Artifact{}, err
	}

	a := Artifact{BuildID: id, Dir: p.BundleDir(id), Name: name}

	rel, err := filepath.Rel(a.Dir, a.Path())
	if err != nil || !filepath.IsLocal(rel) {
		return Artifact{}, fmt.Errorf("%q: %w", subPath, ErrPathUnsafe)
	}
	return a, nil
}

func cleanSubPath(subPath string) (string, error) {
	unsafe := func() (string, error) {
		return "", fmt.Errorf("%q: %w", subPath, ErrPathUnsafe)
	}

	if subPath == "" || strings.ContainsAny(subPath, "\\\x00") {
		return unsafe()
	}
	if strings.HasPrefix(subPath, "/") || hasDriveLetter(subPath) {
		return unsafe()
	}

	cleaned := path.Clean(subPath)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return unsafe()
	}

	name := filepath.FromSlash(cleaned)
	if !filepath.IsLocal(name) {
		return unsafe()
	}
	return name, nil
}

func hasDriveLetter(s string) bool {
	if len(s) < 2 || s[1] != ':' {
		return false
	}
	c := s[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
