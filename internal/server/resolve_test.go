package server

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathResolver_ResolveIndex(t *testing.T) {
	root := t.TempDir()
	r, err := NewPathResolver(root)
	require.NoError(t, err)

	id := uuid.MustParse(testBuildID)
	a := r.ResolveIndex(id)

	assert.Equal(t, filepath.Join(root, testBuildID), a.Dir)
	assert.Equal(t, filepath.Join(root, testBuildID, "index.html"), a.Path())
	assert.Equal(t, id, a.BuildID)
}

func TestPathResolver_RelativeRootBecomesAbsolute(t *testing.T) {
	r, err := NewPathResolver("../temp")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(r.Root()))
}

func TestPathResolver_ResolveAsset(t *testing.T) {
	root := t.TempDir()
	r, err := NewPathResolver(root)
	require.NoError(t, err)
	id := uuid.MustParse(testBuildID)
	bundle := filepath.Join(root, testBuildID)

	tests := []struct {
		name    string
		subPath string
		want    string
		unsafe  bool
	}{
		{name: "flat file", subPath: "app.wasm", want: "app.wasm"},
		{name: "nested file", subPath: "assets/js/app.js", want: filepath.Join("assets", "js", "app.js")},
		{name: "inner dot segments normalize", subPath: "assets/../app.js", want: "app.js"},
		{name: "current dir prefix", subPath: "./app.js", want: "app.js"},
		{name: "parent escape", subPath: "../../etc/passwd", unsafe: true},
		{name: "escape after descent", subPath: "assets/../../other/app.js", unsafe: true},
		{name: "bare parent", subPath: "..", unsafe: true},
		{name: "absolute", subPath: "/etc/passwd", unsafe: true},
		{name: "drive letter", subPath: "C:/Windows/win.ini", unsafe: true},
		{name: "backslash", subPath: `..\..\etc\passwd`, unsafe: true},
		{name: "nul byte", subPath: "app.js\x00.wasm", unsafe: true},
		{name: "empty", subPath: "", unsafe: true},
		{name: "dot only", subPath: ".", unsafe: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := r.ResolveAsset(id, tt.subPath)
			if tt.unsafe {
				assert.True(t, errors.Is(err, ErrPathUnsafe), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Name)
			assert.True(t, strings.HasPrefix(a.Path(), bundle+string(filepath.Separator)),
				"%s is not inside %s", a.Path(), bundle)
		})
	}
}

func TestArtifact_Open(t *testing.T) {
	root := t.TempDir()
	dir := writeBundle(t, root, testBuildID, map[string][]byte{
		"app.js":        []byte("console.log(1)"),
		"nested/lib.js": []byte("export {}"),
	})
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "folder.js"), 0o755))

	outside := filepath.Join(root, "secret.js")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link.js")))

	id := uuid.MustParse(testBuildID)
	open := func(name string) error {
		f, err := Artifact{BuildID: id, Dir: dir, Name: name}.Open()
		if err == nil {
			_ = f.Close()
		}
		return err
	}

	assert.NoError(t, open("app.js"))
	assert.NoError(t, open(filepath.Join("nested", "lib.js")))
	assert.Error(t, open("missing.js"), "missing file")
	assert.ErrorIs(t, open("folder.js"), errNotRegularFile)
	assert.Error(t, open("link.js"), "symlink leaving the bundle")
}
