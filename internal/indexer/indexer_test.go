package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewright/codewright/internal/codechunk"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	return full
}

func TestWalkPrunesIgnoredDirsAndExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/main.py", "x = 1\n")
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = 1\n")
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	writeFile(t, root, "README.unsupported", "nope\n")

	paths, err := Walk(context.Background(), Options{ProjectRoot: root})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Contains(t, paths[0], "main.py")
}

func TestWalkSkipsInitFilesByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pkg/__init__.py", "\n")
	writeFile(t, root, "pkg/mod.py", "x = 1\n")

	paths, err := Walk(context.Background(), Options{ProjectRoot: root})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Contains(t, paths[0], "mod.py")

	paths, err = Walk(context.Background(), Options{ProjectRoot: root, IncludeInitFiles: true})
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestIndexFileScenarioAFunctionSearch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/auth.py", "def authenticate_user(u, p):\n    return verify_password(p, u.hash)\n")

	ix := New()
	defer ix.Close()

	chunks, _, err := ix.IndexProject(context.Background(), Options{ProjectRoot: root})
	require.NoError(t, err)

	var fn *codechunk.Chunk
	for i := range chunks {
		if chunks[i].Name == "authenticate_user" {
			fn = &chunks[i]
		}
	}
	require.NotNil(t, fn)
	assert.Equal(t, codechunk.TypeFunction, fn.ChunkType)
	assert.Contains(t, fn.Dependencies, "verify_password")
}

func TestIndexFileClassAndMethods(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/widget.py", `class Widget:
    """A widget."""

    def render(self):
        return draw(self)

    def resize(self, w, h):
        pass
`)
	ix := New()
	defer ix.Close()
	chunks, _, err := ix.IndexProject(context.Background(), Options{ProjectRoot: root})
	require.NoError(t, err)

	var class *codechunk.Chunk
	var methods []codechunk.Chunk
	for i := range chunks {
		if chunks[i].ChunkType == codechunk.TypeClass {
			class = &chunks[i]
		}
		if chunks[i].ChunkType == codechunk.TypeMethod {
			methods = append(methods, chunks[i])
		}
	}
	require.NotNil(t, class)
	assert.Equal(t, "Widget", class.Name)
	assert.Contains(t, class.Docstring, "A widget")
	require.Len(t, methods, 2)
	for _, m := range methods {
		assert.Equal(t, "Widget", m.Parent)
		assert.Equal(t, "Widget."+m.Name, m.QualifiedName)
	}
}

func TestChunkIDStableAcrossContentChange(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/util.py", "def helper():\n    return 1\n")

	ix := New()
	defer ix.Close()
	chunks1, _, err := ix.IndexProject(context.Background(), Options{ProjectRoot: root})
	require.NoError(t, err)

	writeFile(t, root, "src/util.py", "def helper():\n    return 2\n")
	chunks2, _, err := ix.IndexProject(context.Background(), Options{ProjectRoot: root})
	require.NoError(t, err)

	require.Len(t, chunks1, 1)
	require.Len(t, chunks2, 1)
	assert.Equal(t, chunks1[0].ChunkID, chunks2[0].ChunkID)
}

func TestChunkIDChangesOnRename(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/util.py", "def helper():\n    return 1\n")
	ix := New()
	defer ix.Close()
	before, _, err := ix.IndexProject(context.Background(), Options{ProjectRoot: root})
	require.NoError(t, err)

	writeFile(t, root, "src/util.py", "def helper2():\n    return 1\n")
	after, _, err := ix.IndexProject(context.Background(), Options{ProjectRoot: root})
	require.NoError(t, err)

	require.Len(t, before, 1)
	require.Len(t, after, 1)
	assert.NotEqual(t, before[0].ChunkID, after[0].ChunkID)
}

func TestGenericGoFunctionParsing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n")

	ix := New()
	defer ix.Close()
	chunks, _, err := ix.IndexProject(context.Background(), Options{ProjectRoot: root})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hello", chunks[0].Name)
	assert.Equal(t, codechunk.TypeFunction, chunks[0].ChunkType)
}

func TestNonUTF8FileSkipped(t *testing.T) {
	root := t.TempDir()
	full := filepath.Join(root, "bad.py")
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte{0xff, 0xfe, 0x00, 0x01}, 0o644))

	ix := New()
	defer ix.Close()
	chunks, stats, err := ix.IndexProject(context.Background(), Options{ProjectRoot: root})
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Equal(t, 1, stats.SkippedFiles)
}

func TestEmptyProjectProducesNoChunks(t *testing.T) {
	root := t.TempDir()
	ix := New()
	defer ix.Close()
	chunks, stats, err := ix.IndexProject(context.Background(), Options{ProjectRoot: root})
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Equal(t, 0, stats.TotalFiles)
}
