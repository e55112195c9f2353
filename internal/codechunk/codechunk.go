// Package codechunk defines the central retrieval unit of the indexing
// pipeline: a named, line-delimited region of source code along with the
// structural metadata (dependencies, parent, signature) the dependency
// graph and retriever need.
package codechunk

import (
	"crypto/md5" //nolint:gosec // content-addressable id, not a security boundary
	"encoding/hex"
	"sort"
	"strings"
)

// Type enumerates the kinds of chunk the parser can emit.
type Type string

const (
	TypeFunction   Type = "function"
	TypeMethod     Type = "method"
	TypeClass      Type = "class"
	TypeImports    Type = "imports"
	TypeModuleDoc  Type = "module_doc"
	TypeScript     Type = "script"
	TypeCodeBlock  Type = "code_block"
)

// ID is the stable, content-independent identifier of a chunk.
type ID string

// New derives the ChunkId from the pair (filePath, qualifiedName), the sole
// inputs that participate in the hash. Renaming a symbol or moving a file
// changes the id; changing only the body content does not.
func New(filePath, qualifiedName string) ID {
	sum := md5.Sum([]byte(filePath + "::" + qualifiedName)) //nolint:gosec
	return ID(hex.EncodeToString(sum[:])[:12])
}

// Chunk is the CodeChunk entity: a single retrievable unit produced by the
// indexer from one file.
type Chunk struct {
	ChunkID       ID
	FilePath      string // relative to project root, forward-slash
	ChunkType     Type
	Name          string
	QualifiedName string // parent.Name when Parent is set, else Name
	Content       string
	StartLine     int // 1-indexed, inclusive
	EndLine       int // 1-indexed, inclusive
	Dependencies  []string
	Parent        string
	Signature     string
	Docstring     string
}

// QualifiedName computes parent.name when parent is non-empty, else name.
func QualifiedName(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// WithID returns a copy of c with ChunkID derived from its current
// FilePath/QualifiedName. Call this after all naming fields are final.
func (c Chunk) WithID() Chunk {
	if c.QualifiedName == "" {
		c.QualifiedName = QualifiedName(c.Parent, c.Name)
	}
	c.ChunkID = New(c.FilePath, c.QualifiedName)
	return c
}

// EmbeddingDocument renders the text handed to the embedding provider:
// "<type>::<name>\n<docstring?>\n<signature-or-content[:500]>".
func (c Chunk) EmbeddingDocument() string {
	lines := []string{string(c.ChunkType) + "::" + c.Name}
	if c.Docstring != "" {
		lines = append(lines, c.Docstring)
	}
	if c.Signature != "" {
		lines = append(lines, c.Signature)
	} else {
		content := c.Content
		if len(content) > 500 {
			content = content[:500]
		}
		lines = append(lines, content)
	}
	return strings.Join(lines, "\n")
}

// SortDependencies returns a sorted, deduplicated copy of deps, dropping any
// name present in builtins.
func SortDependencies(deps []string, builtins map[string]bool) []string {
	seen := make(map[string]bool, len(deps))
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		if d == "" || builtins[d] || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// NormalizePath converts host path separators to forward slashes, the
// canonical form every FilePath in persisted state uses.
func NormalizePath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
