// Package indexer walks a project tree and emits CodeChunk values, one
// stream entry at a time, for every file the configured language set
// supports. It is the Code Indexer of the retrieval pipeline: it owns
// ignore-rule application and per-extension dispatch, while the actual
// chunking is delegated to the Python AST-equivalent pass, the tree-sitter
// generic pass, or the regex fallback.
package indexer

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/codewright/codewright/internal/chunk"
	"github.com/codewright/codewright/internal/codechunk"
	"github.com/codewright/codewright/internal/scanner"
)

// supportedExtensions is the fixed extension whitelist; anything else is
// skipped silently.
var supportedExtensions = map[string]bool{
	".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".go": true, ".java": true, ".cpp": true, ".cc": true, ".c": true,
	".h": true, ".hpp": true, ".hh": true, ".rs": true, ".rb": true, ".php": true,
	".md": true,
}

// DefaultMaxFileBytes is the size threshold beyond which a file, still
// parsed whole, has each chunk's content cut to the last line break within
// its first 500 bytes (a first line longer than that is cut at byte 500).
// The cut follows lines, not grammar nodes.
const DefaultMaxFileBytes = 1 << 20 // 1 MiB

// Options configures a single Walk/IndexProject call.
type Options struct {
	ProjectRoot       string
	IncludeInitFiles  bool
	ExtraExcludeGlobs []string
	MaxFileBytes      int64
}

// Stats accumulates counters a caller surfaces alongside the chunk stream.
type Stats struct {
	mu            sync.Mutex
	TotalFiles    int
	SkippedFiles  int
	TotalChunks   int
}

func (s *Stats) incFiles()   { s.mu.Lock(); s.TotalFiles++; s.mu.Unlock() }
func (s *Stats) incSkipped() { s.mu.Lock(); s.SkippedFiles++; s.mu.Unlock() }
func (s *Stats) addChunks(n int) {
	s.mu.Lock()
	s.TotalChunks += n
	s.mu.Unlock()
}

// Indexer walks a project and produces CodeChunk values.
type Indexer struct {
	parser   *chunk.Parser
	registry *chunk.LanguageRegistry
}

// New creates an Indexer backed by the default tree-sitter language
// registry.
func New() *Indexer {
	return &Indexer{parser: chunk.NewParser(), registry: chunk.DefaultRegistry()}
}

// Close releases the underlying tree-sitter parser.
func (ix *Indexer) Close() { ix.parser.Close() }

// Walk discovers every file under opts.ProjectRoot that survives gitignore
// rules, the extension whitelist, and opts.ExtraExcludeGlobs, delegating
// directory traversal to the concurrent gitignore-aware scanner and
// returning paths in sorted order for deterministic indexing.
func Walk(ctx context.Context, opts Options) ([]string, error) {
	sc, err := scanner.New()
	if err != nil {
		return nil, err
	}

	results, err := sc.Scan(ctx, &scanner.ScanOptions{
		RootDir:          opts.ProjectRoot,
		ExcludePatterns:  opts.ExtraExcludeGlobs,
		RespectGitignore: true,
	})
	if err != nil {
		return nil, err
	}

	var paths []string
	for res := range results {
		if res.Error != nil || res.File == nil {
			continue
		}
		name := filepath.Base(res.File.Path)
		if strings.HasSuffix(name, ".egg-info") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if !supportedExtensions[ext] {
			continue
		}
		if !opts.IncludeInitFiles && name == "__init__.py" {
			continue
		}
		paths = append(paths, res.File.AbsPath)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}

// IndexProject walks opts.ProjectRoot and returns every CodeChunk produced,
// plus accumulated Stats. Files that fail to parse or aren't UTF-8 are
// skipped, never fatal.
func (ix *Indexer) IndexProject(ctx context.Context, opts Options) ([]codechunk.Chunk, *Stats, error) {
	stats := &Stats{}
	paths, err := Walk(ctx, opts)
	if err != nil {
		return nil, stats, err
	}

	var all []codechunk.Chunk
	for _, absPath := range paths {
		if ctx.Err() != nil {
			return all, stats, ctx.Err()
		}
		rel, err := filepath.Rel(opts.ProjectRoot, absPath)
		if err != nil {
			rel = absPath
		}
		relPath := codechunk.NormalizePath(rel)

		chunks, err := ix.IndexFile(ctx, opts, relPath, absPath)
		stats.incFiles()
		if err != nil {
			stats.incSkipped()
			continue
		}
		stats.addChunks(len(chunks))
		all = append(all, chunks...)
	}
	return all, stats, nil
}

// IndexFile parses a single file (given its absolute path and its path
// relative to the project root, forward-slash normalized) into CodeChunk
// values.
func (ix *Indexer) IndexFile(ctx context.Context, opts Options, relPath, absPath string) ([]codechunk.Chunk, error) {
	maxBytes := opts.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}

	source, truncated, err := readTruncatedUTF8(absPath, maxBytes)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(relPath))
	var chunks []codechunk.Chunk

	switch ext {
	case ".py":
		chunks, err = parsePython(ctx, ix.parser, relPath, source)
	case ".md":
		chunks = parseFallback(relPath, source)
	default:
		lang, ok := languageForExtension(ext)
		if ok {
			chunks, err = parseGeneric(ctx, ix.parser, ix.registry, lang, relPath, source)
		}
		if !ok || err != nil || len(chunks) == 0 {
			chunks = parseFallback(relPath, source)
		}
	}
	if err != nil {
		return nil, err
	}
	if truncated {
		for i := range chunks {
			if len(chunks[i].Content) > 500 {
				cut := chunks[i].Content[:500]
				if nl := strings.LastIndexByte(cut, '\n'); nl > 0 {
					cut = cut[:nl]
				}
				chunks[i].Content = cut
			}
		}
	}
	return chunks, nil
}

func languageForExtension(ext string) (string, bool) {
	switch ext {
	case ".py":
		return "python", true
	case ".js", ".jsx", ".mjs":
		return "javascript", true
	case ".ts":
		return "typescript", true
	case ".tsx":
		return "tsx", true
	case ".go":
		return "go", true
	case ".java":
		return "java", true
	case ".c", ".h":
		return "c", true
	case ".cpp", ".cc", ".hpp", ".hh":
		return "cpp", true
	case ".rs":
		return "rust", true
	case ".rb":
		return "ruby", true
	case ".php":
		return "php", true
	default:
		return "", false
	}
}

// readTruncatedUTF8 reads a file, rejecting non-UTF-8 content, and reports
// whether it exceeded maxBytes (content is read in full regardless so line
// spans remain correct; truncation is applied per-chunk by the caller).
func readTruncatedUTF8(path string, maxBytes int64) (data []byte, truncated bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	truncated = info.Size() > maxBytes

	reader := bufio.NewReader(f)
	buf, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, err
	}
	if !utf8.Valid(buf) {
		return nil, false, errNotUTF8
	}
	return buf, truncated, nil
}

var errNotUTF8 = &notUTF8Error{}

type notUTF8Error struct{}

func (*notUTF8Error) Error() string { return "file is not valid UTF-8" }
