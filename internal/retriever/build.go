package retriever

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/codewright/codewright/internal/codechunk"
	"github.com/codewright/codewright/internal/depgraph"
	"github.com/codewright/codewright/internal/indexer"
	"github.com/codewright/codewright/internal/indexstate"
	"github.com/codewright/codewright/internal/logging"
	"github.com/codewright/codewright/internal/store"
)

var buildLog = logging.Component("retriever")

// embedBatchSize is the upsert batch size named in the spec's build_index
// step ("upsert in batches of 100").
const embedBatchSize = 100

// embedConcurrency bounds how many batches are embedded at once.
const embedConcurrency = 4

// BuildIndex walks the project, reconciles it against the Index State
// Store, and (re)embeds every changed file. With force it first wipes the
// vector store, lexical index, and state store entirely.
func (r *Retriever) BuildIndex(ctx context.Context, force bool) (int, error) {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()
	r.setState(StateBuilding)

	if force {
		if err := r.wipe(ctx); err != nil {
			r.setState(StateFailed)
			return 0, err
		}
	}

	paths, err := indexer.Walk(ctx, indexer.Options{ProjectRoot: r.projectRoot})
	if err != nil {
		r.setState(StateFailed)
		return 0, err
	}

	relPaths := make([]string, 0, len(paths))
	hashes := make(map[string]string, len(paths))
	absByRel := make(map[string]string, len(paths))
	for _, abs := range paths {
		rel, err := filepath.Rel(r.projectRoot, abs)
		if err != nil {
			rel = abs
		}
		rel = codechunk.NormalizePath(rel)
		content, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		relPaths = append(relPaths, rel)
		hashes[rel] = indexstate.ContentHash(content)
		absByRel[rel] = abs
	}

	changed := r.stateStore.ChangedFiles(relPaths, hashes)
	stale := r.stateStore.StaleFiles(relPaths)

	for _, path := range stale {
		ids, err := r.stateStore.Forget(path)
		if err != nil {
			r.setState(StateFailed)
			return 0, err
		}
		r.dropChunks(path, ids)
	}

	total := 0
	for i, path := range changed {
		abs := absByRel[path]
		n, err := r.indexOneFile(ctx, path, abs, hashes[path])
		if err != nil {
			r.setState(StateFailed)
			return total, err
		}
		total += n
		if r.onProgress != nil {
			r.onProgress(i+1, len(changed), path)
		}
	}

	r.rebuildGraph()
	r.mu.Lock()
	r.cache.Purge()
	r.mu.Unlock()

	r.setState(StateReady)
	buildLog.Info("build index complete",
		slog.Int("files_changed", len(changed)), slog.Int("files_stale", len(stale)),
		slog.Int("chunks", total))
	return total, nil
}

// UpdateFile re-indexes a single file, the operation the file watcher
// drives on debounced change events.
func (r *Retriever) UpdateFile(ctx context.Context, relPath string) (int, error) {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()
	r.setState(StateUpdating)

	relPath = codechunk.NormalizePath(relPath)
	abs := filepath.Join(r.projectRoot, relPath)

	content, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		ids, ferr := r.stateStore.Forget(relPath)
		if ferr != nil {
			r.setState(StateFailed)
			return 0, ferr
		}
		r.dropChunks(relPath, ids)
		r.rebuildGraph()
		r.setState(StateReady)
		buildLog.Info("file removed from index", slog.String("path", relPath))
		return 0, nil
	}
	if err != nil {
		r.setState(StateFailed)
		return 0, err
	}

	n, err := r.indexOneFile(ctx, relPath, abs, indexstate.ContentHash(content))
	if err != nil {
		r.setState(StateFailed)
		return 0, err
	}

	r.rebuildGraph()
	r.mu.Lock()
	r.cache.Purge()
	r.mu.Unlock()

	r.setState(StateReady)
	return n, nil
}

// indexOneFile parses relPath, embeds every chunk, upserts successes into
// the vector and lexical indexes, and records the resulting FileRecord.
// Embedding failures are skipped rather than failing the whole file, per
// the spec's failure semantics: a chunk that fails to embed is not added
// to the graph and its id is not written into the FileRecord.
func (r *Retriever) indexOneFile(ctx context.Context, relPath, absPath, contentHash string) (int, error) {
	if existingIDs, ok := r.stateStore.Get(relPath); ok {
		r.dropChunks(relPath, existingIDs.ChunkIDs)
		if r.vectors != nil {
			_ = r.vectors.Delete(ctx, idStrings(existingIDs.ChunkIDs))
		}
		if r.lexical != nil {
			_ = r.lexical.Delete(ctx, idStrings(existingIDs.ChunkIDs))
		}
	}

	chunks, err := r.idx.IndexFile(ctx, indexer.Options{ProjectRoot: r.projectRoot}, relPath, absPath)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, r.stateStore.Record(relPath, contentHash, nil)
	}

	chosen := make([]codechunk.Chunk, len(chunks))
	vectors := make([][]float32, len(chunks))
	succeeded := make([]bool, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(chunks); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			docs := make([]string, end-start)
			for i := start; i < end; i++ {
				docs[i-start] = chunks[i].EmbeddingDocument()
			}
			embedded, err := r.embedder.EmbedBatch(gctx, docs)
			if err != nil {
				return nil // batch-level embedding failure: skip the whole batch, don't fail the file
			}
			for i := start; i < end && i-start < len(embedded); i++ {
				chosen[i] = chunks[i]
				vectors[i] = embedded[i-start]
				succeeded[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	var keptChunks []codechunk.Chunk
	var keptIDs []string
	var keptVectors [][]float32
	for i, did := range succeeded {
		if did {
			keptChunks = append(keptChunks, chosen[i])
			keptIDs = append(keptIDs, string(chosen[i].ChunkID))
			keptVectors = append(keptVectors, vectors[i])
		}
	}

	if len(keptChunks) > 0 {
		if err := r.vectors.Add(ctx, keptIDs, keptVectors); err != nil {
			return 0, err
		}
		if r.lexical != nil {
			docs := make([]*store.Document, len(keptChunks))
			for i, c := range keptChunks {
				docs[i] = &store.Document{ID: string(c.ChunkID), Content: c.EmbeddingDocument()}
			}
			_ = r.lexical.Index(ctx, docs)
		}
	}

	r.mu.Lock()
	for _, c := range keptChunks {
		r.chunks[c.ChunkID] = c
		r.byFile[relPath] = append(r.byFile[relPath], c.ChunkID)
	}
	r.mu.Unlock()

	chunkIDs := make([]codechunk.ID, len(keptChunks))
	for i, c := range keptChunks {
		chunkIDs[i] = c.ChunkID
	}
	if err := r.stateStore.Record(relPath, contentHash, chunkIDs); err != nil {
		return 0, err
	}
	return len(keptChunks), nil
}

func (r *Retriever) dropChunks(relPath string, ids []codechunk.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.chunks, id)
	}
	delete(r.byFile, relPath)
}

func (r *Retriever) rebuildGraph() {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]codechunk.Chunk, 0, len(r.chunks))
	for _, c := range r.chunks {
		all = append(all, c)
	}
	r.graph = depgraph.Build(all)
}

func (r *Retriever) wipe(ctx context.Context) error {
	if r.vectors != nil {
		if err := r.vectors.Delete(ctx, r.vectors.AllIDs()); err != nil {
			return err
		}
	}
	if r.lexical != nil {
		ids, err := r.lexical.AllIDs()
		if err == nil {
			_ = r.lexical.Delete(ctx, ids)
		}
	}
	if err := r.stateStore.Reset(); err != nil {
		return err
	}
	r.mu.Lock()
	r.chunks = make(map[codechunk.ID]codechunk.Chunk)
	r.byFile = make(map[string][]codechunk.ID)
	r.graph = depgraph.New()
	r.cache.Purge()
	r.mu.Unlock()
	return nil
}

func idStrings(ids []codechunk.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
