package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codewright/codewright/internal/config"
	"github.com/codewright/codewright/internal/embed"
	"github.com/codewright/codewright/internal/indexer"
	"github.com/codewright/codewright/internal/indexstate"
	"github.com/codewright/codewright/internal/retriever"
	"github.com/codewright/codewright/internal/search"
	"github.com/codewright/codewright/internal/shadow"
	"github.com/codewright/codewright/internal/store"
)

// projectRoot resolves the project root the same way across every subcommand:
// the nearest ancestor directory carrying a .git or .codewright.yaml, falling
// back to the working directory.
func projectRoot() string {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return root
}

// fileExists reports whether path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// openRetriever wires the concrete vector store, lexical index, and embedder
// a Retriever needs from a project root and its loaded configuration. Extra
// options are appended after the defaults, so a caller can layer on e.g.
// retriever.WithProgress.
func openRetriever(ctx context.Context, root string, cfg *config.Config, extra ...retriever.Option) (*retriever.Retriever, func(), error) {
	dataDir := filepath.Join(root, ".codewright")
	stateDir := filepath.Join(dataDir, "state")

	stateStore, err := indexstate.Open(stateDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open index state: %w", err)
	}

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedder, err := embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model)
	if err != nil {
		_ = stateStore.Close()
		return nil, nil, fmt.Errorf("create embedder: %w", err)
	}

	vectorCfg := store.DefaultVectorStoreConfig(embedder.Dimensions())
	vectors, err := store.NewHNSWStore(vectorCfg)
	if err != nil {
		_ = stateStore.Close()
		_ = embedder.Close()
		return nil, nil, fmt.Errorf("create vector store: %w", err)
	}
	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if fileExists(vectorPath) {
		_ = vectors.Load(vectorPath)
	}

	bm25Path := filepath.Join(dataDir, "bm25")
	lexical, err := store.NewBM25IndexWithBackend(bm25Path, store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		_ = stateStore.Close()
		_ = embedder.Close()
		_ = vectors.Close()
		return nil, nil, fmt.Errorf("create lexical index: %w", err)
	}

	idx := indexer.New()

	weights := retrieverWeights(cfg)
	opts := append([]retriever.Option{
		retriever.WithLexicalIndex(lexical),
		retriever.WithWeights(weights),
	}, extra...)
	r := retriever.New(root, vectors, embedder, stateStore, idx, opts...)

	closeAll := func() {
		_ = vectors.Save(vectorPath)
		_ = vectors.Close()
		_ = lexical.Close()
		_ = embedder.Close()
		_ = stateStore.Close()
		idx.Close()
	}
	return r, closeAll, nil
}

func retrieverWeights(cfg *config.Config) search.Weights {
	w := search.DefaultWeights()
	if cfg.Search.BM25Weight > 0 || cfg.Search.SemanticWeight > 0 {
		w = search.Weights{BM25: cfg.Search.BM25Weight, Semantic: cfg.Search.SemanticWeight}
	}
	return w
}

// loadConfig loads the project's effective configuration, falling back to
// hardcoded defaults when no config file is present.
func loadConfig(root string) *config.Config {
	cfg, err := config.Load(root)
	if err != nil {
		return config.NewConfig()
	}
	return cfg
}

// openShadowGuard opens the Shadow-Mode Guard rooted at the project's state
// directory.
func openShadowGuard(root string) (*shadow.Guard, error) {
	stateDir := filepath.Join(root, ".codewright", "state")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, err
	}
	return shadow.Open(stateDir)
}
