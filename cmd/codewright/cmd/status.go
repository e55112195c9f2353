package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewright/codewright/internal/async"
	"github.com/codewright/codewright/internal/config"
	"github.com/codewright/codewright/internal/indexstate"
	"github.com/codewright/codewright/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the current index including:
  - Number of indexed files and chunks
  - Storage sizes (BM25, vectors)
  - Embedder configuration`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		cwd, _ := os.Getwd()
		root = cwd
	}

	stateDir := filepath.Join(root, ".codewright", "state")
	if !fileExists(stateDir) {
		return fmt.Errorf("no index found in %s\nRun 'codewright build' to create one", root)
	}

	info, err := collectStatus(ctx, root, stateDir)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	noColor := ui.DetectNoColor()
	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)

	if jsonOutput {
		return renderer.RenderJSON(info)
	}

	return renderer.Render(info)
}

func collectStatus(_ context.Context, root, stateDir string) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		ProjectName: filepath.Base(root),
	}

	stateStore, err := indexstate.Open(stateDir)
	if err != nil {
		return info, fmt.Errorf("failed to open index state: %w", err)
	}
	defer func() { _ = stateStore.Close() }()

	info.TotalFiles = stateStore.Len()
	info.TotalChunks = len(stateStore.AllChunkIDs())

	if fi, err := os.Stat(stateDir); err == nil {
		info.LastIndexed = fi.ModTime()
	} else {
		info.LastIndexed = time.Time{}
	}

	dataDir := filepath.Dir(stateDir)
	bm25Path := filepath.Join(dataDir, "bm25")
	info.BM25Size = getDirSize(bm25Path)

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	info.VectorSize = getFileSize(vectorPath)

	info.TotalSize = info.BM25Size + info.VectorSize

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	info.EmbedderType = cfg.Embeddings.Provider
	if info.EmbedderType == "" {
		info.EmbedderType = "hugot"
	}

	info.EmbedderStatus = "ready"
	info.EmbedderModel = cfg.Embeddings.Model
	if info.EmbedderModel == "" {
		info.EmbedderModel = "embeddinggemma"
	}

	info.WatcherStatus = "n/a"

	info.IndexingStatus = "idle"
	if async.HasIncompleteLock(dataDir) {
		info.IndexingStatus = "in_progress"
	}

	return info, nil
}

// getFileSize returns the size of a file in bytes.
func getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// getDirSize returns the total size of all files in a directory.
func getDirSize(path string) int64 {
	var size int64

	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})

	return size
}
