package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewright/codewright/internal/async"
	"github.com/codewright/codewright/internal/output"
	"github.com/codewright/codewright/internal/retriever"
	"github.com/codewright/codewright/internal/ui"
)

func newBuildCmd() *cobra.Command {
	var force bool
	var background bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the index for the current project",
		Long: `Build walks the project tree, chunks every supported source file,
embeds each chunk, and writes the resulting vectors, lexical postings, and
dependency graph to .codewright/.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if background {
				return runBuildBackground(cmd, force)
			}
			return runBuild(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "rebuild from scratch, discarding the existing index")
	cmd.Flags().BoolVar(&background, "background", false, "start indexing in the background and return immediately")

	return cmd
}

func runBuild(cmd *cobra.Command, force bool) error {
	ctx := cmd.Context()
	root := projectRoot()
	cfg := loadConfig(root)
	out := output.New(cmd.OutOrStdout())

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(), ui.WithProjectDir(root)))
	if err := renderer.Start(ctx); err != nil {
		out.Warningf("progress display unavailable: %v", err)
	}

	progress := func(done, total int, file string) {
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage: ui.StageIndexing, Current: done, Total: total, CurrentFile: file,
		})
	}

	started := time.Now()
	r, closeAll, err := openRetriever(ctx, root, cfg, retriever.WithProgress(progress))
	if err != nil {
		_ = renderer.Stop()
		return fmt.Errorf("open retriever: %w", err)
	}
	defer closeAll()

	n, err := r.BuildIndex(ctx, force)
	if err != nil {
		renderer.AddError(ui.ErrorEvent{Err: err})
		_ = renderer.Stop()
		return fmt.Errorf("build index: %w", err)
	}

	renderer.Complete(ui.CompletionStats{Chunks: n, Duration: time.Since(started)})
	return renderer.Stop()
}

// runBuildBackground starts the build in a detached goroutine guarded by an
// indexing.lock file under .codewright/, so a concurrent `codewright status`
// can report the in-progress state, and returns without waiting for it.
func runBuildBackground(cmd *cobra.Command, force bool) error {
	root := projectRoot()
	cfg := loadConfig(root)
	out := output.New(cmd.OutOrStdout())
	dataDir := filepath.Join(root, ".codewright")

	if async.HasIncompleteLock(dataDir) {
		return fmt.Errorf("an index build is already in progress for %s", root)
	}

	bg := async.NewBackgroundIndexer(async.IndexerConfig{DataDir: dataDir})
	bg.IndexFunc = func(ctx context.Context, progress *async.IndexProgress) error {
		progress.SetStage(async.StageScanning, 0)
		r, closeAll, err := openRetriever(ctx, root, cfg)
		if err != nil {
			return err
		}
		defer closeAll()

		progress.SetStage(async.StageIndexing, 0)
		n, err := r.BuildIndex(ctx, force)
		if err != nil {
			return err
		}
		progress.SetChunksTotal(n)
		progress.UpdateChunks(n)
		return nil
	}

	bg.Start(cmd.Context())
	out.Status("🔨", fmt.Sprintf("building index for %s in the background", root))
	return nil
}
