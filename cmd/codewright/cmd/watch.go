package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codewright/codewright/internal/output"
	"github.com/codewright/codewright/internal/retriever"
	"github.com/codewright/codewright/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the project tree and keep the index up to date",
		Long: `Watch starts a filesystem watcher over the project root and calls
the incremental update path for every changed file, so the index stays
current without a manual rebuild.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd)
		},
	}
	return cmd
}

func runWatch(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := projectRoot()
	cfg := loadConfig(root)
	out := output.New(cmd.OutOrStdout())

	r, closeAll, err := openRetriever(ctx, root, cfg)
	if err != nil {
		return fmt.Errorf("open retriever: %w", err)
	}
	defer closeAll()

	w, err := watcher.NewHybridWatcher(watcher.Options{})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	if err := w.Start(ctx, root); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	out.Status("👀", fmt.Sprintf("watching %s for changes", root))

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			applyWatchBatch(ctx, out, r, batch)
		case werr, ok := <-w.Errors():
			if !ok {
				continue
			}
			out.Warningf("watcher error: %v", werr)
		}
	}
}

func applyWatchBatch(ctx context.Context, out *output.Writer, r *retriever.Retriever, batch []watcher.FileEvent) {
	seen := make(map[string]bool, len(batch))
	for _, ev := range batch {
		if ev.IsDir {
			continue
		}
		paths := []string{ev.Path}
		if ev.Operation == watcher.OpRename && ev.OldPath != "" {
			paths = append(paths, ev.OldPath)
		}
		for _, p := range paths {
			if seen[p] {
				continue
			}
			seen[p] = true
			if _, err := r.UpdateFile(ctx, p); err != nil {
				out.Warningf("update %s: %v", p, err)
				continue
			}
			out.Statusf("🔄", "re-indexed %s", p)
		}
	}
}
