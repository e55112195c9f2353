package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codewright/codewright/internal/codechunk"
)

func newExpandCmd() *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "expand <chunk-id>",
		Short: "Walk the dependency graph outward from a chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(cmd, codechunk.ID(args[0]), depth)
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 1, "number of hops to expand")

	return cmd
}

func runExpand(cmd *cobra.Command, id codechunk.ID, depth int) error {
	ctx := cmd.Context()
	root := projectRoot()
	cfg := loadConfig(root)

	r, closeAll, err := openRetriever(ctx, root, cfg)
	if err != nil {
		return fmt.Errorf("open retriever: %w", err)
	}
	defer closeAll()

	results := r.SmartExpand(id, depth)
	w := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(w, "no chunk found with that id")
		return nil
	}
	for _, res := range results {
		fmt.Fprintf(w, "%s:%d-%d  %s  [%s]\n", res.Chunk.FilePath, res.Chunk.StartLine, res.Chunk.EndLine, res.Chunk.QualifiedName, res.Method)
	}
	return nil
}
