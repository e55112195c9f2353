package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/codewright/codewright/internal/retriever"
)

func newContextCmd() *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "context <name>",
		Short: "Show callers, callees, and siblings of a function or class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContext(cmd, args[0], filePath)
		},
	}

	cmd.Flags().StringVar(&filePath, "file", "", "disambiguate by file path when the name is not unique")

	return cmd
}

func runContext(cmd *cobra.Command, name, filePath string) error {
	ctx := cmd.Context()
	root := projectRoot()
	cfg := loadConfig(root)

	r, closeAll, err := openRetriever(ctx, root, cfg)
	if err != nil {
		return fmt.Errorf("open retriever: %w", err)
	}
	defer closeAll()

	mc := r.GetModificationContext(name, filePath)
	printContext(cmd, mc)
	return nil
}

func printContext(cmd *cobra.Command, mc retriever.ModificationContext) {
	w := cmd.OutOrStdout()
	if mc.Target == nil {
		fmt.Fprintf(w, "no chunk found matching that name\n")
		return
	}
	fmt.Fprintf(w, "target: %s:%d-%d %s\n", mc.Target.Chunk.FilePath, mc.Target.Chunk.StartLine, mc.Target.Chunk.EndLine, mc.Target.Chunk.QualifiedName)
	printRelated(w, "callers", mc.Callers)
	printRelated(w, "callees", mc.Callees)
	printRelated(w, "siblings", mc.Siblings)
}

func printRelated(w io.Writer, label string, results []retriever.RetrievalResult) {
	fmt.Fprintf(w, "%s (%d):\n", label, len(results))
	for _, r := range results {
		fmt.Fprintf(w, "  - %s:%d-%d %s\n", r.Chunk.FilePath, r.Chunk.StartLine, r.Chunk.EndLine, r.Chunk.QualifiedName)
	}
}
