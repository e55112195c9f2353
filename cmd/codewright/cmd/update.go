package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codewright/codewright/internal/output"
)

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <file>",
		Short: "Re-index a single file",
		Long:  `Update re-chunks and re-embeds one file, replacing its entries in the index without a full rebuild.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, args[0])
		},
	}

	return cmd
}

func runUpdate(cmd *cobra.Command, relPath string) error {
	ctx := cmd.Context()
	root := projectRoot()
	cfg := loadConfig(root)
	out := output.New(cmd.OutOrStdout())

	r, closeAll, err := openRetriever(ctx, root, cfg)
	if err != nil {
		return fmt.Errorf("open retriever: %w", err)
	}
	defer closeAll()

	n, err := r.UpdateFile(ctx, relPath)
	if err != nil {
		return fmt.Errorf("update %s: %w", relPath, err)
	}

	out.Success(fmt.Sprintf("re-indexed %s: %d chunks", relPath, n))
	return nil
}
