package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codewright/codewright/internal/retriever"
)

func newSearchCmd() *cobra.Command {
	var (
		limit       int
		threshold   float64
		expandGraph bool
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve the code chunks most relevant to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := retriever.RetrieveOptions{
				K:           limit,
				ExpandGraph: expandGraph,
				Threshold:   threshold,
			}
			return runSearch(cmd, args[0], opts, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of results")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum fused score to keep a result")
	cmd.Flags().BoolVar(&expandGraph, "expand", true, "pull in one hop of callers/callees for top results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output results as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts retriever.RetrieveOptions, jsonOutput bool) error {
	ctx := cmd.Context()
	root := projectRoot()
	cfg := loadConfig(root)

	r, closeAll, err := openRetriever(ctx, root, cfg)
	if err != nil {
		return fmt.Errorf("open retriever: %w", err)
	}
	defer closeAll()

	results, partial, err := r.Retrieve(ctx, query, opts)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if jsonOutput {
		return formatSearchJSON(cmd, results, partial)
	}
	return formatSearchText(cmd, results, partial)
}

type searchResultJSON struct {
	FilePath string  `json:"file_path"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Score    float64 `json:"score"`
	Method   string  `json:"method"`
	Start    int     `json:"start_line"`
	End      int     `json:"end_line"`
	Snippet  string  `json:"snippet"`
}

func formatSearchJSON(cmd *cobra.Command, results []retriever.RetrievalResult, partial bool) error {
	out := make([]searchResultJSON, 0, len(results))
	for _, r := range results {
		out = append(out, searchResultJSON{
			FilePath: r.Chunk.FilePath,
			Name:     r.Chunk.QualifiedName,
			Type:     string(r.Chunk.ChunkType),
			Score:    r.Score,
			Method:   string(r.Method),
			Start:    r.Chunk.StartLine,
			End:      r.Chunk.EndLine,
			Snippet:  getSnippet(r.Chunk.Content),
		})
	}
	envelope := struct {
		Partial bool                `json:"partial"`
		Results []searchResultJSON `json:"results"`
	}{Partial: partial, Results: out}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(envelope)
}

func formatSearchText(cmd *cobra.Command, results []retriever.RetrievalResult, partial bool) error {
	w := cmd.OutOrStdout()
	if partial {
		fmt.Fprintln(w, "(partial results: retrieval deadline expired before completion)")
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "no matches")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s:%d-%d  %s  [%s score=%.3f]\n",
			i+1, r.Chunk.FilePath, r.Chunk.StartLine, r.Chunk.EndLine,
			r.Chunk.QualifiedName, r.Method, r.Score)
		fmt.Fprintln(w, "   "+getSnippet(r.Chunk.Content))
	}
	return nil
}

// getSnippet trims a chunk's content to its first non-blank lines for
// display in search output.
func getSnippet(content string) string {
	lines := strings.Split(content, "\n")
	const maxLines = 3
	var kept []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		kept = append(kept, strings.TrimSpace(l))
		if len(kept) >= maxLines {
			break
		}
	}
	s := strings.Join(kept, " / ")
	const maxLen = 160
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
