package indexer

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/codewright/codewright/internal/chunk"
	"github.com/codewright/codewright/internal/codechunk"
)

// genericBuiltins mirrors pythonBuiltins for the non-Python languages that
// go through the tree-sitter generic pass; it is intentionally small since
// these languages have far fewer common free functions to exclude.
var genericBuiltins = map[string]bool{
	"len": true, "println": true, "print": true, "printf": true,
	"make": true, "new": true, "append": true, "panic": true, "recover": true,
}

// parseGeneric handles every tree-sitter-supported language other than
// Python: functions, methods, classes/structs/interfaces are extracted
// structurally; everything else that doesn't fit those node types is left
// to the regex fallback.
func parseGeneric(ctx context.Context, parser *chunk.Parser, registry *chunk.LanguageRegistry, language, filePath string, source []byte) ([]codechunk.Chunk, error) {
	cfg, ok := registry.GetByName(language)
	if !ok {
		return nil, nil
	}
	tree, err := parser.Parse(ctx, source, language)
	if err != nil || tree == nil {
		return nil, err
	}

	var out []codechunk.Chunk
	isClassType := typeSet(cfg.ClassTypes, cfg.InterfaceTypes)
	isFuncType := typeSet(cfg.FunctionTypes)
	isMethodType := typeSet(cfg.MethodTypes)

	var walk func(n *chunk.Node, parent string, parentIsClass bool)
	walk = func(n *chunk.Node, parent string, parentIsClass bool) {
		switch {
		case isClassType[n.Type]:
			name := firstNamedChild(n, source)
			span := nodeLines(n)
			deps := codechunk.SortDependencies(collectGenericCallNames(n, source), genericBuiltins)
			c := codechunk.Chunk{
				FilePath:     filePath,
				ChunkType:    codechunk.TypeClass,
				Name:         name,
				Content:      n.GetContent(source),
				StartLine:    span.start,
				EndLine:      span.end,
				Dependencies: deps,
			}.WithID()
			out = append(out, c)
			for _, child := range n.Children {
				walk(child, name, true)
			}
			return
		case isFuncType[n.Type] || isMethodType[n.Type]:
			name := firstNamedChild(n, source)
			span := nodeLines(n)
			content := n.GetContent(source)
			chunkType := codechunk.TypeFunction
			effectiveParent := ""
			if parentIsClass || isMethodType[n.Type] {
				chunkType = codechunk.TypeMethod
				effectiveParent = parent
			}
			deps := codechunk.SortDependencies(collectGenericCallNames(n, source), genericBuiltins)
			c := codechunk.Chunk{
				FilePath:     filePath,
				ChunkType:    chunkType,
				Name:         name,
				Parent:       effectiveParent,
				Content:      content,
				StartLine:    span.start,
				EndLine:      span.end,
				Dependencies: deps,
				Signature:    functionSignature(content),
			}.WithID()
			out = append(out, c)
			return
		default:
			for _, child := range n.Children {
				walk(child, parent, parentIsClass)
			}
		}
	}
	walk(tree.Root, "", false)

	sort.Slice(out, func(i, j int) bool { return out[i].StartLine < out[j].StartLine })
	return out, nil
}

func typeSet(groups ...[]string) map[string]bool {
	m := make(map[string]bool)
	for _, g := range groups {
		for _, t := range g {
			m[t] = true
		}
	}
	return m
}

func firstNamedChild(n *chunk.Node, source []byte) string {
	for _, c := range n.Children {
		if c.Type == "identifier" || c.Type == "field_identifier" || c.Type == "type_identifier" {
			return c.GetContent(source)
		}
	}
	return ""
}

func collectGenericCallNames(n *chunk.Node, source []byte) []string {
	var names []string
	n.Walk(func(node *chunk.Node) bool {
		switch node.Type {
		case "call_expression", "call", "method_invocation":
			if len(node.Children) > 0 {
				names = append(names, callTargetName(node.Children[0], source))
			}
		}
		return true
	})
	return names
}

// blockStartRE mirrors the original regex fallback's declaration detector:
// function/class/interface/struct/impl/const/let/var/type/def headers.
var blockStartRE = regexp.MustCompile(`^\s*(func|function|class|interface|struct|impl|const|let|var|type|def)\b`)
var mdHeaderRE = regexp.MustCompile(`^#{1,6}\s`)

const fallbackFlushLines = 50

// parseFallback is the last-resort regex block scanner used when tree-sitter
// has no grammar for the file's extension. It never errors; worst case it
// returns a single code_block chunk for the whole file.
func parseFallback(filePath string, source []byte) []codechunk.Chunk {
	lines := splitLines(source)
	if len(lines) == 0 {
		return nil
	}
	var out []codechunk.Chunk
	start := 1
	flush := func(end int) {
		if end < start {
			return
		}
		content := strings.Join(lines[start-1:end], "\n")
		if strings.TrimSpace(content) == "" {
			start = end + 1
			return
		}
		c := codechunk.Chunk{
			FilePath:  filePath,
			ChunkType: codechunk.TypeCodeBlock,
			Name:      "block",
			Content:   content,
			StartLine: start,
			EndLine:   end,
		}.WithID()
		out = append(out, c)
		start = end + 1
	}

	for i, line := range lines {
		lineNum := i + 1
		isBoundary := blockStartRE.MatchString(line) || mdHeaderRE.MatchString(line)
		if isBoundary && lineNum > start && lineNum-start > 5 {
			flush(lineNum - 1)
		}
		if lineNum-start+1 >= fallbackFlushLines {
			flush(lineNum)
		}
	}
	flush(len(lines))
	return out
}
