package indexer

import (
	"context"
	"sort"
	"strings"

	"github.com/codewright/codewright/internal/chunk"
	"github.com/codewright/codewright/internal/codechunk"
)

// pythonBuiltins is the curated set of call targets subtracted from
// dependency lists so that e.g. `print(x)` does not produce a phantom edge
// to a node named "print".
var pythonBuiltins = map[string]bool{
	"print": true, "len": true, "str": true, "int": true, "float": true,
	"list": true, "dict": true, "set": true, "tuple": true, "range": true,
	"enumerate": true, "zip": true, "map": true, "filter": true, "open": true,
	"isinstance": true, "issubclass": true, "hasattr": true, "getattr": true,
	"setattr": true, "super": true, "type": true, "bool": true, "bytes": true,
	"repr": true, "sorted": true, "reversed": true, "iter": true, "next": true,
}

const scriptGapMergeLines = 5

// parsePython implements the structured Python chunking algorithm: module
// docstring, a single leading imports chunk, one chunk per top-level
// function/class, one method chunk per class method, and script chunks
// covering everything else with runs merged across gaps of up to 5 lines.
func parsePython(ctx context.Context, parser *chunk.Parser, filePath string, source []byte) ([]codechunk.Chunk, error) {
	tree, err := parser.Parse(ctx, source, "python")
	if err != nil || tree == nil {
		return nil, err
	}

	lines := splitLines(source)
	var out []codechunk.Chunk
	covered := make([]bool, len(lines)+2) // 1-indexed

	children := tree.Root.Children
	idx := 0

	// (a) module docstring
	if idx < len(children) {
		if doc, ok := moduleDocstring(children[idx], source); ok {
			out = append(out, doc)
			markCovered(covered, doc.StartLine, doc.EndLine)
			idx++
		}
	}

	// (b) contiguous import prologue
	importStart := idx
	for idx < len(children) && isImportNode(children[idx]) {
		idx++
	}
	if idx > importStart {
		first, last := children[importStart], children[idx-1]
		startLine, endLine := nodeLines(first), nodeLines(last)
		content := strings.Join(lines[startLine.start-1:endLine.end], "\n")
		c := codechunk.Chunk{
			FilePath:  filePath,
			ChunkType: codechunk.TypeImports,
			Name:      "imports",
			Content:   content,
			StartLine: startLine.start,
			EndLine:   endLine.end,
		}
		out = append(out, c.WithID())
		markCovered(covered, c.StartLine, c.EndLine)
	}

	// (c)/(d) top-level functions and classes
	var scriptRuns [][2]int
	runStart, runEnd := -1, -1
	flushRun := func() {
		if runStart != -1 {
			scriptRuns = append(scriptRuns, [2]int{runStart, runEnd})
			runStart, runEnd = -1, -1
		}
	}

	for ; idx < len(children); idx++ {
		node := children[idx]
		switch node.Type {
		case "function_definition":
			flushRun()
			fn := functionChunk(node, source, lines, filePath, "")
			out = append(out, fn)
			markCovered(covered, fn.StartLine, fn.EndLine)
		case "class_definition":
			flushRun()
			header, methods := classChunks(node, source, lines, filePath)
			out = append(out, header)
			markCovered(covered, header.StartLine, header.EndLine)
			for _, m := range methods {
				out = append(out, m)
				markCovered(covered, m.StartLine, m.EndLine)
			}
		default:
			span := nodeLines(node)
			if runStart == -1 {
				runStart, runEnd = span.start, span.end
			} else if span.start-runEnd <= scriptGapMergeLines {
				runEnd = span.end
			} else {
				flushRun()
				runStart, runEnd = span.start, span.end
			}
		}
	}
	flushRun()

	for _, run := range scriptRuns {
		start, end := run[0], run[1]
		for start <= len(lines) && start >= 1 && covered[start] {
			start++
		}
		if start > end || start < 1 || end > len(lines) {
			continue
		}
		content := strings.Join(lines[start-1:end], "\n")
		c := codechunk.Chunk{
			FilePath:  filePath,
			ChunkType: codechunk.TypeScript,
			Name:      "script",
			Content:   content,
			StartLine: start,
			EndLine:   end,
		}
		out = append(out, c.WithID())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartLine < out[j].StartLine })
	return out, nil
}

func markCovered(covered []bool, start, end int) {
	for i := start; i <= end && i < len(covered); i++ {
		if i >= 0 {
			covered[i] = true
		}
	}
}

type lineSpan struct{ start, end int }

func nodeLines(n *chunk.Node) lineSpan {
	return lineSpan{start: int(n.StartPoint.Row) + 1, end: int(n.EndPoint.Row) + 1}
}

func isImportNode(n *chunk.Node) bool {
	return n.Type == "import_statement" || n.Type == "import_from_statement"
}

func moduleDocstring(n *chunk.Node, source []byte) (codechunk.Chunk, bool) {
	s, ok := bareStringStatement(n, source)
	if !ok {
		return codechunk.Chunk{}, false
	}
	span := nodeLines(n)
	c := codechunk.Chunk{
		ChunkType: codechunk.TypeModuleDoc,
		Name:      "module_doc",
		Content:   s,
		Docstring: s,
		StartLine: span.start,
		EndLine:   span.end,
	}
	return c.WithID(), true
}

// bareStringStatement returns the raw text of n if it is an expression
// statement consisting solely of a string literal (a docstring position).
func bareStringStatement(n *chunk.Node, source []byte) (string, bool) {
	if n.Type != "expression_statement" || len(n.Children) != 1 {
		return "", false
	}
	if n.Children[0].Type != "string" {
		return "", false
	}
	return n.Children[0].GetContent(source), true
}

func functionChunk(n *chunk.Node, source []byte, lines []string, filePath, parent string) codechunk.Chunk {
	name := childIdentifierContent(n, source)
	span := nodeLines(n)
	content := n.GetContent(source)
	sig := functionSignature(content)
	doc := bodyDocstring(n, source)
	deps := codechunk.SortDependencies(collectCallNames(n, source), pythonBuiltins)

	chunkType := codechunk.TypeFunction
	if parent != "" {
		chunkType = codechunk.TypeMethod
	}

	c := codechunk.Chunk{
		FilePath:     filePath,
		ChunkType:    chunkType,
		Name:         name,
		Parent:       parent,
		Content:      content,
		StartLine:    span.start,
		EndLine:      span.end,
		Dependencies: deps,
		Signature:    sig,
		Docstring:    doc,
	}
	return c.WithID()
}

// classChunks returns the class header chunk (spanning header + docstring
// only) plus one method chunk per nested function_definition in its body.
func classChunks(n *chunk.Node, source []byte, lines []string, filePath string) (codechunk.Chunk, []codechunk.Chunk) {
	name := childIdentifierContent(n, source)
	span := nodeLines(n)

	var body *chunk.Node
	for _, c := range n.Children {
		if c.Type == "block" {
			body = c
			break
		}
	}

	headerEnd := span.end
	doc := ""
	var methodNodes []*chunk.Node
	if body != nil {
		for i, stmt := range body.Children {
			if stmt.Type == "function_definition" {
				methodNodes = append(methodNodes, stmt)
				continue
			}
			if i == 0 {
				if s, ok := bareStringStatement(stmt, source); ok {
					doc = s
					headerEnd = nodeLines(stmt).end
					continue
				}
			}
			if len(methodNodes) == 0 {
				headerEnd = nodeLines(stmt).end
			}
		}
		if len(body.Children) == 0 {
			headerEnd = span.end
		} else if len(methodNodes) > 0 {
			// header covers up through class signature (+docstring if any),
			// not the method bodies.
			if doc == "" {
				headerEnd = span.start
			}
		}
	}
	if headerEnd < span.start {
		headerEnd = span.start
	}
	if headerEnd >= len(lines) {
		headerEnd = len(lines)
	}

	headerContent := strings.Join(lines[span.start-1:headerEnd], "\n")
	deps := codechunk.SortDependencies(collectBaseClassNames(n, source), pythonBuiltins)

	header := codechunk.Chunk{
		FilePath:     filePath,
		ChunkType:    codechunk.TypeClass,
		Name:         name,
		Content:      headerContent,
		StartLine:    span.start,
		EndLine:      headerEnd,
		Dependencies: deps,
		Docstring:    doc,
	}.WithID()

	methods := make([]codechunk.Chunk, 0, len(methodNodes))
	for _, m := range methodNodes {
		methods = append(methods, functionChunk(m, source, lines, filePath, name))
	}
	return header, methods
}

func childIdentifierContent(n *chunk.Node, source []byte) string {
	for _, c := range n.Children {
		if c.Type == "identifier" {
			return c.GetContent(source)
		}
	}
	return ""
}

func bodyDocstring(n *chunk.Node, source []byte) string {
	var body *chunk.Node
	for _, c := range n.Children {
		if c.Type == "block" {
			body = c
			break
		}
	}
	if body == nil || len(body.Children) == 0 {
		return ""
	}
	s, _ := bareStringStatement(body.Children[0], source)
	return s
}

// functionSignature returns the source text from the def line through the
// first line that closes the header (a top-level ':' outside any brackets).
func functionSignature(content string) string {
	depth := 0
	for i, r := range content {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ':':
			if depth == 0 {
				end := strings.IndexByte(content[i:], '\n')
				if end == -1 {
					return content[:i+1]
				}
				return content[:i+end]
			}
		}
	}
	return content
}

// collectCallNames walks n's subtree collecting call-expression targets:
// `foo()` contributes "foo"; `x.bar()` contributes "bar".
func collectCallNames(n *chunk.Node, source []byte) []string {
	var names []string
	n.Walk(func(node *chunk.Node) bool {
		if node.Type == "call" && len(node.Children) > 0 {
			target := node.Children[0]
			names = append(names, callTargetName(target, source))
		}
		return true
	})
	return names
}

func callTargetName(n *chunk.Node, source []byte) string {
	if n.Type == "identifier" {
		return n.GetContent(source)
	}
	if n.Type == "attribute" && len(n.Children) > 0 {
		last := n.Children[len(n.Children)-1]
		if last.Type == "identifier" {
			return last.GetContent(source)
		}
	}
	return ""
}

func collectBaseClassNames(classNode *chunk.Node, source []byte) []string {
	var names []string
	for _, c := range classNode.Children {
		if c.Type == "argument_list" {
			for _, arg := range c.Children {
				if arg.Type == "identifier" {
					names = append(names, arg.GetContent(source))
				}
			}
		}
	}
	return names
}

func splitLines(source []byte) []string {
	text := string(source)
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
