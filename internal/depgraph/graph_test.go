package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewright/codewright/internal/codechunk"
)

func mk(filePath, name string, deps ...string) codechunk.Chunk {
	return codechunk.Chunk{FilePath: filePath, Name: name, Dependencies: deps}.WithID()
}

func TestContextForModificationScenarioB(t *testing.T) {
	handleRequest := mk("src/api.py", "handle_request", "log_event")
	logEvent := mk("src/api.py", "log_event")
	serve := mk("src/main.py", "serve", "handle_request")

	g := Build([]codechunk.Chunk{handleRequest, logEvent, serve})

	ctx := g.ContextForModification(handleRequest.ChunkID)
	require.Len(t, ctx.Callers, 1)
	assert.Equal(t, serve.ChunkID, ctx.Callers[0])
	require.Len(t, ctx.Callees, 1)
	assert.Equal(t, logEvent.ChunkID, ctx.Callees[0])
	assert.Empty(t, ctx.Siblings)
}

func TestSiblingsExcludeSelf(t *testing.T) {
	render := codechunk.Chunk{FilePath: "w.py", Name: "render", Parent: "Widget"}.WithID()
	resize := codechunk.Chunk{FilePath: "w.py", Name: "resize", Parent: "Widget"}.WithID()
	g := Build([]codechunk.Chunk{render, resize})

	ctx := g.ContextForModification(render.ChunkID)
	require.Len(t, ctx.Siblings, 1)
	assert.Equal(t, resize.ChunkID, ctx.Siblings[0])
}

func TestRelatedBFSBothDirections(t *testing.T) {
	a := mk("f.py", "a", "b")
	b := mk("f.py", "b", "c")
	c := mk("f.py", "c")
	g := Build([]codechunk.Chunk{a, b, c})

	related1 := g.Related([]codechunk.ID{a.ChunkID}, 1)
	assert.ElementsMatch(t, []codechunk.ID{b.ChunkID}, related1)

	related2 := g.Related([]codechunk.ID{a.ChunkID}, 2)
	assert.ElementsMatch(t, []codechunk.ID{b.ChunkID, c.ChunkID}, related2)
}

func TestGraphDerivabilityIncrementalMatchesRebuild(t *testing.T) {
	a := mk("f.py", "a", "b")
	b := mk("f.py", "b")
	c := mk("f.py", "c", "a")

	rebuilt := Build([]codechunk.Chunk{a, b, c})

	incremental := New()
	incremental.AddChunk(a)
	incremental.AddChunk(b)
	incremental.AddChunk(c)
	incremental.RemoveChunk(b.ChunkID)
	incremental.AddChunk(b)

	for _, id := range []codechunk.ID{a.ChunkID, b.ChunkID, c.ChunkID} {
		assert.ElementsMatch(t, rebuilt.Related([]codechunk.ID{id}, 5), incremental.Related([]codechunk.ID{id}, 5))
	}
}

func TestChunksByNameHandlesCollisions(t *testing.T) {
	a := codechunk.Chunk{FilePath: "a.py", Name: "helper"}.WithID()
	b := codechunk.Chunk{FilePath: "b.py", Name: "helper"}.WithID()
	g := Build([]codechunk.Chunk{a, b})

	ids := g.ChunksByName("helper")
	assert.ElementsMatch(t, []codechunk.ID{a.ChunkID, b.ChunkID}, ids)
}

func TestRemoveChunkDropsEdges(t *testing.T) {
	a := mk("f.py", "a", "b")
	b := mk("f.py", "b")
	g := Build([]codechunk.Chunk{a, b})
	require.NotEmpty(t, g.ContextForModification(a.ChunkID).Callees)

	g.RemoveChunk(b.ChunkID)
	assert.Empty(t, g.ContextForModification(a.ChunkID).Callees)
	assert.Equal(t, 1, g.Len())
}
