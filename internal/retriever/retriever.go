// Package retriever implements the primary query entry point over an
// indexed project: hybrid lexical+vector search with structural boosts and
// graph expansion, plus modification-context lookup and index maintenance.
package retriever

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/codewright/codewright/internal/codechunk"
	"github.com/codewright/codewright/internal/depgraph"
	"github.com/codewright/codewright/internal/embed"
	"github.com/codewright/codewright/internal/indexer"
	"github.com/codewright/codewright/internal/indexstate"
	"github.com/codewright/codewright/internal/search"
	"github.com/codewright/codewright/internal/store"
)

// Method names a RetrievalResult's provenance.
type Method string

const (
	MethodVector    Method = "vector"
	MethodLexical   Method = "lexical"
	MethodGraph     Method = "graph"
	MethodDirect    Method = "direct"
	MethodSmartJump Method = "smart_jump"
)

// RetrievalResult pairs a chunk with the score and method that surfaced it.
type RetrievalResult struct {
	Chunk    codechunk.Chunk
	Score    float64
	Method   Method
	Distance *float32
}

// State names a phase of the index lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateBuilding       State = "building"
	StateReady          State = "ready"
	StateUpdating       State = "updating"
	StateFailed         State = "failed"
)

// RetrieveOptions configures a single retrieve call.
type RetrieveOptions struct {
	K           int
	ExpandGraph bool
	FileFilter  string
	TypeFilter  []codechunk.Type
	Threshold   float64
}

// DefaultRetrieveOptions mirrors the spec's default retrieve(...) signature.
func DefaultRetrieveOptions() RetrieveOptions {
	return RetrieveOptions{K: 10, ExpandGraph: true, Threshold: 0}
}

const (
	defaultCacheSize   = 256
	defaultCacheTTL    = 120 * time.Second
	candidateCap       = 50
	graphExpandSeeds   = 3
	graphExpandScore   = 0.5
	smartJumpScore     = 0.4
	contextTargetScore = 1.0
	contextCallerScore = 0.8
	contextCalleeScore = 0.7
	contextSiblingScore = 0.6

	// asyncPoolSize bounds how many RetrieveAsync calls run their blocking
	// Retrieve concurrently.
	asyncPoolSize = 4
)

// Retriever is the mutex-guarded orchestrator over the chunk map,
// dependency graph, vector store, lexical index, and query cache.
//
// mu guards the chunk map, graph, file index, and cache for queries and for
// the atomic swaps build_index/update_file perform. buildMu additionally
// serializes whole build_index/update_file calls against each other so two
// concurrent rebuilds never interleave, while still letting mu be taken and
// released in short bursts so reads observe a consistent snapshot without
// blocking for an entire (possibly slow) rebuild.
type Retriever struct {
	mu      sync.RWMutex
	chunks  map[codechunk.ID]codechunk.Chunk
	graph   *depgraph.Graph
	byFile  map[string][]codechunk.ID
	cache   *lru.LRU[string, []RetrievalResult]

	buildMu sync.Mutex
	stateMu sync.Mutex
	state   State

	sessionMu sync.RWMutex
	session   *SessionContext

	projectRoot string
	vectors     store.VectorStore
	lexical     store.BM25Index
	embedder    embed.Embedder
	stateStore  *indexstate.Store
	idx         *indexer.Indexer
	fusion      *search.RRFFusion
	weights     search.Weights

	// asyncSem bounds the worker pool RetrieveAsync runs its blocking
	// Retrieve calls on.
	asyncSem chan struct{}

	// onProgress, if set, is called from BuildIndex as each changed file
	// finishes indexing, so a caller can drive a progress display.
	onProgress func(done, total int, file string)
}

// Option configures a Retriever at construction time.
type Option func(*Retriever)

// WithLexicalIndex installs a BM25 collaborator for hybrid fusion. Omit for
// vector-only retrieval.
func WithLexicalIndex(idx store.BM25Index) Option {
	return func(r *Retriever) { r.lexical = idx }
}

// WithProgress installs a callback invoked from BuildIndex after each
// changed file finishes indexing, reporting how many of the total changed
// files have completed so far.
func WithProgress(fn func(done, total int, file string)) Option {
	return func(r *Retriever) { r.onProgress = fn }
}

// WithCacheTTL overrides the query cache's time-to-live.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Retriever) {
		r.cache = lru.NewLRU[string, []RetrievalResult](defaultCacheSize, nil, ttl)
	}
}

// WithWeights overrides the default BM25/semantic fusion weights.
func WithWeights(w search.Weights) Option {
	return func(r *Retriever) { r.weights = w }
}

// New constructs a Retriever over the given project root and collaborators.
func New(projectRoot string, vectors store.VectorStore, embedder embed.Embedder, stateStore *indexstate.Store, idx *indexer.Indexer, opts ...Option) *Retriever {
	r := &Retriever{
		chunks:      make(map[codechunk.ID]codechunk.Chunk),
		graph:       depgraph.New(),
		byFile:      make(map[string][]codechunk.ID),
		cache:       lru.NewLRU[string, []RetrievalResult](defaultCacheSize, nil, defaultCacheTTL),
		state:       StateUninitialized,
		projectRoot: projectRoot,
		vectors:     vectors,
		embedder:    embedder,
		stateStore:  stateStore,
		idx:         idx,
		fusion:      search.NewRRFFusion(),
		weights:     search.DefaultWeights(),
		asyncSem:    make(chan struct{}, asyncPoolSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CurrentState returns the index's current lifecycle state.
func (r *Retriever) CurrentState() State {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.state
}

func (r *Retriever) setState(s State) {
	r.stateMu.Lock()
	r.state = s
	r.stateMu.Unlock()
}

// SetSessionContext installs or replaces the process-wide session context.
func (r *Retriever) SetSessionContext(s SessionContext) {
	r.sessionMu.Lock()
	r.session = &s
	r.sessionMu.Unlock()
}

// ClearSessionContext removes the active session context.
func (r *Retriever) ClearSessionContext() {
	r.sessionMu.Lock()
	r.session = nil
	r.sessionMu.Unlock()
}

func (r *Retriever) currentSession() *SessionContext {
	r.sessionMu.RLock()
	defer r.sessionMu.RUnlock()
	return r.session
}

// wordSplit deliberately excludes '_' so identifier words like
// "verify_password" tokenize as ["verify", "password"], matching how a
// query's plain-English tokens are expected to hit code identifiers.
var wordSplit = regexp.MustCompile(`[A-Za-z0-9]+`)

func tokensOf(s string) []string {
	return wordSplit.FindAllString(strings.ToLower(s), -1)
}

func tokenSetOf(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokensOf(s) {
		set[t] = true
	}
	return set
}

func cacheKey(query string, session *SessionContext) string {
	h := fnv.New64a()
	if session != nil {
		_, _ = h.Write([]byte(session.cacheFingerprint()))
	}
	return query + "::" + fmt.Sprintf("%x", h.Sum64())
}

// Retrieve is the primary query entry point (spec: retrieve). It accepts a
// deadline via ctx: if the deadline expires partway through, Retrieve
// returns whatever results it has gathered so far with partial=true instead
// of an error, and leaks no resources (no goroutine or request is left
// in flight once it returns).
func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (results []RetrievalResult, partial bool, err error) {
	if opts.K <= 0 {
		opts.K = 10
	}
	session := r.currentSession()
	key := cacheKey(query, session)
	if cached, ok := r.cache.Get(key); ok {
		return cached, false, nil
	}

	n := opts.K * 2
	if n > candidateCap {
		n = candidateCap
	}
	if n <= 0 {
		n = candidateCap
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, true, nil
		}
		return nil, false, err
	}
	if ctx.Err() != nil {
		return nil, true, nil
	}

	vecResults, err := r.vectors.Search(ctx, vec, n)
	if err != nil {
		if ctx.Err() != nil {
			return nil, true, nil
		}
		r.setState(StateFailed)
		return []RetrievalResult{}, false, nil
	}

	var lexResults []*store.BM25Result
	if r.lexical != nil {
		lexResults, _ = r.lexical.Search(ctx, query, n)
	}

	fused := r.fusion.Fuse(lexResults, vecResults, r.weights)

	r.mu.RLock()
	candidates := make(map[codechunk.ID]RetrievalResult, len(fused))
	for _, f := range fused {
		id := codechunk.ID(f.ChunkID)
		c, ok := r.chunks[id]
		if !ok {
			continue
		}
		if !matchesFilter(c, opts) {
			continue
		}
		method := MethodVector
		if f.BM25Rank > 0 && f.VecRank == 0 {
			method = MethodLexical
		}
		candidates[id] = RetrievalResult{Chunk: c, Score: f.RRFScore, Method: method}
	}
	r.mu.RUnlock()

	tokens := tokensOf(query)
	for id, res := range candidates {
		res.Score = applyLexicalBoost(res.Score, res.Chunk, tokens)
		if session != nil {
			res.Score = applySessionBoost(res.Score, res.Chunk, session, tokens)
		}
		if res.Score > 1.0 {
			res.Score = 1.0
		}
		candidates[id] = res
	}

	out := make([]RetrievalResult, 0, len(candidates))
	for _, res := range candidates {
		if res.Score >= opts.Threshold {
			out = append(out, res)
		}
	}
	sortResults(out)

	if ctx.Err() != nil {
		sortResults(out)
		if len(out) > opts.K {
			out = out[:opts.K]
		}
		return out, true, nil
	}

	if opts.ExpandGraph && len(out) > 0 {
		out = r.expandGraph(out)
	}

	sortResults(out)
	if len(out) > opts.K {
		out = out[:opts.K]
	}

	r.cache.Add(key, out)
	return out, false, nil
}

// RetrieveAsyncResult is delivered on the channel RetrieveAsync returns.
type RetrieveAsyncResult struct {
	Results []RetrievalResult
	Partial bool
	Err     error
}

// RetrieveAsync is the non-blocking counterpart to Retrieve: it runs the
// blocking call on a bounded worker pool and delivers the outcome on the
// returned channel, which is always closed after exactly one send.
func (r *Retriever) RetrieveAsync(ctx context.Context, query string, opts RetrieveOptions) <-chan RetrieveAsyncResult {
	out := make(chan RetrieveAsyncResult, 1)
	go func() {
		defer close(out)
		select {
		case r.asyncSem <- struct{}{}:
		case <-ctx.Done():
			out <- RetrieveAsyncResult{Partial: true}
			return
		}
		defer func() { <-r.asyncSem }()

		results, partial, err := r.Retrieve(ctx, query, opts)
		out <- RetrieveAsyncResult{Results: results, Partial: partial, Err: err}
	}()
	return out
}

func matchesFilter(c codechunk.Chunk, opts RetrieveOptions) bool {
	if opts.FileFilter != "" {
		if !strings.Contains(codechunk.NormalizePath(c.FilePath), codechunk.NormalizePath(opts.FileFilter)) {
			return false
		}
	}
	if len(opts.TypeFilter) > 0 {
		found := false
		for _, t := range opts.TypeFilter {
			if c.ChunkType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func applyLexicalBoost(score float64, c codechunk.Chunk, tokens []string) float64 {
	content := c.Content
	if len(content) > 500 {
		content = content[:500]
	}
	nameWords := tokenSetOf(c.Name)
	contentWords := tokenSetOf(content)
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if nameWords[tok] {
			score += 0.15
		}
		if contentWords[tok] {
			score += 0.05
		}
	}
	return score
}

func applySessionBoost(score float64, c codechunk.Chunk, session *SessionContext, tokens []string) float64 {
	normPath := codechunk.NormalizePath(c.FilePath)
	for _, f := range session.FocusFiles {
		if f != "" && strings.Contains(normPath, codechunk.NormalizePath(f)) {
			score += 0.20
			break
		}
	}
	keywords := taskKeywordSets[session.TaskType]
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}
	for _, kw := range keywords {
		if tokenSet[kw] {
			score += 0.10
		}
	}
	return score
}

func sortResults(results []RetrievalResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ChunkID < results[j].Chunk.ChunkID
	})
}

func (r *Retriever) expandGraph(results []RetrievalResult) []RetrievalResult {
	seeds := make([]codechunk.ID, 0, graphExpandSeeds)
	for i := 0; i < len(results) && i < graphExpandSeeds; i++ {
		seeds = append(seeds, results[i].Chunk.ChunkID)
	}

	r.mu.RLock()
	related := r.graph.Related(seeds, 1)
	existing := make(map[codechunk.ID]bool, len(results))
	for _, res := range results {
		existing[res.Chunk.ChunkID] = true
	}
	var added []RetrievalResult
	for _, id := range related {
		if existing[id] {
			continue
		}
		if c, ok := r.chunks[id]; ok {
			added = append(added, RetrievalResult{Chunk: c, Score: graphExpandScore, Method: MethodGraph})
		}
	}
	r.mu.RUnlock()

	return append(results, added...)
}

// ModificationContext bundles the target chunk with its graph neighborhood.
type ModificationContext struct {
	Target   *RetrievalResult
	Callers  []RetrievalResult
	Callees  []RetrievalResult
	Siblings []RetrievalResult
}

// GetModificationContext looks up name (functionName or className) and
// returns its callers/callees/siblings from the Dependency Graph.
func (r *Retriever) GetModificationContext(name, filePath string) ModificationContext {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.graph.ChunksByName(name)
	var targetID codechunk.ID
	found := false
	for _, id := range candidates {
		c, ok := r.chunks[id]
		if !ok {
			continue
		}
		if filePath != "" && !strings.Contains(codechunk.NormalizePath(c.FilePath), codechunk.NormalizePath(filePath)) {
			continue
		}
		targetID = id
		found = true
		break
	}
	if !found {
		return ModificationContext{}
	}

	target := r.chunks[targetID]
	ctx := r.graph.ContextForModification(targetID)

	result := ModificationContext{
		Target: &RetrievalResult{Chunk: target, Score: contextTargetScore, Method: MethodDirect},
	}
	for _, id := range ctx.Callers {
		if c, ok := r.chunks[id]; ok {
			result.Callers = append(result.Callers, RetrievalResult{Chunk: c, Score: contextCallerScore, Method: MethodGraph})
		}
	}
	for _, id := range ctx.Callees {
		if c, ok := r.chunks[id]; ok {
			result.Callees = append(result.Callees, RetrievalResult{Chunk: c, Score: contextCalleeScore, Method: MethodGraph})
		}
	}
	for _, id := range ctx.Siblings {
		if c, ok := r.chunks[id]; ok {
			result.Siblings = append(result.Siblings, RetrievalResult{Chunk: c, Score: contextSiblingScore, Method: MethodGraph})
		}
	}
	return result
}

// SmartExpand traverses the Dependency Graph from chunkID to the requested
// depth (clamped to [1,5]), scoring every discovered chunk 0.4.
func (r *Retriever) SmartExpand(chunkID codechunk.ID, depth int) []RetrievalResult {
	if depth < 1 {
		depth = 1
	}
	if depth > 5 {
		depth = 5
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.chunks[chunkID]; !ok {
		return []RetrievalResult{}
	}
	related := r.graph.Related([]codechunk.ID{chunkID}, depth)
	results := make([]RetrievalResult, 0, len(related))
	for _, id := range related {
		if c, ok := r.chunks[id]; ok {
			results = append(results, RetrievalResult{Chunk: c, Score: smartJumpScore, Method: MethodSmartJump})
		}
	}
	return results
}
