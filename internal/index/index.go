// Package index attaches embedding vectors to memory nodes and serves top-k
// cosine-similarity retrieval over them.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/nidhogg/cognigraph/internal/embedding"
	"github.com/nidhogg/cognigraph/internal/memory"
	"github.com/nidhogg/cognigraph/internal/vectorstore"
	"go.uber.org/zap"
)

// ErrEmbeddingUnavailable marks a failed call to the external embedding
// model. The node that triggered the call is unaffected; embedding failure
// is decoupled from node existence.
var ErrEmbeddingUnavailable = errors.New("index: embedding unavailable")

// MirrorCollection is the Qdrant collection mirrored vectors land in.
const MirrorCollection = "memory_nodes"

// DefaultCandidateLimit bounds the per-query linear scan.
const DefaultCandidateLimit = 1000

// Mirror is the ANN side store the index writes through to and retrieves
// candidates from. Satisfied by *vectorstore.Client.
type Mirror interface {
	EnsureCollection(ctx context.Context, name string, dimension uint64) error
	UpsertNode(ctx context.Context, collection, nodeID string, vector []float32, payload map[string]string) error
	Search(ctx context.Context, collection string, vector []float32, topK uint64) ([]vectorstore.Hit, error)
}

// Index owns vector attachment and similarity retrieval for memory nodes.
// Ranking is always an exact cosine pass over the graph's vectors; the
// optional Qdrant mirror narrows the candidate set at scale but never
// changes the ordering.
type Index struct {
	store    memory.Store
	provider embedding.Provider
	mirror   Mirror
	logger   *zap.Logger

	mu  sync.Mutex
	dim int // fixed after the first stored vector
}

// New returns an Index over the given store and provider.
func New(store memory.Store, provider embedding.Provider, logger *zap.Logger) *Index {
	return &Index{store: store, provider: provider, logger: logger}
}

// SetMirror enables mirroring vectors into Qdrant and ANN candidate
// retrieval in FindTopK. Call InitMirror before the first write.
func (ix *Index) SetMirror(m Mirror) {
	ix.mirror = m
}

// InitMirror ensures the mirror collection exists with the provider's
// dimension.
func (ix *Index) InitMirror(ctx context.Context) error {
	if ix.mirror == nil {
		return nil
	}
	dim := uint64(ix.provider.Dimension())
	if dim == 0 {
		dim = 384
	}
	return ix.mirror.EnsureCollection(ctx, MirrorCollection, dim)
}

// EmbedAndStore embeds content and writes the vector onto the node. A model
// failure returns ErrEmbeddingUnavailable and leaves the node untouched.
func (ix *Index) EmbedAndStore(ctx context.Context, typ memory.MemoryType, id, content string) error {
	vec, err := embedding.EmbedOne(ctx, ix.provider, content)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if err := ix.checkDimension(len(vec)); err != nil {
		return err
	}

	if err := ix.store.SetEmbedding(ctx, typ, id, vec); err != nil {
		return fmt.Errorf("store embedding for %s: %w", id, err)
	}

	if ix.mirror != nil {
		err := ix.mirror.UpsertNode(ctx, MirrorCollection, id, vec, map[string]string{
			"memory_type": string(typ),
			"content":     content,
		})
		if err != nil {
			// The graph holds the canonical vector; a failed mirror write is
			// a degradation, not a failure of the operation.
			ix.logger.Warn("qdrant mirror upsert failed", zap.String("id", id), zap.Error(err))
		}
	}

	ix.logger.Debug("embedding stored", zap.String("id", id), zap.Int("dim", len(vec)))
	return nil
}

// checkDimension pins the index to the first observed dimensionality. A
// model swap requires re-embedding the corpus, not silent mixing.
func (ix *Index) checkDimension(n int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.dim == 0 {
		ix.dim = n
		return nil
	}
	if ix.dim != n {
		return fmt.Errorf("index: embedding dimension changed from %d to %d; re-embed the corpus", ix.dim, n)
	}
	return nil
}

// Scored pairs a node with its similarity to a query.
type Scored struct {
	Node  *memory.Node `json:"node"`
	Score float64      `json:"score"`
}

// FindTopK embeds the query and returns the k most similar embedded nodes in
// strictly descending score order. Equal scores break toward the more recent
// node. Fewer than k candidates returns all of them; zero candidates returns
// an empty result, not an error.
func (ix *Index) FindTopK(ctx context.Context, query string, k int, typ *memory.MemoryType, candidateLimit int) ([]Scored, error) {
	if k <= 0 {
		k = 5
	}
	if candidateLimit <= 0 {
		candidateLimit = DefaultCandidateLimit
	}

	qvec, err := embedding.EmbedOne(ctx, ix.provider, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	candidates := ix.mirrorCandidates(ctx, qvec, typ, candidateLimit)
	if candidates == nil {
		candidates, err = ix.store.NodesWithEmbedding(ctx, typ, candidateLimit)
		if err != nil {
			return nil, fmt.Errorf("load candidates: %w", err)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	scored := make([]Scored, len(candidates))
	for i, c := range candidates {
		scored[i] = Scored{Node: c, Score: Cosine(qvec, c.Embedding)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Node.Timestamp.After(scored[j].Node.Timestamp)
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// mirrorCandidates asks the ANN mirror for nearby points and resolves them to
// graph nodes, which FindTopK then re-ranks with exact cosine. Returns nil
// when the mirror is absent, fails, or has nothing, and the caller falls back
// to the full graph scan. Stale mirror entries (node deleted or re-typed) are
// skipped.
func (ix *Index) mirrorCandidates(ctx context.Context, qvec []float32, typ *memory.MemoryType, limit int) []*memory.Node {
	if ix.mirror == nil {
		return nil
	}
	hits, err := ix.mirror.Search(ctx, MirrorCollection, qvec, uint64(limit))
	if err != nil {
		ix.logger.Warn("qdrant candidate search failed, scanning graph", zap.Error(err))
		return nil
	}

	var nodes []*memory.Node
	for _, hit := range hits {
		hitType, err := memory.ParseMemoryType(hit.Payload["memory_type"])
		if err != nil {
			continue
		}
		if typ != nil && hitType != *typ {
			continue
		}
		node, err := ix.store.GetNode(ctx, hitType, hit.NodeID)
		if err != nil || !node.HasEmbedding() {
			continue
		}
		nodes = append(nodes, node)
	}
	if len(nodes) == 0 {
		return nil
	}
	return nodes
}

// Cosine computes cosine similarity dot(a,b)/(|a||b|). A zero-norm vector or
// mismatched lengths yield 0 rather than NaN.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
