package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store is the node/edge graph contract the engine depends on. The production
// implementation is GraphStore (Neo4j); InMemoryStore backs tests and
// standalone mode.
//
// All text predicates are case-insensitive substring containment. Find
// methods return nodes ordered by descending timestamp and are bounded by an
// explicit limit.
type Store interface {
	// CreateNodeIfAbsent inserts the node unless one with the same id already
	// exists, in which case the existing node is returned untouched.
	CreateNodeIfAbsent(ctx context.Context, node *Node) (*Node, error)
	// GetNode fetches one node by type and id. Returns ErrNotFound when the
	// id is unknown or carries a different type.
	GetNode(ctx context.Context, typ MemoryType, id string) (*Node, error)
	// FindNodes returns nodes of the given types whose content contains
	// substr.
	FindNodes(ctx context.Context, types []MemoryType, substr string, limit int) ([]*Node, error)
	// FindNodesAnyKeyword returns nodes of the given types whose content
	// contains any of the keywords.
	FindNodesAnyKeyword(ctx context.Context, types []MemoryType, keywords []string, limit int) ([]*Node, error)
	// AddEdge records a directed labeled edge between two existing nodes.
	AddEdge(ctx context.Context, sourceID, targetID, label string) error
	// Edges returns the subgraph of edges reachable from id within maxHops,
	// traversing edges in both directions.
	Edges(ctx context.Context, id string, maxHops int) ([]Relation, error)
	// SetEmbedding writes the vector onto an existing node.
	SetEmbedding(ctx context.Context, typ MemoryType, id string, vec []float32) error
	// NodesWithEmbedding returns nodes carrying an embedding, optionally
	// restricted to one type.
	NodesWithEmbedding(ctx context.Context, typ *MemoryType, limit int) ([]*Node, error)
	// ListNodes returns all nodes of one type, most recent first.
	ListNodes(ctx context.Context, typ MemoryType, limit int) ([]*Node, error)
}

// InMemoryStore is a mutex-guarded Store for tests and standalone runs.
// Creation order breaks timestamp ties so result ordering stays
// deterministic even when nodes land within the same clock tick.
type InMemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	seq   map[string]int
	edges []Relation
	next  int
}

// NewInMemoryStore returns an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nodes: make(map[string]*Node),
		seq:   make(map[string]int),
	}
}

func (s *InMemoryStore) CreateNodeIfAbsent(ctx context.Context, node *Node) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.nodes[node.ID]; ok {
		return copyNode(existing), nil
	}

	stored := copyNode(node)
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}
	s.nodes[stored.ID] = stored
	s.seq[stored.ID] = s.next
	s.next++
	return copyNode(stored), nil
}

func (s *InMemoryStore) GetNode(ctx context.Context, typ MemoryType, id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok || n.Type != typ {
		return nil, ErrNotFound
	}
	return copyNode(n), nil
}

func (s *InMemoryStore) FindNodes(ctx context.Context, types []MemoryType, substr string, limit int) ([]*Node, error) {
	needle := strings.ToLower(substr)
	return s.collect(types, limit, func(n *Node) bool {
		return strings.Contains(strings.ToLower(n.Content), needle)
	})
}

func (s *InMemoryStore) FindNodesAnyKeyword(ctx context.Context, types []MemoryType, keywords []string, limit int) ([]*Node, error) {
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return s.collect(types, limit, func(n *Node) bool {
		content := strings.ToLower(n.Content)
		for _, kw := range lowered {
			if kw != "" && strings.Contains(content, kw) {
				return true
			}
		}
		return false
	})
}

func (s *InMemoryStore) AddEdge(ctx context.Context, sourceID, targetID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[sourceID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.nodes[targetID]; !ok {
		return ErrNotFound
	}
	s.edges = append(s.edges, Relation{SourceID: sourceID, TargetID: targetID, Label: label})
	return nil
}

func (s *InMemoryStore) Edges(ctx context.Context, id string, maxHops int) ([]Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if maxHops < 1 {
		maxHops = 1
	}
	frontier := map[string]bool{id: true}
	visited := map[string]bool{id: true}
	var out []Relation
	seen := make(map[Relation]bool)

	for hop := 0; hop < maxHops; hop++ {
		next := make(map[string]bool)
		for _, e := range s.edges {
			var other string
			switch {
			case frontier[e.SourceID]:
				other = e.TargetID
			case frontier[e.TargetID]:
				other = e.SourceID
			default:
				continue
			}
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
			if !visited[other] {
				visited[other] = true
				next[other] = true
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}
	return out, nil
}

func (s *InMemoryStore) SetEmbedding(ctx context.Context, typ MemoryType, id string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok || n.Type != typ {
		return ErrNotFound
	}
	n.Embedding = append([]float32(nil), vec...)
	return nil
}

func (s *InMemoryStore) NodesWithEmbedding(ctx context.Context, typ *MemoryType, limit int) ([]*Node, error) {
	var types []MemoryType
	if typ != nil {
		types = []MemoryType{*typ}
	}
	return s.collect(types, limit, func(n *Node) bool {
		return n.HasEmbedding()
	})
}

func (s *InMemoryStore) ListNodes(ctx context.Context, typ MemoryType, limit int) ([]*Node, error) {
	return s.collect([]MemoryType{typ}, limit, func(n *Node) bool { return true })
}

// collect filters nodes under the read lock and orders them most recent
// first. A nil or empty types slice matches every type.
func (s *InMemoryStore) collect(types []MemoryType, limit int, match func(*Node) bool) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	typeSet := make(map[MemoryType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	var out []*Node
	for _, n := range s.nodes {
		if len(typeSet) > 0 && !typeSet[n.Type] {
			continue
		}
		if match(n) {
			out = append(out, copyNode(n))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyNode(n *Node) *Node {
	c := *n
	c.Tags = append([]string(nil), n.Tags...)
	c.Embedding = append([]float32(nil), n.Embedding...)
	return &c
}
