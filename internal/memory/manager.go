package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/cognigraph/internal/ident"
	"go.uber.org/zap"
)

// Default bound on related-node discovery per observation.
const defaultMatchLimit = 100

// Manager orchestrates the memory-node lifecycle: creating working-memory
// nodes for new observations and linking them to related prior memories.
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager returns a Manager over the given store.
func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Store exposes the underlying store for collaborators (embedding index,
// API handlers) that share it.
func (m *Manager) Store() Store {
	return m.store
}

// ObservationResult is the outcome of ingesting one observation.
type ObservationResult struct {
	Node   *Node      `json:"node"`
	Linked []Relation `json:"linked,omitempty"`
}

// Standalone reports whether the new node attached to nothing.
func (r *ObservationResult) Standalone() bool {
	return len(r.Linked) == 0
}

// ProcessNewObservation creates a working-memory node for content, searches
// long-term, semantic and episodic memory for keyword matches, and links the
// new node to each match with a relation inferred from the target's type.
//
// Zero matches is an expected outcome: the node stays standalone. A store
// failure during creation aborts before any linking happens.
func (m *Manager) ProcessNewObservation(ctx context.Context, content string, keywords []string) (*ObservationResult, error) {
	tags := normalizeKeywords(keywords)

	node, err := m.store.CreateNodeIfAbsent(ctx, &Node{
		ID:        ident.New(Working.Prefix()),
		Type:      Working,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Tags:      tags,
	})
	if err != nil {
		return nil, fmt.Errorf("create working memory: %w", err)
	}

	related, err := m.store.FindNodesAnyKeyword(ctx,
		[]MemoryType{LongTerm, Semantic, Episodic}, tags, defaultMatchLimit)
	if err != nil {
		return nil, fmt.Errorf("find related memories: %w", err)
	}

	result := &ObservationResult{Node: node}
	for _, target := range related {
		label := InferLinkRelation(target.Type)
		if err := m.store.AddEdge(ctx, node.ID, target.ID, label); err != nil {
			return nil, fmt.Errorf("link %s -> %s: %w", node.ID, target.ID, err)
		}
		result.Linked = append(result.Linked, Relation{
			SourceID: node.ID,
			TargetID: target.ID,
			Label:    label,
		})
	}

	if result.Standalone() {
		m.logger.Debug("observation stored standalone", zap.String("id", node.ID))
	} else {
		m.logger.Info("observation linked",
			zap.String("id", node.ID),
			zap.Int("links", len(result.Linked)))
	}
	return result, nil
}

// CreateMemory creates a node of an arbitrary memory type, optionally linking
// it to an existing target with the pair-table relation.
func (m *Manager) CreateMemory(ctx context.Context, typ MemoryType, content string, linkTo *Node) (*Node, error) {
	node, err := m.store.CreateNodeIfAbsent(ctx, &Node{
		ID:        ident.New(typ.Prefix()),
		Type:      typ,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("create %s memory: %w", typ, err)
	}

	if linkTo != nil {
		label := InferRelation(typ, linkTo.Type)
		if err := m.store.AddEdge(ctx, node.ID, linkTo.ID, label); err != nil {
			return nil, fmt.Errorf("link %s -> %s: %w", node.ID, linkTo.ID, err)
		}
	}
	return node, nil
}

// Recall searches working memory for past observations containing keyword.
func (m *Manager) Recall(ctx context.Context, keyword string, limit int) ([]*Node, error) {
	if limit <= 0 {
		limit = defaultMatchLimit
	}
	return m.store.FindNodes(ctx, []MemoryType{Working}, keyword, limit)
}

// Subgraph returns the edges within maxHops of the given node.
func (m *Manager) Subgraph(ctx context.Context, id string, maxHops int) ([]Relation, error) {
	return m.store.Edges(ctx, id, maxHops)
}

// normalizeKeywords lowercases keywords and drops blanks, preserving the
// extraction order.
func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
