// Package kgraph holds the typed entity knowledge graph and the multi-hop
// threat-path reasoner that runs over it. Entity nodes live in a separate
// namespace from memory nodes.
package kgraph

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// EntityType classifies an entity node. Closed set; Unknown entities are
// never injected into the graph.
type EntityType string

const (
	EntityUser          EntityType = "User"
	EntityDevice        EntityType = "Device"
	EntityNetwork       EntityType = "Network"
	EntityThreat        EntityType = "Threat"
	EntityVulnerability EntityType = "Vulnerability"
	EntityUnknown       EntityType = "Unknown"
)

// Entity is a typed node with a free-form attribute map.
type Entity struct {
	ID    string            `json:"id"`
	Type  EntityType        `json:"entity_type"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Edge is a directed relationship keyed by verb. Multiple edges between the
// same pair with different verbs are permitted.
type Edge struct {
	SourceID string            `json:"source"`
	TargetID string            `json:"target"`
	Verb     string            `json:"verb"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// Persister mirrors entity writes into durable storage. Implemented by
// Neo4jPersister; nil disables write-through.
type Persister interface {
	PersistEntity(ctx context.Context, e *Entity) error
	PersistRelationship(ctx context.Context, edge Edge) error
}

// Graph is an in-memory typed multigraph, safe for concurrent use. Reads of
// a slightly stale graph during concurrent ingestion are acceptable.
type Graph struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	outgoing map[string][]Edge

	persister Persister
	logger    *zap.Logger
}

// NewGraph returns an empty entity graph.
func NewGraph() *Graph {
	return &Graph{
		entities: make(map[string]*Entity),
		outgoing: make(map[string][]Edge),
		logger:   zap.NewNop(),
	}
}

// AttachPersister enables write-through of subsequent entity and
// relationship writes. The in-memory write always succeeds; a persistence
// failure is logged and the durable copy catches up on the next write of the
// same entity.
func (g *Graph) AttachPersister(p Persister, logger *zap.Logger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.persister = p
	if logger != nil {
		g.logger = logger
	}
}

// AddEntity inserts or updates an entity node.
func (g *Graph) AddEntity(typ EntityType, id string, attrs map[string]string) {
	e := &Entity{ID: id, Type: typ, Attrs: attrs}
	g.mu.Lock()
	g.entities[id] = e
	p := g.persister
	g.mu.Unlock()

	if p != nil {
		if err := p.PersistEntity(context.Background(), e); err != nil {
			g.logger.Warn("entity write-through failed", zap.String("id", id), zap.Error(err))
		}
	}
}

// AddRelationship adds a directed edge. Duplicate (source, target, verb)
// triples collapse into one edge and are not re-persisted.
func (g *Graph) AddRelationship(sourceID, targetID, verb string, attrs map[string]string) {
	edge := Edge{
		SourceID: sourceID,
		TargetID: targetID,
		Verb:     verb,
		Attrs:    attrs,
	}

	g.mu.Lock()
	for _, e := range g.outgoing[sourceID] {
		if e.TargetID == targetID && e.Verb == verb {
			g.mu.Unlock()
			return
		}
	}
	g.outgoing[sourceID] = append(g.outgoing[sourceID], edge)
	p := g.persister
	g.mu.Unlock()

	if p != nil {
		if err := p.PersistRelationship(context.Background(), edge); err != nil {
			g.logger.Warn("relationship write-through failed",
				zap.String("source", sourceID), zap.String("target", targetID), zap.Error(err))
		}
	}
}

// Entity returns the node with the given id, or nil.
func (g *Graph) Entity(id string) *Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entities[id]
}

// Neighbors returns the distinct ids reachable over one outgoing hop.
func (g *Graph) Neighbors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, e := range g.outgoing[id] {
		if !seen[e.TargetID] {
			seen[e.TargetID] = true
			out = append(out, e.TargetID)
		}
	}
	return out
}

// EntitiesOfType returns all entities of one type, sorted by id for
// deterministic iteration.
func (g *Graph) EntitiesOfType(typ EntityType) []*Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Entity
	for _, e := range g.entities {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Size returns node and edge counts.
func (g *Graph) Size() (nodes, edges int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, es := range g.outgoing {
		edges += len(es)
	}
	return len(g.entities), edges
}
