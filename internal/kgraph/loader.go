package kgraph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

var entityLabels = []EntityType{
	EntityUser, EntityDevice, EntityNetwork, EntityThreat, EntityVulnerability,
}

// LoadFromNeo4j hydrates an in-memory entity graph from the typed entity
// nodes and edges persisted in Neo4j. Only the five known entity labels are
// loaded; memory nodes are a separate namespace and are skipped.
func LoadFromNeo4j(ctx context.Context, driver neo4j.DriverWithContext, logger *zap.Logger) (*Graph, error) {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	g := NewGraph()

	for _, typ := range entityLabels {
		query := fmt.Sprintf(`MATCH (n:%s) RETURN n.id AS id, properties(n) AS props`, typ)
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return nil, fmt.Errorf("load %s entities: %w", typ, err)
		}
		for result.Next(ctx) {
			rec := result.Record()
			id, ok := rec.Get("id")
			if !ok || id == nil {
				continue
			}
			attrs := make(map[string]string)
			if v, ok := rec.Get("props"); ok && v != nil {
				if props, ok := v.(map[string]interface{}); ok {
					for k, pv := range props {
						if s, ok := pv.(string); ok && k != "id" {
							attrs[k] = s
						}
					}
				}
			}
			g.AddEntity(typ, id.(string), attrs)
		}
	}

	// Edges between loaded entities; the relationship type is the verb.
	result, err := session.Run(ctx, `
		MATCH (a)-[r]->(b)
		WHERE a.id IS NOT NULL AND b.id IS NOT NULL
		  AND (a:User OR a:Device OR a:Network OR a:Threat OR a:Vulnerability)
		  AND (b:User OR b:Device OR b:Network OR b:Threat OR b:Vulnerability)
		RETURN a.id AS src, b.id AS dst, type(r) AS verb`, nil)
	if err != nil {
		return nil, fmt.Errorf("load entity edges: %w", err)
	}
	for result.Next(ctx) {
		rec := result.Record()
		src, _ := rec.Get("src")
		dst, _ := rec.Get("dst")
		verb, _ := rec.Get("verb")
		if src == nil || dst == nil || verb == nil {
			continue
		}
		g.AddRelationship(src.(string), dst.(string), verb.(string), nil)
	}

	nodes, edges := g.Size()
	logger.Info("entity graph loaded", zap.Int("nodes", nodes), zap.Int("edges", edges))
	return g, nil
}

// Neo4jPersister implements Persister on a shared Neo4j driver. Attach it to
// a Graph after hydration so simulated and extracted entities survive
// restarts.
type Neo4jPersister struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jPersister returns a Persister over the given driver.
func NewNeo4jPersister(driver neo4j.DriverWithContext) *Neo4jPersister {
	return &Neo4jPersister{driver: driver}
}

func (p *Neo4jPersister) PersistEntity(ctx context.Context, e *Entity) error {
	return PersistEntity(ctx, p.driver, e)
}

func (p *Neo4jPersister) PersistRelationship(ctx context.Context, edge Edge) error {
	return PersistRelationship(ctx, p.driver, edge)
}

// PersistEntity writes one entity node into Neo4j so it survives restarts.
func PersistEntity(ctx context.Context, driver neo4j.DriverWithContext, e *Entity) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := fmt.Sprintf(`MERGE (n:%s {id: $id}) SET n += $attrs`, e.Type)
	attrs := make(map[string]interface{}, len(e.Attrs))
	for k, v := range e.Attrs {
		attrs[k] = v
	}
	if _, err := session.Run(ctx, query, map[string]interface{}{
		"id":    e.ID,
		"attrs": attrs,
	}); err != nil {
		return fmt.Errorf("persist entity %s: %w", e.ID, err)
	}
	return nil
}

// PersistRelationship writes one entity edge into Neo4j. The verb comes from
// the detection pipeline's closed verb set, never from raw user input.
func PersistRelationship(ctx context.Context, driver neo4j.DriverWithContext, e Edge) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (a {id: $src}), (b {id: $dst})
		MERGE (a)-[:%s]->(b)`, e.Verb)
	if _, err := session.Run(ctx, query, map[string]interface{}{
		"src": e.SourceID,
		"dst": e.TargetID,
	}); err != nil {
		return fmt.Errorf("persist relationship %s-[%s]->%s: %w", e.SourceID, e.Verb, e.TargetID, err)
	}
	return nil
}
