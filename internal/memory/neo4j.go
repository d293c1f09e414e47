package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// GraphStore implements Store on Neo4j. Labels and relation types are always
// taken from the closed MemoryType enumeration or the relation constant
// table, never from caller input, so interpolating them into Cypher is safe.
type GraphStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewGraphStore connects to Neo4j and returns a ready store.
func NewGraphStore(uri, user, password string, logger *zap.Logger) (*GraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &GraphStore{driver: driver, logger: logger}, nil
}

// Close shuts down the Neo4j driver.
func (s *GraphStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Driver exposes the underlying driver for shared use (entity graph loader).
func (s *GraphStore) Driver() neo4j.DriverWithContext {
	return s.driver
}

// Ping verifies connectivity.
func (s *GraphStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// InitConstraints declares per-label id uniqueness for every memory label
// and every entity label. Idempotent.
func (s *GraphStore) InitConstraints(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	labels := make([]string, 0, len(AllTypes)+5)
	for _, t := range AllTypes {
		labels = append(labels, t.Label())
	}
	labels = append(labels, "User", "Device", "Network", "Threat", "Vulnerability")

	for _, label := range labels {
		name := strings.ToLower(label) + "_id_unique"
		query := fmt.Sprintf(
			`CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE`,
			name, label)
		if _, err := session.Run(ctx, query, nil); err != nil {
			return unavailable("init constraints", err)
		}
	}
	s.logger.Info("graph constraints ready", zap.Int("labels", len(labels)))
	return nil
}

func (s *GraphStore) CreateNodeIfAbsent(ctx context.Context, node *Node) (*Node, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	ts := node.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		MERGE (m:%s {id: $id})
		ON CREATE SET m.content = $content,
		              m.timestamp = datetime($ts),
		              m.tags = $tags
		RETURN m.id AS id, m.content AS content, m.timestamp AS ts,
		       m.tags AS tags, m.embedding AS embedding`,
		node.Type.Label())

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id":      node.ID,
		"content": node.Content,
		"ts":      ts.Format(time.RFC3339Nano),
		"tags":    node.Tags,
	})
	if err != nil {
		return nil, unavailable("create node", err)
	}
	rec, err := result.Single(ctx)
	if err != nil {
		return nil, unavailable("create node", err)
	}
	return recordToNode(rec, node.Type), nil
}

func (s *GraphStore) GetNode(ctx context.Context, typ MemoryType, id string) (*Node, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (m:%s {id: $id})
		RETURN m.id AS id, m.content AS content, m.timestamp AS ts,
		       m.tags AS tags, m.embedding AS embedding`,
		typ.Label())

	result, err := session.Run(ctx, query, map[string]interface{}{"id": id})
	if err != nil {
		return nil, unavailable("get node", err)
	}
	if !result.Next(ctx) {
		return nil, ErrNotFound
	}
	return recordToNode(result.Record(), typ), nil
}

func (s *GraphStore) FindNodes(ctx context.Context, types []MemoryType, substr string, limit int) ([]*Node, error) {
	return s.find(ctx, types, "toLower(m.content) CONTAINS toLower($text)",
		map[string]interface{}{"text": substr}, limit)
}

func (s *GraphStore) FindNodesAnyKeyword(ctx context.Context, types []MemoryType, keywords []string, limit int) ([]*Node, error) {
	return s.find(ctx, types,
		"any(keyword IN $keywords WHERE toLower(m.content) CONTAINS toLower(keyword))",
		map[string]interface{}{"keywords": keywords}, limit)
}

// find runs a bounded, timestamp-ordered content search over the given
// labels. The predicate references only bound parameters.
func (s *GraphStore) find(ctx context.Context, types []MemoryType, predicate string, params map[string]interface{}, limit int) ([]*Node, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	if len(types) == 0 {
		types = AllTypes
	}
	labelChecks := make([]string, len(types))
	for i, t := range types {
		labelChecks[i] = "m:" + t.Label()
	}

	query := fmt.Sprintf(`
		MATCH (m)
		WHERE (%s) AND %s
		RETURN labels(m)[0] AS label, m.id AS id, m.content AS content,
		       m.timestamp AS ts, m.tags AS tags, m.embedding AS embedding
		ORDER BY m.timestamp DESC
		LIMIT $limit`,
		strings.Join(labelChecks, " OR "), predicate)

	params["limit"] = limit
	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, unavailable("find nodes", err)
	}

	var nodes []*Node
	for result.Next(ctx) {
		rec := result.Record()
		typ := Working
		if v, ok := rec.Get("label"); ok && v != nil {
			typ = typeForLabel(v.(string))
		}
		nodes = append(nodes, recordToNode(rec, typ))
	}
	return nodes, nil
}

func (s *GraphStore) AddEdge(ctx context.Context, sourceID, targetID, label string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	// Relation types cannot be parameterized in Cypher; label always comes
	// from the inference tables in relations.go.
	query := fmt.Sprintf(`
		MATCH (src {id: $src}), (dst {id: $dst})
		MERGE (src)-[:%s]->(dst)`, label)

	if _, err := session.Run(ctx, query, map[string]interface{}{
		"src": sourceID,
		"dst": targetID,
	}); err != nil {
		return unavailable("add edge", err)
	}
	return nil
}

func (s *GraphStore) Edges(ctx context.Context, id string, maxHops int) ([]Relation, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	if maxHops < 1 {
		maxHops = 1
	}
	if maxHops > 3 {
		maxHops = 3
	}

	query := fmt.Sprintf(`
		MATCH (start {id: $id})-[rels*1..%d]-(connected)
		UNWIND rels AS r
		RETURN DISTINCT startNode(r).id AS src, endNode(r).id AS dst, type(r) AS label`,
		maxHops)

	result, err := session.Run(ctx, query, map[string]interface{}{"id": id})
	if err != nil {
		return nil, unavailable("edges", err)
	}

	var edges []Relation
	for result.Next(ctx) {
		rec := result.Record()
		var e Relation
		if v, ok := rec.Get("src"); ok && v != nil {
			e.SourceID = v.(string)
		}
		if v, ok := rec.Get("dst"); ok && v != nil {
			e.TargetID = v.(string)
		}
		if v, ok := rec.Get("label"); ok && v != nil {
			e.Label = v.(string)
		}
		edges = append(edges, e)
	}
	return edges, nil
}

func (s *GraphStore) SetEmbedding(ctx context.Context, typ MemoryType, id string, vec []float32) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	vals := make([]float64, len(vec))
	for i, v := range vec {
		vals[i] = float64(v)
	}

	query := fmt.Sprintf(`
		MATCH (m:%s {id: $id})
		SET m.embedding = $embedding
		RETURN m.id AS id`, typ.Label())

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id":        id,
		"embedding": vals,
	})
	if err != nil {
		return unavailable("set embedding", err)
	}
	if !result.Next(ctx) {
		return ErrNotFound
	}
	return nil
}

func (s *GraphStore) NodesWithEmbedding(ctx context.Context, typ *MemoryType, limit int) ([]*Node, error) {
	var types []MemoryType
	if typ != nil {
		types = []MemoryType{*typ}
	}
	return s.find(ctx, types, "m.embedding IS NOT NULL",
		map[string]interface{}{}, limit)
}

func (s *GraphStore) ListNodes(ctx context.Context, typ MemoryType, limit int) ([]*Node, error) {
	return s.find(ctx, []MemoryType{typ}, "true", map[string]interface{}{}, limit)
}

func recordToNode(rec *neo4j.Record, typ MemoryType) *Node {
	n := &Node{Type: typ}
	if v, ok := rec.Get("id"); ok && v != nil {
		n.ID = v.(string)
	}
	if v, ok := rec.Get("content"); ok && v != nil {
		n.Content = v.(string)
	}
	if v, ok := rec.Get("ts"); ok && v != nil {
		switch ts := v.(type) {
		case time.Time:
			n.Timestamp = ts
		case string:
			if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				n.Timestamp = parsed
			}
		}
	}
	if v, ok := rec.Get("tags"); ok && v != nil {
		if raw, ok := v.([]interface{}); ok {
			for _, t := range raw {
				if s, ok := t.(string); ok {
					n.Tags = append(n.Tags, s)
				}
			}
		}
	}
	if v, ok := rec.Get("embedding"); ok && v != nil {
		if raw, ok := v.([]interface{}); ok {
			for _, f := range raw {
				if fv, ok := f.(float64); ok {
					n.Embedding = append(n.Embedding, float32(fv))
				}
			}
		}
	}
	return n
}

func typeForLabel(label string) MemoryType {
	for _, t := range AllTypes {
		if t.Label() == label {
			return t
		}
	}
	return Working
}

func unavailable(op string, err error) error {
	return fmt.Errorf("graph %s: %w", op, errors.Join(ErrStoreUnavailable, err))
}
