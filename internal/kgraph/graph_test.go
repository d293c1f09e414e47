package kgraph

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// capturingPersister records write-through calls.
type capturingPersister struct {
	entities []string
	edges    []Edge
	fail     bool
}

func (p *capturingPersister) PersistEntity(ctx context.Context, e *Entity) error {
	if p.fail {
		return errors.New("neo4j down")
	}
	p.entities = append(p.entities, e.ID)
	return nil
}

func (p *capturingPersister) PersistRelationship(ctx context.Context, edge Edge) error {
	if p.fail {
		return errors.New("neo4j down")
	}
	p.edges = append(p.edges, edge)
	return nil
}

func TestMultigraphEdges(t *testing.T) {
	g := NewGraph()
	g.AddEntity(EntityUser, "u1", nil)
	g.AddEntity(EntityDevice, "d1", nil)

	// Two verbs between the same pair are two edges; a repeated verb is not.
	g.AddRelationship("u1", "d1", "owns", nil)
	g.AddRelationship("u1", "d1", "administers", nil)
	g.AddRelationship("u1", "d1", "owns", nil)

	_, edges := g.Size()
	if edges != 2 {
		t.Fatalf("got %d edges, want 2", edges)
	}
	if n := g.Neighbors("u1"); len(n) != 1 || n[0] != "d1" {
		t.Fatalf("neighbors = %v, want [d1]", n)
	}
}

func TestEntitiesOfTypeSorted(t *testing.T) {
	g := NewGraph()
	g.AddEntity(EntityThreat, "t_b", nil)
	g.AddEntity(EntityThreat, "t_a", nil)
	g.AddEntity(EntityUser, "u1", nil)

	threats := g.EntitiesOfType(EntityThreat)
	if len(threats) != 2 || threats[0].ID != "t_a" || threats[1].ID != "t_b" {
		t.Fatalf("threats = %v, want sorted [t_a t_b]", threats)
	}
}

func TestWriteThroughPersistsEntitiesAndEdges(t *testing.T) {
	g := NewGraph()

	// Writes before attachment stay in memory only (startup hydration).
	g.AddEntity(EntityUser, "u_loaded", nil)

	p := &capturingPersister{}
	g.AttachPersister(p, zap.NewNop())

	g.AddEntity(EntityUser, "u1", nil)
	g.AddEntity(EntityThreat, "t1", map[string]string{"name": "Phishing"})
	g.AddRelationship("u1", "t1", "exposed_to", nil)
	g.AddRelationship("u1", "t1", "exposed_to", nil) // dedup, no second write

	if len(p.entities) != 2 || p.entities[0] != "u1" || p.entities[1] != "t1" {
		t.Fatalf("persisted entities = %v, want [u1 t1]", p.entities)
	}
	if len(p.edges) != 1 || p.edges[0].Verb != "exposed_to" {
		t.Fatalf("persisted edges = %+v, want one exposed_to edge", p.edges)
	}
}

func TestWriteThroughFailureKeepsInMemoryWrite(t *testing.T) {
	g := NewGraph()
	g.AttachPersister(&capturingPersister{fail: true}, zap.NewNop())

	g.AddEntity(EntityUser, "u1", nil)
	g.AddEntity(EntityDevice, "d1", nil)
	g.AddRelationship("u1", "d1", "owns", nil)

	if g.Entity("u1") == nil {
		t.Fatal("entity lost on persistence failure")
	}
	if n := g.Neighbors("u1"); len(n) != 1 {
		t.Fatalf("edge lost on persistence failure: neighbors = %v", n)
	}
}

func TestMapEntityType(t *testing.T) {
	cases := []struct {
		label, text string
		want        EntityType
	}{
		{"PERSON", "Alice", EntityUser},
		{"MISC", "CVE-2024-3094", EntityVulnerability},
		{"MISC", "10.0.0.0/8", EntityNetwork},
		{"ORG", "APT29", EntityThreat},
		{"MISC", "something else", EntityUnknown},
		// Pattern rules outrank the ORG label.
		{"ORG", "CVE-2021-44228", EntityVulnerability},
	}
	for _, tc := range cases {
		if got := MapEntityType(tc.label, tc.text); got != tc.want {
			t.Errorf("MapEntityType(%q, %q) = %s, want %s", tc.label, tc.text, got, tc.want)
		}
	}
}

func TestInjectEntitiesSkipsUnknown(t *testing.T) {
	g := NewGraph()
	ids := InjectEntities(g, []ExtractedEntity{
		{Text: "Alice", Label: "PERSON"},
		{Text: "mystery", Label: "MISC"},
		{Text: "APT29", Label: "ORG"},
	})
	if len(ids) != 2 {
		t.Fatalf("injected %d entities, want 2", len(ids))
	}
	nodes, _ := g.Size()
	if nodes != 2 {
		t.Fatalf("graph has %d nodes, want 2", nodes)
	}
	if g.Entity(ids[0]).Type != EntityUser {
		t.Errorf("first injected type = %s, want User", g.Entity(ids[0]).Type)
	}
}
