package memory

import (
	"context"
	"testing"
	"time"
)

func TestCreateNodeIfAbsentIdempotent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	first, err := s.CreateNodeIfAbsent(ctx, &Node{
		ID:      "wm_00000001",
		Type:    Working,
		Content: "original content",
	})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Second create with the same id must return the existing node and
	// leave content and timestamp untouched.
	second, err := s.CreateNodeIfAbsent(ctx, &Node{
		ID:      "wm_00000001",
		Type:    Working,
		Content: "different content",
	})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.Content != "original content" {
		t.Errorf("content overwritten: got %q", second.Content)
	}
	if !second.Timestamp.Equal(first.Timestamp) {
		t.Errorf("timestamp mutated: %v != %v", second.Timestamp, first.Timestamp)
	}
}

func TestFindNodesCaseInsensitive(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	s.CreateNodeIfAbsent(ctx, &Node{ID: "lt_1", Type: LongTerm, Content: "Network Anomaly Report"})
	s.CreateNodeIfAbsent(ctx, &Node{ID: "se_1", Type: Semantic, Content: "port scanning technique"})

	got, err := s.FindNodes(ctx, []MemoryType{LongTerm}, "NETWORK", 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 1 || got[0].ID != "lt_1" {
		t.Fatalf("got %d results, want lt_1", len(got))
	}
}

func TestFindNodesAnyKeyword(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	s.CreateNodeIfAbsent(ctx, &Node{ID: "lt_1", Type: LongTerm, Content: "network anomaly report"})
	s.CreateNodeIfAbsent(ctx, &Node{ID: "ep_1", Type: Episodic, Content: "user logged in from new device"})
	s.CreateNodeIfAbsent(ctx, &Node{ID: "wm_1", Type: Working, Content: "network event"})

	got, err := s.FindNodesAnyKeyword(ctx, []MemoryType{LongTerm, Semantic, Episodic},
		[]string{"network", "missing"}, 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 1 || got[0].ID != "lt_1" {
		t.Fatalf("got %v, want only lt_1 (working nodes excluded by type filter)", got)
	}
}

func TestFindNodesOrderingAndLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"lt_a", "lt_b", "lt_c"} {
		s.CreateNodeIfAbsent(ctx, &Node{
			ID:        id,
			Type:      LongTerm,
			Content:   "shared term",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	got, err := s.FindNodes(ctx, []MemoryType{LongTerm}, "shared", 2)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("limit not applied: got %d results", len(got))
	}
	if got[0].ID != "lt_c" || got[1].ID != "lt_b" {
		t.Errorf("not ordered by descending timestamp: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestGetNodeNotFound(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.GetNode(ctx, Working, "wm_missing"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	// Right id, wrong type is also not found.
	s.CreateNodeIfAbsent(ctx, &Node{ID: "lt_1", Type: LongTerm, Content: "x"})
	if _, err := s.GetNode(ctx, Working, "lt_1"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound for type mismatch", err)
	}
}

func TestAddEdgeRequiresEndpoints(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	s.CreateNodeIfAbsent(ctx, &Node{ID: "wm_1", Type: Working, Content: "a"})
	if err := s.AddEdge(ctx, "wm_1", "lt_missing", RelRefersTo); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestEdgesHopBound(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"wm_1", "lt_1", "se_1", "ep_1"} {
		s.CreateNodeIfAbsent(ctx, &Node{ID: id, Type: Working, Content: id})
	}
	// wm_1 -> lt_1 -> se_1 -> ep_1
	s.AddEdge(ctx, "wm_1", "lt_1", RelRefersTo)
	s.AddEdge(ctx, "lt_1", "se_1", RelContainsFacts)
	s.AddEdge(ctx, "se_1", "ep_1", RelRelatedTo)

	one, _ := s.Edges(ctx, "wm_1", 1)
	if len(one) != 1 {
		t.Errorf("1 hop: got %d edges, want 1", len(one))
	}
	three, _ := s.Edges(ctx, "wm_1", 3)
	if len(three) != 3 {
		t.Errorf("3 hops: got %d edges, want 3", len(three))
	}
}

func TestNodesWithEmbedding(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	s.CreateNodeIfAbsent(ctx, &Node{ID: "lt_1", Type: LongTerm, Content: "a"})
	s.CreateNodeIfAbsent(ctx, &Node{ID: "se_1", Type: Semantic, Content: "b"})
	if err := s.SetEmbedding(ctx, Semantic, "se_1", []float32{0.1, 0.2}); err != nil {
		t.Fatalf("set embedding: %v", err)
	}

	all, err := s.NodesWithEmbedding(ctx, nil, 10)
	if err != nil {
		t.Fatalf("nodes with embedding: %v", err)
	}
	if len(all) != 1 || all[0].ID != "se_1" {
		t.Fatalf("got %d candidates, want only se_1", len(all))
	}

	lt := LongTerm
	none, err := s.NodesWithEmbedding(ctx, &lt, 10)
	if err != nil {
		t.Fatalf("filtered: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("type filter leaked %d nodes", len(none))
	}
}
