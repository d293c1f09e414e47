package kgraph

import (
	"strings"
	"testing"

	"go.uber.org/zap"
)

func chainGraph() *Graph {
	// User_A -> Device_X -> Network_1 -> Threat_Z -> Vuln_Y
	g := NewGraph()
	g.AddEntity(EntityUser, "User_A", nil)
	g.AddEntity(EntityDevice, "Device_X", nil)
	g.AddEntity(EntityNetwork, "Network_1", nil)
	g.AddEntity(EntityThreat, "Threat_Z", nil)
	g.AddEntity(EntityVulnerability, "Vuln_Y", nil)
	g.AddRelationship("User_A", "Device_X", "owns", nil)
	g.AddRelationship("Device_X", "Network_1", "connected_to", nil)
	g.AddRelationship("Network_1", "Threat_Z", "exposed_to", nil)
	g.AddRelationship("Threat_Z", "Vuln_Y", "exploits", nil)
	return g
}

func TestDetectThreatPathsSingleChain(t *testing.T) {
	r := NewReasoner(chainGraph(), zap.NewNop())

	paths := r.DetectThreatPaths("User_A")
	if len(paths) != 1 {
		t.Fatalf("got %d paths, want exactly 1", len(paths))
	}
	p := paths[0]
	if p.Threat != "Threat_Z" {
		t.Errorf("threat = %s, want Threat_Z", p.Threat)
	}
	if p.Length != 3 {
		t.Errorf("length = %d hops, want 3", p.Length)
	}
	want := []string{"User_A", "Device_X", "Network_1", "Threat_Z"}
	if strings.Join(p.Path, ",") != strings.Join(want, ",") {
		t.Errorf("path = %v, want %v", p.Path, want)
	}
}

func TestDetectThreatPathsNoRoute(t *testing.T) {
	g := chainGraph()
	g.AddEntity(EntityThreat, "Threat_Isolated", nil)

	r := NewReasoner(g, zap.NewNop())
	paths := r.DetectThreatPaths("User_A")

	// The unreachable threat contributes no entries; the chain threat still
	// yields its single path.
	if len(paths) != 1 {
		t.Fatalf("got %d paths, want 1", len(paths))
	}
	for _, p := range paths {
		if p.Threat == "Threat_Isolated" {
			t.Error("unreachable threat produced a path entry")
		}
	}
}

func TestDetectThreatPathsMultipleRoutes(t *testing.T) {
	g := NewGraph()
	g.AddEntity(EntityUser, "u1", nil)
	g.AddEntity(EntityDevice, "d1", nil)
	g.AddEntity(EntityDevice, "d2", nil)
	g.AddEntity(EntityThreat, "t1", nil)
	g.AddRelationship("u1", "d1", "owns", nil)
	g.AddRelationship("u1", "d2", "owns", nil)
	g.AddRelationship("d1", "t1", "exposed_to", nil)
	g.AddRelationship("d2", "t1", "exposed_to", nil)
	// Direct route too.
	g.AddRelationship("u1", "t1", "targeted_by", nil)

	r := NewReasoner(g, zap.NewNop())
	paths := r.DetectThreatPaths("u1")
	if len(paths) != 3 {
		t.Fatalf("got %d paths, want 3 distinct simple paths", len(paths))
	}
	// Shortest first.
	if paths[0].Length != 1 {
		t.Errorf("first path length = %d, want the 1-hop direct route", paths[0].Length)
	}
}

func TestDetectThreatPathsSimpleOnly(t *testing.T) {
	g := NewGraph()
	g.AddEntity(EntityUser, "u1", nil)
	g.AddEntity(EntityNetwork, "n1", nil)
	g.AddEntity(EntityThreat, "t1", nil)
	g.AddRelationship("u1", "n1", "member_of", nil)
	g.AddRelationship("n1", "u1", "contains", nil) // cycle back
	g.AddRelationship("n1", "t1", "exposed_to", nil)

	r := NewReasoner(g, zap.NewNop())
	paths := r.DetectThreatPaths("u1")
	if len(paths) != 1 {
		t.Fatalf("cycle produced %d paths, want 1 (no repeated nodes)", len(paths))
	}
}

func TestDetectThreatPathsMaxDepth(t *testing.T) {
	g := NewGraph()
	ids := []string{"u1", "d1", "d2", "d3", "t1"}
	g.AddEntity(EntityUser, "u1", nil)
	g.AddEntity(EntityDevice, "d1", nil)
	g.AddEntity(EntityDevice, "d2", nil)
	g.AddEntity(EntityDevice, "d3", nil)
	g.AddEntity(EntityThreat, "t1", nil)
	for i := 0; i < len(ids)-1; i++ {
		g.AddRelationship(ids[i], ids[i+1], "linked", nil)
	}

	r := NewReasoner(g, zap.NewNop())
	r.SetMaxDepth(2)
	if paths := r.DetectThreatPaths("u1"); len(paths) != 0 {
		t.Fatalf("depth bound ignored: got %d paths", len(paths))
	}
	r.SetMaxDepth(4)
	if paths := r.DetectThreatPaths("u1"); len(paths) != 1 {
		t.Fatalf("got %d paths at depth 4, want 1", len(paths))
	}
}

func TestSummarize(t *testing.T) {
	paths := []PathResult{
		{Path: []string{"User_A", "Device_X", "Threat_Z"}, Threat: "Threat_Z", Length: 2},
	}
	got := Summarize(paths)
	want := "Path to Threat_Z: User_A -> Device_X -> Threat_Z (Length: 2)"
	if got != want {
		t.Errorf("Summarize = %q, want %q", got, want)
	}

	if got := Summarize(nil); got != "No threat paths found." {
		t.Errorf("empty Summarize = %q", got)
	}
}
