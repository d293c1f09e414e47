package kgraph

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultMaxDepth caps path enumeration. All-simple-paths is exponential in
// dense graphs; the depth bound keeps pathological inputs tractable.
const DefaultMaxDepth = 6

// PathResult is one discovered path from a start entity to a threat.
type PathResult struct {
	Path   []string `json:"path"`
	Threat string   `json:"threat"`
	Length int      `json:"length"` // hop count
}

// Reasoner discovers and ranks multi-hop paths from an entity to every known
// threat entity.
type Reasoner struct {
	graph    *Graph
	maxDepth int
	logger   *zap.Logger
}

// NewReasoner returns a Reasoner with the default depth bound.
func NewReasoner(graph *Graph, logger *zap.Logger) *Reasoner {
	return &Reasoner{graph: graph, maxDepth: DefaultMaxDepth, logger: logger}
}

// SetMaxDepth overrides the hop bound for path enumeration.
func (r *Reasoner) SetMaxDepth(depth int) {
	if depth > 0 {
		r.maxDepth = depth
	}
}

// DetectThreatPaths enumerates every simple directed path from startID to
// each Threat-typed entity, shortest first. A threat with no path simply
// contributes no entries.
func (r *Reasoner) DetectThreatPaths(startID string) []PathResult {
	var results []PathResult
	for _, threat := range r.graph.EntitiesOfType(EntityThreat) {
		if threat.ID == startID {
			continue
		}
		for _, path := range r.simplePaths(startID, threat.ID) {
			results = append(results, PathResult{
				Path:   path,
				Threat: threat.ID,
				Length: len(path) - 1,
			})
		}
	}
	sortPaths(results)

	r.logger.Debug("threat path detection complete",
		zap.String("start", startID),
		zap.Int("paths", len(results)))
	return results
}

// simplePaths runs a DFS collecting every path from start to goal that
// repeats no node, bounded by maxDepth hops.
func (r *Reasoner) simplePaths(start, goal string) [][]string {
	if r.graph.Entity(start) == nil || r.graph.Entity(goal) == nil {
		return nil
	}

	var paths [][]string
	onPath := map[string]bool{start: true}
	path := []string{start}

	var walk func(node string)
	walk = func(node string) {
		if node == goal {
			paths = append(paths, append([]string(nil), path...))
			return
		}
		if len(path)-1 >= r.maxDepth {
			return
		}
		for _, next := range r.graph.Neighbors(node) {
			if onPath[next] {
				continue
			}
			onPath[next] = true
			path = append(path, next)
			walk(next)
			path = path[:len(path)-1]
			onPath[next] = false
		}
	}
	walk(start)
	return paths
}

// sortPaths orders shortest first; equal lengths order by threat id then path.
func sortPaths(results []PathResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return pathLess(results[i], results[j])
	})
}

func pathLess(a, b PathResult) bool {
	if a.Length != b.Length {
		return a.Length < b.Length
	}
	if a.Threat != b.Threat {
		return a.Threat < b.Threat
	}
	return strings.Join(a.Path, ">") < strings.Join(b.Path, ">")
}

// Summarize renders one line per path. Empty input yields a fixed message.
func Summarize(paths []PathResult) string {
	if len(paths) == 0 {
		return "No threat paths found."
	}
	lines := make([]string, len(paths))
	for i, p := range paths {
		lines[i] = fmt.Sprintf("Path to %s: %s (Length: %d)",
			p.Threat, strings.Join(p.Path, " -> "), p.Length)
	}
	return strings.Join(lines, "\n")
}
