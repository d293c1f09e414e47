package memory

import (
	"errors"
	"fmt"
	"time"
)

// MemoryType classifies a memory node. The set is closed: every switch over
// it in this package enumerates all five members.
type MemoryType string

const (
	Working    MemoryType = "working"
	LongTerm   MemoryType = "long_term"
	Episodic   MemoryType = "episodic"
	Semantic   MemoryType = "semantic"
	Procedural MemoryType = "procedural"
)

// AllTypes lists every recognized memory type.
var AllTypes = []MemoryType{Working, LongTerm, Episodic, Semantic, Procedural}

// Sentinel errors for the store contract.
var (
	ErrNotFound         = errors.New("memory: node not found")
	ErrStoreUnavailable = errors.New("memory: store unavailable")
	ErrInvalidType      = errors.New("memory: invalid memory type")
)

// ParseMemoryType validates a caller-supplied type string before any store
// access happens.
func ParseMemoryType(s string) (MemoryType, error) {
	switch MemoryType(s) {
	case Working, LongTerm, Episodic, Semantic, Procedural:
		return MemoryType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// Label returns the graph label used for nodes of this type.
func (t MemoryType) Label() string {
	switch t {
	case Working:
		return "WorkingMemory"
	case LongTerm:
		return "LongTermMemory"
	case Episodic:
		return "EpisodicMemory"
	case Semantic:
		return "SemanticMemory"
	case Procedural:
		return "ProceduralMemory"
	}
	return "Memory"
}

// Prefix returns the two-letter id prefix for this type.
func (t MemoryType) Prefix() string {
	switch t {
	case Working:
		return "wm"
	case LongTerm:
		return "lt"
	case Episodic:
		return "ep"
	case Semantic:
		return "se"
	case Procedural:
		return "pr"
	}
	return "me"
}

// Node is a stored observation or derived fact.
type Node struct {
	ID        string     `json:"id"`
	Type      MemoryType `json:"memory_type"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	Tags      []string   `json:"tags,omitempty"`
	Embedding []float32  `json:"embedding,omitempty"`
}

// HasEmbedding reports whether an embedding has been attached to the node.
func (n *Node) HasEmbedding() bool {
	return len(n.Embedding) > 0
}

// Relation is a directed, labeled edge between two memory nodes. The edge is
// metadata only; neither endpoint owns it.
type Relation struct {
	SourceID string `json:"source"`
	TargetID string `json:"target"`
	Label    string `json:"relation_label"`
}
