package memory

import "testing"

func TestInferRelationPairs(t *testing.T) {
	cases := []struct {
		source, target MemoryType
		want           string
	}{
		{Working, LongTerm, RelTransfersTo},
		{LongTerm, Episodic, RelContainsEpisodes},
		{LongTerm, Semantic, RelContainsFacts},
		{LongTerm, Procedural, RelContainsSkills},
		{Episodic, Semantic, RelRelatedTo},
		{Semantic, Procedural, RelInforms},
		// Unmapped pairs fall back to RELATED_TO.
		{Working, Semantic, RelRelatedTo},
		{Procedural, Working, RelRelatedTo},
		{Semantic, LongTerm, RelRelatedTo},
	}
	for _, tc := range cases {
		if got := InferRelation(tc.source, tc.target); got != tc.want {
			t.Errorf("InferRelation(%s, %s) = %s, want %s", tc.source, tc.target, got, tc.want)
		}
	}
}

func TestInferLinkRelation(t *testing.T) {
	cases := []struct {
		target MemoryType
		want   string
	}{
		{LongTerm, RelRefersTo},
		{Semantic, RelRelatesTo},
		{Episodic, RelRecalls},
		{Working, RelAssociatedWith},
		{Procedural, RelAssociatedWith},
	}
	for _, tc := range cases {
		if got := InferLinkRelation(tc.target); got != tc.want {
			t.Errorf("InferLinkRelation(%s) = %s, want %s", tc.target, got, tc.want)
		}
	}
}

func TestParseMemoryType(t *testing.T) {
	for _, s := range []string{"working", "long_term", "episodic", "semantic", "procedural"} {
		if _, err := ParseMemoryType(s); err != nil {
			t.Errorf("ParseMemoryType(%q) returned error: %v", s, err)
		}
	}
	if _, err := ParseMemoryType("short_term"); err == nil {
		t.Error("ParseMemoryType accepted unknown type")
	}
}
