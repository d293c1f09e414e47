package memory

// Relation labels shared by both inference variants.
const (
	RelTransfersTo      = "TRANSFERS_TO"
	RelContainsEpisodes = "CONTAINS_EPISODES"
	RelContainsFacts    = "CONTAINS_FACTS"
	RelContainsSkills   = "CONTAINS_SKILLS"
	RelRelatedTo        = "RELATED_TO"
	RelInforms          = "INFORMS"
	RelRefersTo         = "REFERS_TO"
	RelRelatesTo        = "RELATES_TO"
	RelRecalls          = "RECALLS"
	RelAssociatedWith   = "ASSOCIATED_WITH"
)

// InferRelation maps a directed (source, target) type pair to its canonical
// relation label. Used for explicit, caller-specified links. Pairs outside
// the table fall back to RELATED_TO.
func InferRelation(source, target MemoryType) string {
	switch source {
	case Working:
		if target == LongTerm {
			return RelTransfersTo
		}
	case LongTerm:
		switch target {
		case Episodic:
			return RelContainsEpisodes
		case Semantic:
			return RelContainsFacts
		case Procedural:
			return RelContainsSkills
		}
	case Episodic:
		if target == Semantic {
			return RelRelatedTo
		}
	case Semantic:
		if target == Procedural {
			return RelInforms
		}
	case Procedural:
		// No outbound pair is defined for procedural sources.
	}
	return RelRelatedTo
}

// InferLinkRelation keys off the target type alone. This variant is the
// default for automatic linking of a new working-memory node to the related
// nodes discovered by keyword search.
func InferLinkRelation(target MemoryType) string {
	switch target {
	case LongTerm:
		return RelRefersTo
	case Semantic:
		return RelRelatesTo
	case Episodic:
		return RelRecalls
	case Working, Procedural:
		return RelAssociatedWith
	}
	return RelAssociatedWith
}
