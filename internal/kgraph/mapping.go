package kgraph

import (
	"fmt"
	"strings"
)

// ExtractedEntity is one tagged span from the external NLP extraction step.
// The engine depends only on this shape.
type ExtractedEntity struct {
	Text  string `json:"span_text"`
	Label string `json:"type_label"`
}

// MapEntityType resolves an extraction label and its span text to an entity
// type. Pattern rules run after the label rules: CVE identifiers become
// vulnerabilities and slash-bearing spans (CIDR-ish) become networks.
func MapEntityType(label, text string) EntityType {
	switch {
	case label == "PERSON":
		return EntityUser
	case strings.Contains(text, "CVE"):
		return EntityVulnerability
	case strings.Contains(text, "/"):
		return EntityNetwork
	case label == "ORG":
		return EntityThreat
	}
	return EntityUnknown
}

// InjectEntities adds every resolvable extracted entity to the graph.
// Unknown-typed spans are dropped. Returns the ids injected, in input order.
func InjectEntities(g *Graph, entities []ExtractedEntity) []string {
	var ids []string
	for i, ent := range entities {
		typ := MapEntityType(ent.Label, ent.Text)
		if typ == EntityUnknown {
			continue
		}
		id := fmt.Sprintf("%s_%d_%s",
			strings.ToLower(string(typ)), i, strings.ReplaceAll(ent.Text, " ", "_"))
		g.AddEntity(typ, id, map[string]string{"label": ent.Text})
		ids = append(ids, id)
	}
	return ids
}
