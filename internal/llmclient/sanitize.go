package llmclient

import (
	"strings"

	"github.com/docforge/ingestproc/internal/model"
)

// SanitizeRelations applies the coercion and discard rules for relations
// returned by the LLM: missing required fields drop the item silently;
// types are coerced to the allowed node-label set; relation tokens are
// upper-cased alphanumeric-plus-underscore.
func SanitizeRelations(candidates []RelationCandidate) []model.GraphEdge {
	var edges []model.GraphEdge

	for _, c := range candidates {
		if c.Subject == "" || c.Object == "" || c.Relation == "" {
			continue
		}

		edges = append(edges, model.GraphEdge{
			Subject:  model.GraphNode{Name: c.Subject, Label: model.CoerceNodeLabel(c.SubjectType)},
			Object:   model.GraphNode{Name: c.Object, Label: model.CoerceNodeLabel(c.ObjectType)},
			Relation: sanitizeRelationToken(c.Relation),
		})
	}

	return edges
}

// sanitizeRelationToken upper-cases the token, replaces spaces with
// underscores, and drops any other non-alphanumeric character.
func sanitizeRelationToken(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")

	var sb strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
