package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docforge/ingestproc/internal/model"
)

func TestSanitizeRelationsDropsIncomplete(t *testing.T) {
	candidates := []RelationCandidate{
		{Subject: "Acme", SubjectType: "organization", Relation: "founded by", Object: "Jane Doe", ObjectType: "person"},
		{Subject: "", Relation: "works at", Object: "Acme"},
		{Subject: "Bob", Relation: "", Object: "Acme"},
	}

	edges := SanitizeRelations(candidates)
	assert.Len(t, edges, 1)
	assert.Equal(t, model.NodeOrganization, edges[0].Subject.Label)
	assert.Equal(t, model.NodePerson, edges[0].Object.Label)
	assert.Equal(t, "FOUNDED_BY", edges[0].Relation)
}

func TestSanitizeRelationsFallsBackToEntityLabel(t *testing.T) {
	candidates := []RelationCandidate{
		{Subject: "X", SubjectType: "widget", Relation: "relates to!!", Object: "Y", ObjectType: "gadget"},
	}
	edges := SanitizeRelations(candidates)
	assert.Len(t, edges, 1)
	assert.Equal(t, model.NodeEntity, edges[0].Subject.Label)
	assert.Equal(t, model.NodeEntity, edges[0].Object.Label)
	assert.Equal(t, "RELATES_TO", edges[0].Relation)
}
