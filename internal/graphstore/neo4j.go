package graphstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/docforge/ingestproc/internal/model"
)

// Neo4jStore backs GraphStore with a real knowledge graph; nodes are keyed
// by (name, tenant_id) and every node/edge carries its originating doc_id
// so DeleteSubgraph can remove exactly one document's contribution.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jStore(uri, username, password string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Neo4jStore{driver: driver}, nil
}

func (s *Neo4jStore) UpsertNode(ctx context.Context, node model.GraphNode) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MERGE (n:Entity {name: $name, tenant_id: $tenant_id})
			SET n.label = $label, n.doc_id = $doc_id`,
			map[string]any{
				"name": node.Name, "tenant_id": node.TenantID.String(),
				"label": string(node.Label), "doc_id": node.DocID.String(),
			})
	})
	if err != nil {
		return fmt.Errorf("upsert node %s: %w", node.Name, err)
	}
	return nil
}

func (s *Neo4jStore) UpsertEdge(ctx context.Context, edge model.GraphEdge) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MERGE (s:Entity {name: $subject, tenant_id: $tenant_id})
			MERGE (o:Entity {name: $object, tenant_id: $tenant_id})
			MERGE (s)-[r:RELATES {type: $relation, doc_id: $doc_id}]->(o)`,
			map[string]any{
				"subject": edge.Subject.Name, "object": edge.Object.Name,
				"tenant_id": edge.TenantID.String(), "relation": edge.Relation,
				"doc_id": edge.DocID.String(),
			})
	})
	if err != nil {
		return fmt.Errorf("upsert edge %s-%s-%s: %w", edge.Subject.Name, edge.Relation, edge.Object.Name, err)
	}
	return nil
}

func (s *Neo4jStore) DeleteSubgraph(ctx context.Context, docID, tenantID uuid.UUID) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (n:Entity {tenant_id: $tenant_id, doc_id: $doc_id})
			DETACH DELETE n`,
			map[string]any{"tenant_id": tenantID.String(), "doc_id": docID.String()})
	})
	if err != nil {
		return fmt.Errorf("delete subgraph for doc %s: %w", docID, err)
	}
	return nil
}

// Ping verifies connectivity to the configured Neo4j instance, for use as
// a health dependency probe.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}
