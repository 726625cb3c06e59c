// Package graphstore persists extracted entities and relations to an
// external knowledge graph. A no-op implementation is selected when
// NEO4J_ENABLED=false, at which point relation extraction is skipped
// entirely upstream.
package graphstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/docforge/ingestproc/internal/model"
)

// GraphStore is the narrow interface the upload and enrichment workers
// depend on; cascade delete and relation writes both go through it.
type GraphStore interface {
	UpsertNode(ctx context.Context, node model.GraphNode) error
	UpsertEdge(ctx context.Context, edge model.GraphEdge) error
	DeleteSubgraph(ctx context.Context, docID, tenantID uuid.UUID) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// NoopStore discards every write; selected when NEO4J_ENABLED=false.
type NoopStore struct{}

func (NoopStore) UpsertNode(context.Context, model.GraphNode) error          { return nil }
func (NoopStore) UpsertEdge(context.Context, model.GraphEdge) error          { return nil }
func (NoopStore) DeleteSubgraph(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (NoopStore) Ping(context.Context) error                                { return nil }
func (NoopStore) Close(context.Context) error                               { return nil }
