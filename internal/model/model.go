// Package model defines the persisted entities of the ingestion pipeline:
// documents, chunks, the task queue, embedding configuration, graph
// objects, and the LLM audit log.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StageStatus is the per-stage state machine value stored in a chunk's
// enrichment status map.
type StageStatus struct {
	Status       string     `json:"status"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

const (
	StagePending    = "pending"
	StageProcessing = "processing"
	StageCompleted  = "completed"
	StageFailed     = "failed"
)

const (
	StageEmbeddingGeneration = "embedding_generation"
	StageMetadataExtraction  = "metadata_extraction"
	StageRelationExtraction  = "relation_extraction"
)

// EnrichmentStatus maps a stage name to its current status. The map stays
// open-ended (stage names are configuration-driven: relation_extraction is
// only present when the graph store is enabled) unlike the rest of the
// model, which uses named fields for every well-known key.
type EnrichmentStatus map[string]StageStatus

func (s EnrichmentStatus) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	return json.Marshal(s)
}

func (s *EnrichmentStatus) Scan(value interface{}) error {
	if value == nil {
		*s = EnrichmentStatus{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(raw, s)
}

// SectionMeta records one composite section's contribution to a combined
// chunk, per the metadata-combination rule in the chunker contract.
type SectionMeta struct {
	Index int                    `json:"index"`
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// ChunkMetadata is the typed sidecar replacing an unstructured metadata
// map: well-known keys the processor itself writes or reads get named
// fields, and Extra round-trips through the same JSON column under the
// "extra" key. Other top-level keys in the column are dropped on Scan.
type ChunkMetadata struct {
	ContextPath []string                 `json:"context_path,omitempty"`
	Sections    []SectionMeta            `json:"sections,omitempty"`
	IsWholeDoc  bool                     `json:"is_whole_doc,omitempty"`
	LLMMetadata map[string]interface{}   `json:"llm_metadata_extraction,omitempty"`
	LLMRelation map[string]interface{}   `json:"llm_relation_extraction,omitempty"`
	Extra       map[string]interface{}   `json:"extra,omitempty"`
}

func (m ChunkMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *ChunkMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = ChunkMetadata{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(raw, m)
}

// JSONMap is an open key-value map that round-trips through a single jsonb
// column via encoding/json.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Document is the owning entity of a tenant's uploaded file.
type Document struct {
	DocID       uuid.UUID `db:"doc_id" json:"doc_id"`
	TenantID    uuid.UUID `db:"tenant_id" json:"tenant_id"`
	OwnerUserID uuid.UUID `db:"owner_user_id" json:"owner_user_id"`
	Filename    string    `db:"filename" json:"filename"`
	Title       string    `db:"title" json:"title,omitempty"`
	Author      string    `db:"author" json:"author,omitempty"`
	Metadata    JSONMap   `db:"metadata" json:"metadata,omitempty"`
	UploadedAt  time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// Chunk is the atomic unit of retrieval and enrichment, keyed by
// (doc_id, chunk_id).
type Chunk struct {
	DocID            uuid.UUID        `db:"doc_id" json:"doc_id"`
	ChunkID          int              `db:"chunk_id" json:"chunk_id"`
	TenantID         uuid.UUID        `db:"tenant_id" json:"tenant_id"`
	Text             string           `db:"text" json:"text"`
	Section          string           `db:"section" json:"section,omitempty"`
	Type             string           `db:"type" json:"type,omitempty"`
	BlockType        string           `db:"block_type" json:"block_type,omitempty"`
	Metadata         ChunkMetadata    `db:"metadata" json:"metadata"`
	Embedding        []float32        `db:"-" json:"embedding,omitempty"`
	EmbeddingVersion int              `db:"embedding_version" json:"embedding_version"`
	EnrichmentStatus EnrichmentStatus `db:"enrichment_status" json:"enrichment_status"`
}

// Operation is the action a queue row represents.
type Operation string

const (
	OperationCreated       Operation = "created"
	OperationUpdated       Operation = "updated"
	OperationDeleted       Operation = "deleted"
	OperationStatusChanged Operation = "status_changed"
)

// TaskStatus is the lifecycle state of a queue row.
type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "new"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is a row in the knowledge_events queue table.
type Task struct {
	ID            int64      `db:"id" json:"id"`
	ItemUUID      uuid.UUID  `db:"item_uuid" json:"item_uuid"`
	TenantID      uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	UserID        uuid.UUID  `db:"user_id" json:"user_id"`
	Operation     Operation  `db:"operation" json:"operation"`
	OperationTime time.Time  `db:"operation_time" json:"operation_time"`
	ItemName      string     `db:"item_name" json:"item_name"`
	ItemType      string     `db:"item_type" json:"item_type"`
	Content       string     `db:"content" json:"content,omitempty"`
	Status        TaskStatus `db:"status" json:"status"`
	S3Path        string     `db:"s3_path" json:"s3_path,omitempty"`
	ResultMessage string     `db:"result_message" json:"result_message,omitempty"`
}

// IsTerminal reports whether the task has reached done/failed.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusDone || t.Status == TaskStatusFailed
}

// EmbeddingConfig is the process-wide record of how embeddings are
// produced. A change to ModelName or Dimension requires the migration
// worker to run before Version can advance.
type EmbeddingConfig struct {
	ModelName string `db:"model_name" json:"model_name"`
	Dimension int    `db:"dimension" json:"dimension"`
	Version   int    `db:"version" json:"version"`
	Generator string `db:"generator" json:"generator"`
}

// NodeLabel restricts graph node types to the spec's closed set, falling
// back to ENTITY for anything else.
type NodeLabel string

const (
	NodePerson       NodeLabel = "PERSON"
	NodeOrganization NodeLabel = "ORGANIZATION"
	NodeLocation     NodeLabel = "LOCATION"
	NodeDate         NodeLabel = "DATE"
	NodeProduct      NodeLabel = "PRODUCT"
	NodeEvent        NodeLabel = "EVENT"
	NodeConcept      NodeLabel = "CONCEPT"
	NodeEntity       NodeLabel = "ENTITY"
)

var allowedNodeLabels = map[NodeLabel]bool{
	NodePerson: true, NodeOrganization: true, NodeLocation: true, NodeDate: true,
	NodeProduct: true, NodeEvent: true, NodeConcept: true, NodeEntity: true,
}

// CoerceNodeLabel upper-cases an arbitrary label and falls back to ENTITY
// when it isn't one of the allowed types.
func CoerceNodeLabel(s string) NodeLabel {
	label := NodeLabel(upper(s))
	if allowedNodeLabels[label] {
		return label
	}
	return NodeEntity
}

// GraphNode is an entity extracted from a chunk and persisted in the
// external graph store, keyed by (Name, TenantID).
type GraphNode struct {
	Name     string    `json:"name"`
	Label    NodeLabel `json:"label"`
	TenantID uuid.UUID `json:"tenant_id"`
	DocID    uuid.UUID `json:"doc_id"`
}

// GraphEdge is a labeled relation between two graph nodes.
type GraphEdge struct {
	Subject  GraphNode `json:"subject"`
	Relation string    `json:"relation"`
	Object   GraphNode `json:"object"`
	TenantID uuid.UUID `json:"tenant_id"`
	DocID    uuid.UUID `json:"doc_id"`
}

// LLMLogRecord is one append-only audit row for an LLM or embedding call.
type LLMLogRecord struct {
	Start            time.Time `db:"start_time" json:"start"`
	End              time.Time `db:"end_time" json:"end"`
	DurationMillis   int64     `db:"duration_ms" json:"duration_ms"`
	Success          bool      `db:"success" json:"success"`
	RequestType      string    `db:"request_type" json:"request_type"`
	Model            string    `db:"model" json:"model"`
	Prompt           string    `db:"prompt" json:"prompt,omitempty"`
	RawResponse      string    `db:"raw_response" json:"raw_response,omitempty"`
	Error            string    `db:"error" json:"error,omitempty"`
	PromptTokens     int       `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int       `db:"completion_tokens" json:"completion_tokens"`
	TenantID         uuid.UUID `db:"tenant_id" json:"tenant_id"`
	DocID            uuid.UUID `db:"doc_id" json:"doc_id"`
	ChunkID          int       `db:"chunk_id" json:"chunk_id"`
}

func upper(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
