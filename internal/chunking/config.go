// Package chunking turns a document's parsed sections into token-bounded
// chunks, with type-specific handling for prose, lists, and tables and a
// greedy accumulate-with-overlap strategy borrowed from the recursive
// character splitting idiom used elsewhere in the stack.
package chunking

import "github.com/docforge/ingestproc/internal/tokenizer"

// Config bounds every handler's output in tokens, as counted by Counter.
type Config struct {
	ChunkTokens        int
	OverlapTokens      int
	SectionLimit       int
	DocLimit           int
	ListLimit          int
	TableLimit         int
	TableRowGroupTokens int // 0 = derive from ChunkTokens minus header cost
	TableRowOverlap     int // 0 = derive from OverlapTokens
}

// DefaultConfig matches the processor's documented defaults.
func DefaultConfig() Config {
	return Config{
		ChunkTokens:         512,
		OverlapTokens:       64,
		SectionLimit:        1024,
		DocLimit:            512,
		ListLimit:           512,
		TableLimit:          512,
		TableRowGroupTokens: 256,
		TableRowOverlap:     1,
	}
}

// Section is one parser-emitted unit of source text, identified by its
// block type so the chunker can dispatch to the right handler.
type Section struct {
	Text string
	Meta map[string]interface{}
	Type string // "paragraph", "heading", "list", "list_item", "table", ...
}

// Chunk is one output unit: bounded text plus combined source metadata.
type Chunk struct {
	Text      string
	Meta      map[string]interface{}
	BlockType string
}

// Chunker splits a document's sections into chunks per Config.
type Chunker struct {
	cfg     Config
	counter tokenizer.Counter
}

func New(cfg Config, counter tokenizer.Counter) *Chunker {
	return &Chunker{cfg: cfg, counter: counter}
}

func (c *Chunker) count(s string) int {
	return c.counter.Count(s)
}
