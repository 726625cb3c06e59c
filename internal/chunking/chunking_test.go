package chunking

import (
	"strings"
	"testing"

	"github.com/docforge/ingestproc/internal/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitDocumentEmpty(t *testing.T) {
	c := New(DefaultConfig(), tokenizer.NewWhitespaceCounter())
	assert.Nil(t, c.SplitDocument(nil))
}

func TestSplitDocumentWholeDocShortCircuit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DocLimit = 1000
	c := New(cfg, tokenizer.NewWhitespaceCounter())

	sections := []Section{
		{Text: "First paragraph.", Type: "paragraph"},
		{Text: "Second paragraph.", Type: "paragraph"},
	}
	chunks := c.SplitDocument(sections)
	require.Len(t, chunks, 1)
	assert.Equal(t, "doc", chunks[0].BlockType)
	assert.True(t, chunks[0].Meta["is_whole_doc"].(bool))
	assert.Contains(t, chunks[0].Text, "First paragraph.")
	assert.Contains(t, chunks[0].Text, "Second paragraph.")
}

func TestSplitDocumentCompositeOverlap(t *testing.T) {
	cfg := Config{ChunkTokens: 5, OverlapTokens: 2, DocLimit: 0, SectionLimit: 1000, ListLimit: 1000, TableLimit: 1000}
	c := New(cfg, tokenizer.NewWhitespaceCounter())

	sections := []Section{
		{Text: "alpha beta gamma", Type: "paragraph"},
		{Text: "delta epsilon zeta", Type: "paragraph"},
	}
	chunks := c.SplitDocument(sections)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[1].Text, "gamma")
}

func TestSplitDocumentSectionOverLimitGoesToLargeBlockSplitter(t *testing.T) {
	cfg := Config{ChunkTokens: 8, OverlapTokens: 0, DocLimit: 0, SectionLimit: 5, ListLimit: 1000, TableLimit: 1000}
	c := New(cfg, tokenizer.NewWhitespaceCounter())

	longText := "This is one sentence. This is another sentence. And a third one here."
	sections := []Section{{Text: longText, Type: "paragraph"}}

	chunks := c.SplitDocument(sections)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.Equal(t, "section_part", ch.BlockType)
	}
}

func TestSplitListSingleChunkWhenUnderLimit(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg, tokenizer.NewWhitespaceCounter())

	s := Section{Text: "item one\nitem two\nitem three", Type: "list"}
	chunks := c.splitList(s)
	require.Len(t, chunks, 1)
	assert.Equal(t, "list", chunks[0].BlockType)
}

func TestSplitListFlushesWhenOverLimit(t *testing.T) {
	cfg := Config{ChunkTokens: 4, OverlapTokens: 0, ListLimit: 2, SectionLimit: 1000, DocLimit: 0, TableLimit: 1000}
	c := New(cfg, tokenizer.NewWhitespaceCounter())

	s := Section{Text: "first item here\nsecond item here\nthird item here", Type: "list"}
	chunks := c.splitList(s)
	assert.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.Equal(t, "list", ch.BlockType)
	}
}

func TestSplitTableSingleChunkWhenUnderBudget(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg, tokenizer.NewWhitespaceCounter())

	table := strings.Join([]string{
		"| c1 | c2 |",
		"| -- | -- |",
		"| r1 | c1 |",
		"| r2 | c2 |",
	}, "\n")
	s := Section{Text: table, Type: "table", Meta: map[string]interface{}{"section": "tbl-1"}}
	chunks := c.splitTable(s)
	require.Len(t, chunks, 1)
	assert.Equal(t, "table", chunks[0].BlockType)
	assert.Equal(t, "tbl-1", chunks[0].Meta["section"])
}

// TestSplitTableRespectsGroupLimitEvenUnderTableLimit guards against a
// table that fits table_limit but not header+effective_group_limit being
// emitted as a single oversized chunk.
func TestSplitTableRespectsGroupLimitEvenUnderTableLimit(t *testing.T) {
	cfg := Config{
		ChunkTokens: 20, OverlapTokens: 0, TableLimit: 1000,
		SectionLimit: 1000, DocLimit: 0, ListLimit: 1000,
	}
	c := New(cfg, tokenizer.NewWhitespaceCounter())

	var rows []string
	rows = append(rows, "| c1 | c2 |", "| -- | -- |")
	for i := 0; i < 20; i++ {
		rows = append(rows, "| value | another value |")
	}
	s := Section{Text: strings.Join(rows, "\n"), Type: "table"}

	chunks := c.splitTable(s)
	require.Greater(t, len(chunks), 1, "table within table_limit but over the per-chunk budget must still be split")
	for _, ch := range chunks {
		assert.Equal(t, "table", ch.BlockType)
	}
}

func TestSplitTableGroupsWithOverlap(t *testing.T) {
	cfg := Config{
		ChunkTokens: 30, OverlapTokens: 5, TableLimit: 10,
		TableRowGroupTokens: 6, TableRowOverlap: 1,
		SectionLimit: 1000, DocLimit: 0, ListLimit: 1000,
	}
	c := New(cfg, tokenizer.NewWhitespaceCounter())

	table := strings.Join([]string{
		"| c1 | c2 |",
		"| -- | -- |",
		"| r1 | c1 |",
		"| r2 | c2 |",
		"| r3 | c3 |",
		"| r4 | c4 |",
	}, "\n")
	s := Section{Text: table, Type: "table"}
	chunks := c.splitTable(s)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.Contains(t, ch.Text, "c1 | c2")
	}
}

func TestSplitTableFewRowsFallsBackToLargeBlock(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg, tokenizer.NewWhitespaceCounter())

	s := Section{Text: "| c1 | c2 |\n| -- | -- |\n| r1 | c1 |", Type: "table"}
	chunks := c.splitTable(s)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "section_part", chunks[0].BlockType)
}

func TestTailWithinBudget(t *testing.T) {
	counter := tokenizer.NewWhitespaceCounter()
	tail := tailWithinBudget("one two three four five", 2, counter.Count)
	assert.Equal(t, "four five", tail)
}
