package chunking

import "strings"

// accumulator greedily fills a buffer of sections up to Config.ChunkTokens,
// seeding every new buffer after a flush with an overlap tail carried over
// from the previous one.
type accumulator struct {
	c         *Chunker
	blockType string
	sections  []Section
	overlap   string
}

func newAccumulator(c *Chunker, blockType string) *accumulator {
	return &accumulator{c: c, blockType: blockType}
}

func (a *accumulator) bufferText() string {
	parts := make([]string, 0, len(a.sections)+1)
	if a.overlap != "" {
		parts = append(parts, a.overlap)
	}
	for _, s := range a.sections {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, "\n\n")
}

// add appends s to the buffer, flushing first (into the caller-visible
// return value) if s would push the buffer over budget.
func (a *accumulator) add(s Section) []Chunk {
	var flushed []Chunk

	current := a.bufferText()
	if len(a.sections) > 0 && a.c.count(current)+a.c.count(s.Text) > a.c.cfg.ChunkTokens {
		flushed = a.flush()
	}

	a.sections = append(a.sections, s)
	return flushed
}

// flush emits the current buffer as one chunk (if non-empty) and reseeds
// the next buffer with an overlap tail of the flushed text.
func (a *accumulator) flush() []Chunk {
	if len(a.sections) == 0 && a.overlap == "" {
		return nil
	}
	if len(a.sections) == 0 {
		a.overlap = ""
		return nil
	}

	text := a.bufferText()
	meta := combineMeta(a.sections)

	a.overlap = tailWithinBudget(text, a.c.cfg.OverlapTokens, a.c.count)
	a.sections = nil

	return []Chunk{{Text: text, Meta: meta, BlockType: a.blockType}}
}
