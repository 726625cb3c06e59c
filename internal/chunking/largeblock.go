package chunking

import (
	"regexp"
	"strings"
)

var sentenceBoundary = regexp.MustCompile(`([.!?])\s+([A-ZА-Я0-9])`)

var labelLikeLine = regexp.MustCompile(`^(\s*([-*•]|\d+[.)])\s|#{1,6}\s)`)

// splitLargeBlock breaks an oversized section into paragraph-scale blocks,
// splits each block into sentences, and accumulates sentences into chunks
// bounded by ChunkTokens with sentence-level overlap, never breaking a
// sentence mid-word.
func (c *Chunker) splitLargeBlock(s Section) []Chunk {
	blocks := splitIntoLogicalBlocks(s.Text)

	var sentences []string
	for _, b := range blocks {
		sentences = append(sentences, splitIntoSentences(b)...)
	}
	if len(sentences) == 0 {
		return nil
	}

	var chunks []Chunk
	var buf []string
	overlap := ""

	flush := func() {
		if len(buf) == 0 {
			return
		}
		text := strings.Join(buf, " ")
		if overlap != "" {
			text = overlap + " " + text
		}
		meta := combineMeta([]Section{s})
		meta["section_part"] = true
		chunks = append(chunks, Chunk{Text: text, Meta: meta, BlockType: "section_part"})
		overlap = ""
		if n := rowsWithinBudget(buf, c.cfg.OverlapTokens, c.count); n > 0 {
			overlap = strings.Join(buf[len(buf)-n:], " ")
		}
		buf = nil
	}

	for _, sent := range sentences {
		candidate := strings.Join(append(append([]string{}, buf...), sent), " ")
		if len(buf) > 0 && c.count(candidate) > c.cfg.ChunkTokens {
			flush()
		}
		buf = append(buf, sent)
	}
	flush()

	return chunks
}

// splitIntoLogicalBlocks separates blank-line-delimited paragraphs, and
// additionally starts a new block whenever a line looks like a bullet,
// numbered item, heading, or a short label (no terminal punctuation, at
// most eight words).
func splitIntoLogicalBlocks(text string) []string {
	lines := strings.Split(text, "\n")
	var blocks []string
	var cur []string

	flush := func() {
		if len(cur) > 0 {
			blocks = append(blocks, strings.Join(cur, " "))
			cur = nil
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if labelLikeLine.MatchString(line) || looksLikeShortLabel(trimmed) {
			flush()
			blocks = append(blocks, trimmed)
			continue
		}
		cur = append(cur, trimmed)
	}
	flush()

	return blocks
}

func looksLikeShortLabel(line string) bool {
	if strings.HasSuffix(line, ".") || strings.HasSuffix(line, "!") || strings.HasSuffix(line, "?") {
		return false
	}
	words := strings.Fields(line)
	return len(words) > 0 && len(words) <= 8
}

// splitIntoSentences breaks on a terminal punctuation mark followed by
// whitespace and an uppercase letter or digit, which is the only signal
// available without a full sentence-boundary model.
func splitIntoSentences(block string) []string {
	block = strings.TrimSpace(block)
	if block == "" {
		return nil
	}

	marked := sentenceBoundary.ReplaceAllString(block, "$1\x00$2")
	parts := strings.Split(marked, "\x00")

	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}
