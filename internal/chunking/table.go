package chunking

import (
	"fmt"
	"strings"
)

var tableSeparatorChars = "-:| "

// splitTable expects markdown-formatted input: a header row, a separator
// row, then data rows. Tables that fit the budget emit a single chunk;
// larger tables are split into row-groups that each repeat the header and
// separator, with row-level overlap.
func (c *Chunker) splitTable(s Section) []Chunk {
	lines := nonEmptyLines(s.Text)
	if len(lines) < 3 || !isSeparatorRow(lines[1]) {
		return c.splitLargeBlock(s)
	}

	header := lines[0]
	separator := lines[1]
	dataRows := lines[2:]

	if len(dataRows) < 2 {
		return c.splitLargeBlock(s)
	}

	headerText := header + "\n" + separator
	headerTokens := c.count(headerText)
	section := tableSectionID(s)

	groupLimit := c.cfg.TableRowGroupTokens
	budgetLimit := c.cfg.ChunkTokens - headerTokens
	if groupLimit <= 0 || groupLimit > budgetLimit {
		groupLimit = budgetLimit
	}
	if groupLimit <= 0 {
		groupLimit = 1
	}

	whole := headerText + "\n" + strings.Join(dataRows, "\n")
	if c.count(whole) <= c.cfg.TableLimit && c.count(whole) <= headerTokens+groupLimit {
		meta := combineMeta([]Section{s})
		meta["section"] = section
		return []Chunk{{Text: whole, Meta: meta, BlockType: "table"}}
	}

	var chunks []Chunk
	var buf []string
	overlapRows := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		text := headerText + "\n" + strings.Join(buf, "\n")
		meta := combineMeta([]Section{s})
		meta["section"] = section
		chunks = append(chunks, Chunk{Text: text, Meta: meta, BlockType: "table"})

		if c.cfg.TableRowOverlap > 0 {
			overlapRows = c.cfg.TableRowOverlap
			if overlapRows > len(buf) {
				overlapRows = len(buf)
			}
		} else {
			overlapRows = rowsWithinBudget(buf, c.cfg.OverlapTokens, c.count)
		}
		buf = nil
	}

	var pendingOverlap []string
	for i := 0; i < len(dataRows); i++ {
		row := dataRows[i]
		candidate := append(append([]string{}, buf...), row)
		candidateText := strings.Join(candidate, "\n")
		if len(buf) > 0 && c.count(candidateText) > groupLimit {
			lastBuf := buf
			flush()
			if overlapRows > 0 {
				pendingOverlap = lastBuf[len(lastBuf)-overlapRows:]
			} else {
				pendingOverlap = nil
			}
			buf = append(append([]string{}, pendingOverlap...), row)
			continue
		}
		buf = append(buf, row)
	}
	flush()

	return chunks
}

func nonEmptyLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func isSeparatorRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		if !strings.ContainsRune(tableSeparatorChars, r) {
			return false
		}
	}
	return strings.Contains(trimmed, "-")
}

func tableSectionID(s Section) string {
	if v, ok := s.Meta["section"].(string); ok && v != "" {
		return v
	}
	if v, ok := s.Meta["table_id"]; ok {
		return fmt.Sprintf("%v", v)
	}
	if v, ok := s.Meta["caption"].(string); ok && v != "" {
		return v
	}
	return sectionHash(s.Text)
}

// rowsWithinBudget returns how many trailing rows of buf fit within
// maxTokens once joined with newlines.
func rowsWithinBudget(buf []string, maxTokens int, count func(string) int) int {
	if maxTokens <= 0 || len(buf) == 0 {
		return 0
	}
	lo, hi := 0, len(buf)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		candidate := strings.Join(buf[len(buf)-mid:], "\n")
		if count(candidate) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
