package chunking

import "strings"

// splitList emits the whole list as one chunk when it fits ListLimit,
// otherwise flushes item-by-item with item-level overlap.
func (c *Chunker) splitList(s Section) []Chunk {
	if c.count(s.Text) <= c.cfg.ListLimit {
		return []Chunk{{Text: s.Text, Meta: combineMeta([]Section{s}), BlockType: "list"}}
	}

	items := strings.Split(s.Text, "\n")
	var chunks []Chunk
	var buf []string
	overlap := ""

	flush := func() {
		if len(buf) == 0 {
			return
		}
		text := strings.Join(buf, "\n")
		if overlap != "" {
			text = overlap + "\n" + text
		}
		chunks = append(chunks, Chunk{Text: text, Meta: combineMeta([]Section{s}), BlockType: "list"})
		overlap = ""
		if n := rowsWithinBudget(buf, c.cfg.OverlapTokens, c.count); n > 0 {
			overlap = strings.Join(buf[len(buf)-n:], "\n")
		}
		buf = nil
	}

	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		candidate := strings.Join(append(append([]string{}, buf...), item), "\n")
		if len(buf) > 0 && c.count(candidate) > c.cfg.ChunkTokens {
			flush()
		}
		buf = append(buf, item)
	}
	flush()

	return chunks
}
