package chunking

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// SplitDocument implements the whole-document short-circuit, then
// dispatches each remaining section to the handler for its type. Paragraph
// sections are merged within budget by a shared accumulator as they are
// dispatched; a list, table, or oversized section flushes the accumulator
// first, so source order is kept.
func (c *Chunker) SplitDocument(sections []Section) []Chunk {
	if len(sections) == 0 {
		return nil
	}

	total := 0
	for _, s := range sections {
		total += c.count(s.Text)
	}
	if total <= c.cfg.DocLimit {
		meta := combineMeta(sections)
		meta["is_whole_doc"] = true
		return []Chunk{{
			Text:      joinSections(sections),
			Meta:      meta,
			BlockType: "doc",
		}}
	}

	acc := newAccumulator(c, "paragraph")
	var chunks []Chunk

	flushAccumulator := func() {
		chunks = append(chunks, acc.flush()...)
	}

	for _, s := range sections {
		switch s.Type {
		case "list", "list_item":
			flushAccumulator()
			chunks = append(chunks, c.splitList(s)...)
		case "table":
			flushAccumulator()
			chunks = append(chunks, c.splitTable(s)...)
		default:
			if c.count(s.Text) > c.cfg.SectionLimit {
				flushAccumulator()
				chunks = append(chunks, c.splitLargeBlock(s)...)
				continue
			}
			chunks = append(chunks, acc.add(s)...)
		}
	}
	flushAccumulator()

	return chunks
}

func joinSections(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if strings.TrimSpace(s.Text) != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// combineMeta preserves an ordered sections list plus flattened
// section_{index}.{key} lookups, never overwriting a colliding key.
func combineMeta(sections []Section) map[string]interface{} {
	combined := map[string]interface{}{}
	ordered := make([]map[string]interface{}, 0, len(sections))

	for i, s := range sections {
		entry := map[string]interface{}{"index": i}
		for k, v := range s.Meta {
			entry[k] = v
			flatKey := flattenKey(i, k)
			if _, exists := combined[flatKey]; !exists {
				combined[flatKey] = v
			}
		}
		ordered = append(ordered, entry)
	}

	combined["sections"] = ordered
	return combined
}

func flattenKey(index int, key string) string {
	var sb strings.Builder
	sb.WriteString("section_")
	sb.WriteString(itoa(index))
	sb.WriteString(".")
	sb.WriteString(key)
	return sb.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// sectionHash produces a short stable identifier for a table section that
// has no section/table_id/caption metadata to key off.
func sectionHash(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])[:10]
}
