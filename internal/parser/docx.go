package parser

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/nguyenthenguyen/docx"
)

// DOCXParser emits paragraph and heading blocks, one per non-empty line of
// the body content returned by the docx library, using the heading
// heuristic in looksLikeHeading since the library does not expose style
// names. No table blocks are emitted and OCR is never called.
type DOCXParser struct {
	OCR     OCRBackend
	OCRLang string
}

func (p *DOCXParser) Parse(path string, docID uuid.UUID) ([]Block, Properties, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open docx: %w", err)
	}
	defer r.Close()

	content := r.Editable().GetContent()
	blocks := paragraphsToBlocks(docID, content)
	return blocks, Properties{}, nil
}

// paragraphsToBlocks splits content into lines and emits one paragraph
// block per non-empty line, tagging as level-1 headings the lines of at
// most 120 characters and 12 words that do not end in a period and whose
// every word starts with an upper-case letter.
func paragraphsToBlocks(docID uuid.UUID, content string) []Block {
	raw := strings.Split(content, "\n")
	blocks := make([]Block, 0, len(raw))
	section := ""

	for _, line := range raw {
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		if looksLikeHeading(text) {
			section = text
			blocks = append(blocks, Block{
				DocID:   docID,
				Type:    BlockHeading,
				Text:    text,
				Section: section,
				Level:   1,
			})
			continue
		}

		blocks = append(blocks, Block{
			DocID:   docID,
			Type:    BlockParagraph,
			Text:    text,
			Section: section,
		})
	}

	return blocks
}

func looksLikeHeading(text string) bool {
	if len(text) == 0 || len(text) > 120 {
		return false
	}
	if strings.HasSuffix(text, ".") {
		return false
	}
	words := strings.Fields(text)
	if len(words) == 0 || len(words) > 12 {
		return false
	}
	upperWords := 0
	for _, w := range words {
		r := []rune(w)
		if len(r) > 0 && unicode.IsUpper(r[0]) {
			upperWords++
		}
	}
	return upperWords == len(words)
}
