package parser

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

// XMLParser walks the document with a streaming tokenizer and emits one
// paragraph block per element that carries non-whitespace character data,
// tagging the block's section with the enclosing element's local name.
type XMLParser struct{}

func (p *XMLParser) Parse(path string, docID uuid.UUID) ([]Block, Properties, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open xml file: %w", err)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	var blocks []Block
	var stack []string

	for {
		tok, tokErr := dec.Token()
		if tokErr == io.EOF {
			break
		}
		if tokErr != nil {
			return nil, nil, fmt.Errorf("parse xml file: %w", tokErr)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			section := ""
			if len(stack) > 0 {
				section = stack[len(stack)-1]
			}
			blocks = append(blocks, Block{
				DocID:   docID,
				Type:    BlockParagraph,
				Text:    text,
				Section: section,
			})
		}
	}

	return blocks, Properties{}, nil
}
