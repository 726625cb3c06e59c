package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// JSONParser pretty-prints the document into its canonical indented form
// and emits it as a single json_content block; chunking treats this block
// as structured content to be split on brace depth rather than prose.
type JSONParser struct{}

func (p *JSONParser) Parse(path string, docID uuid.UUID) ([]Block, Properties, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read json file: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, nil, fmt.Errorf("parse json file: %w", err)
	}

	var probe interface{}
	_ = json.Unmarshal(raw, &probe)
	_, isArray := probe.([]interface{})

	return []Block{{
		DocID: docID,
		Type:  BlockJSONContent,
		Text:  buf.String(),
	}}, Properties{"is_array": isArray}, nil
}
