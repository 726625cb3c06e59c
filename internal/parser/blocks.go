// Package parser routes an uploaded file to a format-specific parser that
// emits an ordered sequence of typed blocks plus document-level
// properties, per the parser dispatcher contract.
package parser

import "github.com/google/uuid"

// BlockType enumerates the kinds of content a parser can emit.
type BlockType string

const (
	BlockParagraph      BlockType = "paragraph"
	BlockHeading        BlockType = "heading"
	BlockTable          BlockType = "table"
	BlockList           BlockType = "list"
	BlockListItem       BlockType = "list_item"
	BlockSlideContent   BlockType = "slide_content"
	BlockTableRowsGroup BlockType = "table_rows_group"
	BlockJSONContent    BlockType = "json_content"
	BlockImageText      BlockType = "image_text"
	BlockError          BlockType = "error"
)

// Block is one unit emitted by a parser.
type Block struct {
	DocID    uuid.UUID
	Type     BlockType
	Text     string
	Section  string
	Level    int
	Caption  string
	Metadata map[string]interface{}
}

// Properties is the open map of document-level attributes a parser
// discovers (source_filename, size_bytes, timestamps, plus any
// format-specific fields like author/title/encoding).
type Properties map[string]interface{}

// OCRBackend rasterizes and recognizes text from an image. The only
// implementation shipped is NoopOCR; a real backend is a configuration
// concern (OCR_BACKEND), not part of this repository's binary dependency
// surface, since no OCR engine ships embedded in the process.
type OCRBackend interface {
	RecognizeText(imageBytes []byte, lang string) (string, error)
}

// NoopOCR always returns empty text; selected whenever OCR_ENABLED=false,
// which is the default.
type NoopOCR struct{}

func (NoopOCR) RecognizeText([]byte, string) (string, error) { return "", nil }
