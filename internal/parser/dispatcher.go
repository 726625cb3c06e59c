package parser

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FormatParser parses one file's bytes (already on local disk at path)
// into blocks plus document properties. A parse error must be reported
// through a single BlockError block, never a silent partial success.
type FormatParser interface {
	Parse(path string, docID uuid.UUID) ([]Block, Properties, error)
}

// Dispatcher routes by lowercase extension to a registered FormatParser,
// falling back to the generic text parser for unknown extensions.
type Dispatcher struct {
	parsers map[string]FormatParser
	generic FormatParser
}

// NewDispatcher wires every format this processor understands. OCR is
// injected into the PDF parser, which calls it for pages whose extracted
// text is empty; the DOCX parser holds it but does not call it.
func NewDispatcher(ocr OCRBackend, ocrLang string, excelRowBatchSize int) *Dispatcher {
	if ocr == nil {
		ocr = NoopOCR{}
	}
	txt := &TextParser{}
	d := &Dispatcher{generic: txt}
	d.parsers = map[string]FormatParser{
		".pdf":  &PDFParser{OCR: ocr, OCRLang: ocrLang},
		".docx": &DOCXParser{OCR: ocr, OCRLang: ocrLang},
		".htm":  &HTMLParser{},
		".html": &HTMLParser{},
		".pptx": &PPTXParser{},
		".txt":  txt,
		".xlsx": &SpreadsheetParser{RowBatchSize: excelRowBatchSize},
		".xls":  &SpreadsheetParser{RowBatchSize: excelRowBatchSize},
		".csv":  &SpreadsheetParser{RowBatchSize: excelRowBatchSize},
		".json": &JSONParser{},
		".xml":  &XMLParser{},
	}
	return d
}

// Parse routes path to the parser registered for its extension, or the
// generic text fallback, and stamps common filesystem properties onto
// whatever the format parser returns.
func (d *Dispatcher) Parse(path string, docID uuid.UUID) ([]Block, Properties, error) {
	ext := strings.ToLower(filepath.Ext(path))
	p, ok := d.parsers[ext]
	if !ok {
		p = d.generic
	}

	blocks, props, err := p.Parse(path, docID)
	if err != nil {
		return []Block{{DocID: docID, Type: BlockError, Text: err.Error()}}, nil, nil
	}

	if props == nil {
		props = Properties{}
	}
	if info, statErr := os.Stat(path); statErr == nil {
		props["source_filename"] = filepath.Base(path)
		props["size_bytes"] = info.Size()
		props["modified_fs"] = info.ModTime().Format(time.RFC3339)
	}

	if len(blocks) == 0 {
		return blocks, props, nil
	}
	if blocks[0].Type == BlockError {
		return blocks, props, nil
	}

	return blocks, props, nil
}

// removeTemp deletes path, ignoring an empty path and any removal error.
// No parser in this package calls it: the format parsers read the file at
// path in place and create no temp files of their own.
func removeTemp(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
