package parser

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// TextParser reads a plain text file, sniffing a BOM for UTF-16 and falling
// back to Windows-1252 when the bytes aren't valid UTF-8, then splits on
// blank lines into paragraph blocks. It also serves as the generic fallback
// for any extension the dispatcher doesn't recognize.
type TextParser struct{}

func (p *TextParser) Parse(path string, docID uuid.UUID) ([]Block, Properties, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read text file: %w", err)
	}

	text, encodingName, err := decodeText(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode text file: %w", err)
	}

	props := Properties{"encoding": encodingName}

	paragraphs := strings.Split(text, "\n\n")
	blocks := make([]Block, 0, len(paragraphs))
	for _, para := range paragraphs {
		trimmed := strings.TrimSpace(para)
		if trimmed == "" {
			continue
		}
		blocks = append(blocks, Block{DocID: docID, Type: BlockParagraph, Text: trimmed})
	}

	return blocks, props, nil
}

// decodeText sniffs a UTF-16 BOM first, then checks for valid UTF-8, and
// otherwise treats the bytes as Windows-1252, the most common legacy
// encoding for uploaded plain text documents.
func decodeText(raw []byte) (string, string, error) {
	if len(raw) >= 2 {
		switch {
		case raw[0] == 0xFF && raw[1] == 0xFE:
			out, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(raw)
			return string(out), "utf-16le", err
		case raw[0] == 0xFE && raw[1] == 0xFF:
			out, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(raw)
			return string(out), "utf-16be", err
		}
	}

	if utf8.Valid(raw) {
		return strings.TrimPrefix(string(raw), "﻿"), "utf-8", nil
	}

	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	return string(out), "windows-1252", err
}
