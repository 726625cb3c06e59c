package parser

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	markdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"
	"github.com/google/uuid"
)

// HTMLParser extracts the main article body with go-readability, then
// converts that body to markdown and splits it into paragraph/heading
// blocks on blank lines and leading "#" markers. Pages readability cannot
// find an article in fall back to converting the raw document.
type HTMLParser struct{}

func (p *HTMLParser) Parse(path string, docID uuid.UUID) ([]Block, Properties, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open html: %w", err)
	}
	defer f.Close()

	props := Properties{}
	var htmlBody string

	article, artErr := readability.FromReader(f, &url.URL{})
	if artErr == nil && strings.TrimSpace(article.Content) != "" {
		htmlBody = article.Content
		if article.Title != "" {
			props["title"] = article.Title
		}
		if article.Byline != "" {
			props["author"] = article.Byline
		}
	} else {
		if _, seekErr := f.Seek(0, 0); seekErr == nil {
			raw, readErr := os.ReadFile(path)
			if readErr == nil {
				htmlBody = string(raw)
			}
		}
	}

	md, convErr := markdown.ConvertString(htmlBody)
	if convErr != nil {
		return nil, nil, fmt.Errorf("convert html to markdown: %w", convErr)
	}

	return markdownToBlocks(docID, md), props, nil
}

// markdownToBlocks splits converted markdown on blank lines, treating
// leading "#" runs as headings with their level equal to the run length.
func markdownToBlocks(docID uuid.UUID, md string) []Block {
	paragraphs := strings.Split(md, "\n\n")
	blocks := make([]Block, 0, len(paragraphs))
	section := ""

	for _, para := range paragraphs {
		text := strings.TrimSpace(para)
		if text == "" {
			continue
		}

		if level := headingLevel(text); level > 0 {
			text = strings.TrimSpace(strings.TrimLeft(text, "#"))
			section = text
			blocks = append(blocks, Block{
				DocID: docID, Type: BlockHeading, Text: text, Section: section, Level: level,
			})
			continue
		}

		blocks = append(blocks, Block{DocID: docID, Type: BlockParagraph, Text: text, Section: section})
	}

	return blocks
}

func headingLevel(line string) int {
	level := 0
	for _, r := range line {
		if r != '#' {
			break
		}
		level++
	}
	if level == 0 || level > 6 {
		return 0
	}
	if level >= len(line) || line[level] != ' ' {
		return 0
	}
	return level
}
