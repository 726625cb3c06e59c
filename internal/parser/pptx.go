package parser

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// PPTXParser reads the OOXML slide parts directly: a .pptx is a zip archive
// of ppt/slides/slideN.xml files, each containing <a:t> text runs. No
// library in the dependency surface covers this format, so it is the one
// parser built on stdlib archive/zip and encoding/xml rather than a
// third-party package.
type PPTXParser struct{}

var slidePathRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func (p *PPTXParser) Parse(path string, docID uuid.UUID) ([]Block, Properties, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open pptx: %w", err)
	}
	defer zr.Close()

	type slideFile struct {
		num int
		f   *zip.File
	}
	var slides []slideFile

	for _, f := range zr.File {
		name := filepath.ToSlash(f.Name)
		m := slidePathRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, convErr := strconv.Atoi(m[1])
		if convErr != nil {
			continue
		}
		slides = append(slides, slideFile{num: n, f: f})
	}

	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	blocks := make([]Block, 0, len(slides))
	for _, s := range slides {
		text, extractErr := extractSlideText(s.f)
		if extractErr != nil {
			return nil, nil, fmt.Errorf("read slide %d: %w", s.num, extractErr)
		}
		blocks = append(blocks, Block{
			DocID:   docID,
			Type:    BlockSlideContent,
			Text:    text,
			Section: fmt.Sprintf("Slide %d", s.num),
			Metadata: map[string]interface{}{
				"slide": s.num,
			},
		})
	}

	return blocks, Properties{}, nil
}

// slideXML mirrors only the fragment of DrawingML this parser needs: runs
// of text inside the paragraphs of shapes placed directly in the slide's
// shape tree. Text inside grouped shapes (grpSp) is not read.
type slideXML struct {
	Paragraphs []struct {
		Runs []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"cSld>spTree>sp>txBody>p"`
}

func extractSlideText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}

	var parsed slideXML
	if err := xml.Unmarshal(data, &parsed); err != nil {
		return "", err
	}

	var lines []string
	for _, para := range parsed.Paragraphs {
		var sb strings.Builder
		for _, run := range para.Runs {
			sb.WriteString(run.Text)
		}
		if line := strings.TrimSpace(sb.String()); line != "" {
			lines = append(lines, line)
		}
	}

	return strings.Join(lines, "\n"), nil
}
