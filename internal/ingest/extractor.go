// Package ingest turns uploaded documents into indexed, embedded chunks.
package ingest

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Page is one page of extracted text. Char offsets in chunks are relative
// to the page's Text.
type Page struct {
	Number int
	Text   string
}

// ExtractedDocument is the extractor output handed to the chunker.
type ExtractedDocument struct {
	Pages []Page
}

// TextExtractor converts raw document bytes into per-page plain text.
type TextExtractor interface {
	Extract(filename string, content []byte) (*ExtractedDocument, error)
	Supports(filename string) bool
}

// TextFileExtractor handles plain text and markdown uploads. Markdown
// formatting is stripped so chunks read as prose; explicit page markers
// like "<!-- PAGE 3 -->" or "## Page 3" split the text into pages, and a
// document without markers becomes a single page 1.
type TextFileExtractor struct{}

// NewTextFileExtractor creates an extractor for .txt and .md files.
func NewTextFileExtractor() *TextFileExtractor {
	return &TextFileExtractor{}
}

var pageMarkerRe = regexp.MustCompile(`(?i)(?:<!--\s*PAGE\s*(\d+)\s*-->|##\s*Page\s*(\d+)\s*\n)`)

// Supports reports whether the extractor can handle the file.
func (e *TextFileExtractor) Supports(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".markdown", ".text":
		return true
	}
	return false
}

// Extract splits the content into pages and strips markup.
func (e *TextFileExtractor) Extract(filename string, content []byte) (*ExtractedDocument, error) {
	if !e.Supports(filename) {
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}

	text := string(content)
	isMarkdown := strings.HasSuffix(strings.ToLower(filename), ".md") ||
		strings.HasSuffix(strings.ToLower(filename), ".markdown")

	doc := &ExtractedDocument{}
	for _, page := range splitPages(text) {
		pageText := page.Text
		if isMarkdown {
			pageText = cleanMarkdown(pageText)
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		doc.Pages = append(doc.Pages, Page{Number: page.Number, Text: pageText})
	}

	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("document %s contains no extractable text", filename)
	}
	return doc, nil
}

func splitPages(content string) []Page {
	matches := pageMarkerRe.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return []Page{{Number: 1, Text: content}}
	}

	var pages []Page
	for i, match := range matches {
		pageNum := i + 1
		if match[2] != -1 {
			pageNum, _ = strconv.Atoi(content[match[2]:match[3]])
		} else if match[4] != -1 {
			pageNum, _ = strconv.Atoi(content[match[4]:match[5]])
		}

		start := match[1]
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		pages = append(pages, Page{Number: pageNum, Text: content[start:end]})
	}
	return pages
}

func cleanMarkdown(content string) string {
	// Remove headers
	content = regexp.MustCompile(`(?m)^#+\s*`).ReplaceAllString(content, "")
	// Remove images before links so the alt text survives
	content = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`).ReplaceAllString(content, "")
	// Remove links
	content = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`).ReplaceAllString(content, "$1")
	// Remove bold/italic
	content = regexp.MustCompile(`\*+([^*]+)\*+`).ReplaceAllString(content, "$1")
	// Remove HTML comments
	content = regexp.MustCompile(`<!--.*?-->`).ReplaceAllString(content, "")
	return content
}
