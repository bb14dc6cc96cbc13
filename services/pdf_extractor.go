package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"legal-ai-assistant/internal/logger"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor pulls plain text out of PDF files.
type PDFExtractor struct {
	maxSize int64
}

// NewPDFExtractor rejects files larger than maxSize bytes (0 means 200MB).
func NewPDFExtractor(maxSize int64) *PDFExtractor {
	if maxSize <= 0 {
		maxSize = 200 << 20
	}
	return &PDFExtractor{maxSize: maxSize}
}

// ExtractionResult contains the result of PDF text extraction
type ExtractionResult struct {
	Text           string
	Pages          int
	WordCount      int
	ProcessingTime time.Duration
}

func (e *PDFExtractor) ExtractFile(ctx context.Context, filePath string) (*ExtractionResult, error) {
	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat PDF file: %w", err)
	}
	if stat.Size() > e.maxSize {
		return nil, fmt.Errorf("pdf too large for in-memory extraction (%d bytes)", stat.Size())
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF file: %w", err)
	}
	return e.Extract(ctx, content)
}

// Extract reads every page's plain text. Pages that fail to decode are
// skipped.
func (e *PDFExtractor) Extract(ctx context.Context, content []byte) (*ExtractionResult, error) {
	start := time.Now()
	if int64(len(content)) > e.maxSize {
		return nil, fmt.Errorf("pdf too large for in-memory extraction (%d bytes)", len(content))
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract text from PDF page", "page", i, "error", err)
			continue
		}

		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}

	extracted := strings.TrimSpace(textBuilder.String())
	if extracted == "" {
		return nil, fmt.Errorf("no text extracted from PDF")
	}

	return &ExtractionResult{
		Text:           extracted,
		Pages:          pages,
		WordCount:      len(strings.Fields(extracted)),
		ProcessingTime: time.Since(start),
	}, nil
}

// ArticleText is one article or section cut from a larger legal text.
type ArticleText struct {
	Number  string
	Title   string
	Content string
}

var (
	headingPattern = regexp.MustCompile(`(?i)^(?:(?:article|section)\b|art\.\s)`)
	articleNumber  = regexp.MustCompile(`(?i)\b(?:Article|Art\.)\s*(\d+[A-Z]?)`)
	sectionNumber  = regexp.MustCompile(`(?i)\bSection\s+(\d+[A-Z]?)`)
)

// SplitArticles cuts text at heading lines that start with "Article",
// "Art." or "Section". Heading lines stay at the top of their article.
// Articles are numbered "N" from "Article N", "section_N" from "Section N",
// and "section_{position}" otherwise.
func SplitArticles(text string) []ArticleText {
	var (
		articles []ArticleText
		number   string
		content  strings.Builder
	)

	flush := func() {
		body := strings.TrimSpace(content.String())
		content.Reset()
		if body == "" {
			return
		}
		if number == "" {
			number = fmt.Sprintf("section_%d", len(articles)+1)
		}
		articles = append(articles, ArticleText{Number: number, Content: body})
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if headingPattern.MatchString(line) {
			flush()
			switch {
			case articleNumber.MatchString(line):
				number = strings.ToUpper(articleNumber.FindStringSubmatch(line)[1])
			case sectionNumber.MatchString(line):
				number = "section_" + strings.ToUpper(sectionNumber.FindStringSubmatch(line)[1])
			default:
				number = fmt.Sprintf("section_%d", len(articles)+1)
			}
		}

		content.WriteString(line)
		content.WriteString("\n")
	}
	flush()

	return articles
}

// ArticleMetadata is the metadata an article is ingested with.
func ArticleMetadata(a ArticleText, constitution bool) map[string]any {
	docType := "legal_document"
	if constitution {
		docType = "constitution"
	}
	title := a.Title
	if title == "" {
		title = "Article " + a.Number
		if n, ok := strings.CutPrefix(a.Number, "section_"); ok {
			title = "Section " + n
		}
	}
	return map[string]any{
		"article_number": a.Number,
		"document_type":  docType,
		"title":          title,
		"length":         len(a.Content),
	}
}
