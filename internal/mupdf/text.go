package mupdf

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// TextExtractor pulls plain text out of PDFs with go-fitz so it can be sent
// to a language model.
type TextExtractor struct {
	// MaxChars caps the returned text; zero means unlimited.
	MaxChars int
}

// NewTextExtractor creates an extractor that returns at most maxChars characters.
func NewTextExtractor(maxChars int) *TextExtractor {
	return &TextExtractor{MaxChars: maxChars}
}

// ExtractText returns the cleaned text of every page, pages separated by a blank line.
func (g *TextExtractor) ExtractText(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var result strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			log.Warn().Err(err).Int("page", i+1).Msg("Failed to extract text from page")
			continue
		}
		cleaned := g.cleanText(text, i+1)
		if cleaned == "" {
			continue
		}
		if result.Len() > 0 {
			result.WriteString("\n\n")
		}
		result.WriteString(cleaned)
		if g.MaxChars > 0 && result.Len() >= g.MaxChars {
			log.Debug().Int("page", i+1).Int("max_chars", g.MaxChars).Msg("text limit reached")
			break
		}
	}

	text := truncateRunes(result.String(), g.MaxChars)
	log.Debug().Int("chars", len(text)).Int("pages", doc.NumPage()).Msg("Extracted text from PDF")
	return text, nil
}

// ExtractPage returns the cleaned text of one page (1-based).
func (g *TextExtractor) ExtractPage(data []byte, pageNum int) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if pageNum < 1 || pageNum > doc.NumPage() {
		return "", fmt.Errorf("page %d out of range (document has %d pages)", pageNum, doc.NumPage())
	}
	raw, err := doc.Text(pageNum - 1)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from page %d: %w", pageNum, err)
	}
	return g.cleanText(raw, pageNum), nil
}

// cleanText drops page numbers and lines without letters or digits, then
// rejoins lines broken mid-sentence.
func (g *TextExtractor) cleanText(text string, pageNum int) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || g.isPageNumber(trimmed, pageNum) || g.isNoise(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.TrimSpace(g.fixBrokenLines(kept))
}

func (g *TextExtractor) isPageNumber(line string, pageNum int) bool {
	if line == fmt.Sprintf("%d", pageNum) {
		return true
	}
	for _, pattern := range []string{
		fmt.Sprintf("Seite %d", pageNum),
		fmt.Sprintf("- %d -", pageNum),
		fmt.Sprintf("[%d]", pageNum),
	} {
		if strings.EqualFold(line, pattern) {
			return true
		}
	}
	return false
}

func (g *TextExtractor) isNoise(line string) bool {
	for _, r := range line {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func (g *TextExtractor) fixBrokenLines(lines []string) string {
	var fixed []string
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if i < len(lines)-1 {
			next := lines[i+1]
			last := line[len(line)-1]
			sentenceEnd := strings.ContainsRune(".!?:;", rune(last))
			startsLower := unicode.IsLower([]rune(next)[0])
			if !sentenceEnd && startsLower && !strings.HasSuffix(line, "-") {
				fixed = append(fixed, line+" "+next)
				i++
				continue
			}
		}
		fixed = append(fixed, line)
	}
	return strings.Join(fixed, "\n")
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
