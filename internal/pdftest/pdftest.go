// Package pdftest answers whether a PDF carries extractable text and builds
// small well-formed PDFs for exercising the split pipeline.
package pdftest

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// PageProbe captures the result of probing a single PDF page.
type PageProbe struct {
	PageIndex int    `json:"page_index"`
	CharCount int    `json:"char_count"`
	Err       string `json:"err,omitempty"`
}

// Diagnostics provides detailed information about the text-extractability check.
type Diagnostics struct {
	Name               string      `json:"name"`
	TotalPages         int         `json:"total_pages"`
	SampledPages       []int       `json:"sampled_pages"`
	TotalCharsInSample int         `json:"total_chars_in_sample"`
	Threshold          int         `json:"threshold"`
	Probes             []PageProbe `json:"probes"`
	HasExtractableText bool        `json:"has_extractable_text"`
	DurationMs         int64       `json:"duration_ms"`
}

// DefaultThreshold is used when a non-positive threshold is passed in.
const DefaultThreshold = 20

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Doc abstracts a PDF document for text extraction.
type Doc interface {
	NumPage() int
	Text(i int) (string, error)
	Close() error
}

// Opener turns PDF bytes into a Doc.
type Opener interface {
	Open(data []byte) (Doc, error)
}

// defaultOpener is provided in doc_open_fitz.go using go-fitz.
var defaultOpener Opener

// HasExtractableText samples pages of the PDF in data and reports whether
// they hold at least threshold non-whitespace characters.
func HasExtractableText(name string, data []byte, threshold int) (bool, *Diagnostics, error) {
	return probe(defaultOpener, name, data, threshold)
}

func probe(opener Opener, name string, data []byte, threshold int) (bool, *Diagnostics, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if opener == nil {
		return false, nil, errors.New("no PDF opener configured")
	}

	start := time.Now()
	d, err := opener.Open(data)
	if err != nil {
		return false, nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer d.Close()

	total := d.NumPage()
	sampleIdx := sampleIndices(total)
	diag := &Diagnostics{Name: name, TotalPages: total, SampledPages: sampleIdx, Threshold: threshold}

	for _, idx := range sampleIdx {
		pr := PageProbe{PageIndex: idx}
		text, terr := d.Text(idx)
		if terr != nil {
			pr.Err = terr.Error()
			diag.Probes = append(diag.Probes, pr)
			continue
		}
		pr.CharCount = len([]rune(whitespaceRegex.ReplaceAllString(text, "")))
		diag.TotalCharsInSample += pr.CharCount
		diag.Probes = append(diag.Probes, pr)
		if diag.TotalCharsInSample >= threshold {
			break
		}
	}

	diag.HasExtractableText = diag.TotalCharsInSample >= threshold
	diag.DurationMs = time.Since(start).Milliseconds()
	return diag.HasExtractableText, diag, nil
}

// sampleIndices picks all pages of short documents, otherwise the first,
// second, middle, second to last and last page.
func sampleIndices(total int) []int {
	if total <= 0 {
		return []int{}
	}
	if total <= 5 {
		idx := make([]int, total)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	mid := total / 2
	return []int{0, 1, mid, total - 2, total - 1}
}
