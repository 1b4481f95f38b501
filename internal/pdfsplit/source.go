// Package pdfsplit turns computed parts into standalone PDF documents and
// packs them into a zip archive.
package pdfsplit

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/local/chopdok/internal/apperr"
)

func init() {
	// pdfcpu would otherwise create a config dir under the user's home.
	model.ConfigPath = "disable"
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Source is an immutable snapshot of an uploaded PDF. Every part is derived
// from the same bytes, so concurrent materializations never share state.
type Source struct {
	name      string
	data      []byte
	pageCount int
}

// Open reads r fully and parses the result. Unreadable or non-PDF input
// fails with an input error.
func Open(r io.Reader, name string) (*Source, error) {
	if r == nil {
		return nil, apperr.Input(nil, "no source document")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.Input(err, "read %s", name)
	}
	return FromBytes(data, name)
}

// OpenFile opens the PDF at path. The source is named after the file's base name.
func OpenFile(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Input(err, "open %s", path)
	}
	defer f.Close()
	return Open(f, filepath.Base(path))
}

// FromBytes takes ownership of data; callers must not modify it afterwards.
func FromBytes(data []byte, name string) (*Source, error) {
	if len(data) == 0 {
		return nil, apperr.Input(nil, "%s is empty", name)
	}
	s := &Source{name: name, data: data}
	ctx, err := s.readContext()
	if err != nil {
		return nil, apperr.Input(err, "%s is not a readable PDF", name)
	}
	if ctx.PageCount < 1 {
		return nil, apperr.Input(nil, "%s has no pages", name)
	}
	s.pageCount = ctx.PageCount
	return s, nil
}

func (s *Source) Name() string   { return s.name }
func (s *Source) PageCount() int { return s.pageCount }
func (s *Source) Size() int      { return len(s.data) }

// Bytes exposes the snapshot for read-only consumers such as the thumbnail renderer.
func (s *Source) Bytes() []byte { return s.data }

// readContext parses a fresh pdfcpu context from the snapshot.
func (s *Source) readContext() (*model.Context, error) {
	ctx, err := api.ReadContext(bytes.NewReader(s.data), newConfig())
	if err != nil {
		return nil, err
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

// PageCount parses rs and returns its number of pages.
func PageCount(rs io.ReadSeeker) (int, error) {
	ctx, err := api.ReadContext(rs, newConfig())
	if err != nil {
		return 0, apperr.Input(err, "read pdf")
	}
	if err := api.ValidateContext(ctx); err != nil {
		return 0, apperr.Input(err, "validate pdf")
	}
	return ctx.PageCount, nil
}

func (s *Source) checkPages(pages []int) error {
	for _, p := range pages {
		if p < 1 || p > s.pageCount {
			return apperr.Input(nil, "page %d out of range 1-%d", p, s.pageCount)
		}
	}
	return nil
}

func (s *Source) String() string {
	return fmt.Sprintf("%s (%d pages)", s.name, s.pageCount)
}
