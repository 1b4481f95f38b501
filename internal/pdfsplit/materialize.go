package pdfsplit

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/local/chopdok/internal/apperr"
	"github.com/local/chopdok/internal/metrics"
	"github.com/local/chopdok/internal/partition"
)

// ModifiedFileName names the single output of whole-document deletion.
const ModifiedFileName = "Modified.pdf"

// Output is one materialized document. Empty parts carry a valid PDF
// without pages.
type Output struct {
	Part     partition.Part
	FileName string
	Data     []byte
}

// FileName is the archive and download name of a part. The part name is
// flattened to a single path element.
func FileName(p partition.Part) string {
	return fmt.Sprintf("Part %d - %s.pdf", p.Number(), safeName(p.Name))
}

var unsafeName = strings.NewReplacer("/", "_", "\\", "_", "..", "_")

func safeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, name)
	return unsafeName.Replace(name)
}

// MaterializeParts builds one PDF per part, running at most workers parts at
// once (runtime.NumCPU() when workers <= 0). The call fails as a whole: on
// any error no outputs are returned.
func (s *Source) MaterializeParts(ctx context.Context, parts []partition.Part, workers int) ([]Output, error) {
	start := time.Now()
	outs := make([]Output, len(parts))
	for i, p := range parts {
		if err := s.checkPages(p.Pages); err != nil {
			return nil, err
		}
		outs[i] = Output{Part: p, FileName: FileName(p)}
	}

	g, gctx := errgroup.WithContext(ctx)
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g.SetLimit(workers)
	for i := range outs {
		i := i
		p := outs[i].Part
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var (
				data []byte
				err  error
			)
			if p.Empty {
				data, err = emptyDocument()
			} else {
				data, err = s.extract(p.Pages)
			}
			if err != nil {
				metrics.IncPart("error")
				return apperr.IO(err, "materialize part %d (%s)", p.Number(), p.Name)
			}
			outs[i].Data = data
			if p.Empty {
				metrics.IncPart("empty")
			} else {
				metrics.IncPart("ok")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Str("source", s.name).Int("parts", len(parts)).Msg("materialization failed")
		return nil, err
	}

	metrics.ObserveMaterialize(time.Since(start))
	log.Info().Str("source", s.name).Int("parts", len(parts)).Dur("took", time.Since(start)).Msg("parts materialized")
	return outs, nil
}

// DeletePages returns one document with every page except deleted, in order.
func (s *Source) DeletePages(ctx context.Context, deleted []int) (Output, error) {
	pages := partition.EffectivePages(s.pageCount, deleted)
	if len(pages) == 0 {
		return Output{}, apperr.Input(nil, "cannot delete every page of %s", s.name)
	}
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	data, err := s.extract(pages)
	if err != nil {
		return Output{}, apperr.IO(err, "remove pages from %s", s.name)
	}
	part := partition.Part{Start: 1, End: s.pageCount, Pages: pages, Name: "Modified"}
	return Output{Part: part, FileName: ModifiedFileName, Data: data}, nil
}

// extract copies pages into a new document without re-encoding their content.
func (s *Source) extract(pages []int) ([]byte, error) {
	ctx, err := s.readContext()
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	out, err := pdfcpu.ExtractPages(ctx, pages, false)
	if err != nil {
		return nil, fmt.Errorf("extract pages: %w", err)
	}
	var buf bytes.Buffer
	if err := api.WriteContext(out, &buf); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}
	return buf.Bytes(), nil
}

// emptyDocument is a valid PDF with an empty page tree, emitted for parts
// whose pages were all deleted.
func emptyDocument() ([]byte, error) {
	ctx, err := pdfcpu.CreateContextWithXRefTable(newConfig(), types.PaperSize["A4"])
	if err != nil {
		return nil, fmt.Errorf("create empty document: %w", err)
	}
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("write empty document: %w", err)
	}
	return buf.Bytes(), nil
}
