package pdfsplit

import (
	"archive/zip"
	"bytes"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/chopdok/internal/apperr"
	"github.com/local/chopdok/internal/metrics"
)

// ArchiveName is the download name of the combined archive.
const ArchiveName = "split_pdfs.zip"

// ArchiveBytes packs the outputs into a zip, one entry per part including
// empty ones, in the order given.
func ArchiveBytes(outputs []Output) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	seen := make(map[string]bool, len(outputs))
	modified := time.Now()

	for _, o := range outputs {
		if o.Part.Empty {
			log.Debug().Int("part", o.Part.Number()).Str("name", o.Part.Name).Msg("archiving part without pages")
		}
		if seen[o.FileName] {
			return nil, apperr.IO(nil, "duplicate archive entry %q", o.FileName)
		}
		seen[o.FileName] = true

		w, err := zw.CreateHeader(&zip.FileHeader{Name: o.FileName, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return nil, apperr.IO(err, "create archive entry %q", o.FileName)
		}
		if _, err := w.Write(o.Data); err != nil {
			return nil, apperr.IO(err, "write archive entry %q", o.FileName)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, apperr.IO(err, "finish archive")
	}
	metrics.ObserveArchive(buf.Len())
	return buf.Bytes(), nil
}

// BuildArchive writes the archive to w. Nothing reaches w unless the whole
// archive was assembled.
func BuildArchive(w io.Writer, outputs []Output) error {
	data, err := ArchiveBytes(outputs)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return apperr.IO(err, "write archive")
	}
	return nil
}
