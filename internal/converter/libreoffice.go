// Package converter turns office documents into PDF with a headless
// LibreOffice so they can be summarized like any other PDF.
package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/chopdok/internal/apperr"
)

// LibreOffice converts documents by running one headless soffice process per
// conversion, each with its own profile directory.
type LibreOffice struct {
	binary    string
	timeout   time.Duration
	tempDir   string
	semaphore chan struct{}
}

// Options configures the converter. Zero values pick soffice, two workers
// and a three minute timeout.
type Options struct {
	Binary     string
	MaxWorkers int
	Timeout    time.Duration
	TempDir    string
}

// NewLibreOffice creates a new LibreOffice converter instance
func NewLibreOffice(opts Options) *LibreOffice {
	if opts.Binary == "" {
		opts.Binary = "soffice"
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 180 * time.Second
	}
	return &LibreOffice{
		binary:    opts.Binary,
		timeout:   opts.Timeout,
		tempDir:   opts.TempDir,
		semaphore: make(chan struct{}, opts.MaxWorkers),
	}
}

func (l *LibreOffice) Binary() string { return l.binary }

// Available reports whether the soffice binary can be found.
func (l *LibreOffice) Available() bool {
	_, err := exec.LookPath(l.binary)
	return err == nil
}

// ToPDF converts the document fileName with content data and returns the
// PDF bytes. Unreadable or password protected documents are input errors; a
// missing binary, a crash or a timeout is a backend error.
func (l *LibreOffice) ToPDF(ctx context.Context, fileName string, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, apperr.Input(nil, "%s is empty", fileName)
	}
	if !IsSupported(filepath.Ext(fileName)) {
		return nil, apperr.Input(nil, "%s cannot be converted to PDF", fileName)
	}

	select {
	case l.semaphore <- struct{}{}:
		defer func() { <-l.semaphore }()
	case <-ctx.Done():
		return nil, apperr.BackendUnavailable(ctx.Err(), "waiting for a free converter")
	}

	startTime := time.Now()
	base := l.tempDir
	if base == "" {
		base = os.TempDir()
	}
	workDir := filepath.Join(base, fmt.Sprintf("chopdok_convert_%s", uuid.New().String()))
	profileDir := filepath.Join(workDir, "profile")
	outputDir := filepath.Join(workDir, "out")
	for _, d := range []string{profileDir, outputDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return nil, apperr.IO(err, "create conversion directory")
		}
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, filepath.Base(fileName))
	if err := os.WriteFile(inputPath, data, 0o600); err != nil {
		return nil, apperr.IO(err, "write conversion input")
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, l.binary,
		"-env:UserInstallation=file://"+profileDir,
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outputDir,
		inputPath,
	)
	// soffice forks; don't wait on its children forever once killed
	cmd.WaitDelay = 5 * time.Second
	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("LibreOffice command")

	output, err := cmd.CombinedOutput()
	if err != nil {
		lower := strings.ToLower(string(output))
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, apperr.BackendUnavailable(ctx.Err(), "conversion of %s timed out after %v", fileName, l.timeout)
		case errors.Is(err, exec.ErrNotFound):
			return nil, apperr.BackendUnavailable(err, "%s not found", l.binary)
		case strings.Contains(lower, "password"), strings.Contains(lower, "encrypted"):
			return nil, apperr.Input(nil, "%s is password protected", fileName)
		}
		return nil, apperr.BackendUnavailable(err, "conversion of %s failed: %s", fileName, strings.TrimSpace(string(output)))
	}

	pdf, err := os.ReadFile(expectedOutputPath(inputPath, outputDir))
	if err != nil {
		return nil, apperr.Input(err, "LibreOffice could not read %s", fileName)
	}
	log.Info().Str("file", fileName).Int("bytes", len(pdf)).Dur("duration", time.Since(startTime)).Msg("conversion successful")
	return pdf, nil
}

// expectedOutputPath is where LibreOffice writes the PDF for inputPath.
func expectedOutputPath(inputPath, outputDir string) string {
	baseName := filepath.Base(inputPath)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	return filepath.Join(outputDir, nameWithoutExt+".pdf")
}

// SupportedExtensions returns a list of file extensions supported for conversion
func SupportedExtensions() []string {
	return []string{
		"doc", "docx", "rtf", "odt", // Word processing
		"xls", "xlsx", "ods", // Spreadsheets
		"ppt", "pptx", "odp", // Presentations
		"vsd", "vsdx", // Visio diagrams
	}
}

// IsSupported checks if a file extension is supported for conversion
func IsSupported(extension string) bool {
	ext := strings.ToLower(strings.TrimPrefix(extension, "."))
	for _, supportedExt := range SupportedExtensions() {
		if ext == supportedExt {
			return true
		}
	}
	return false
}
