package summarizer

import (
	"bytes"
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
)

// Script runs the external summarization script:
//
//	<python> <path> <file> <provider> <model> <template>
//
// and takes its trimmed stdout as the summary.
type Script struct {
	Python  string
	Path    string
	Timeout time.Duration
	TempDir string
}

// ScriptError is returned when the script cannot be started, exits non-zero
// or times out.
type ScriptError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ScriptError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("summarize script failed (exit %d): %v: %s", e.ExitCode, e.Err, e.Stderr)
	}
	return fmt.Sprintf("summarize script failed (exit %d): %v", e.ExitCode, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

func (s *Script) Name() string { return "script" }

// Run writes content to a private temp directory under fileName and invokes
// the script on it.
func (s *Script) Run(ctx context.Context, fileName string, content []byte, provider, model, template string) (string, error) {
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 180 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	workDir := filepath.Join(s.tempDir(), fmt.Sprintf("chopdok_summarize_%s", uuid.New().String()))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, filepath.Base(fileName))
	if err := os.WriteFile(inputPath, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write input file: %w", err)
	}

	python := s.Python
	if python == "" {
		python = "python"
	}
	cmd := exec.CommandContext(ctx, python, s.Path, inputPath, provider, model, template)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("cmd", strings.Join(cmd.Args[:3], " ")).Str("provider", provider).Str("model", model).Msg("summarize script command")

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("timeout after %v: %w", timeout, ctx.Err())
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return "", &ScriptError{ExitCode: code, Stderr: tail(stderr.String(), 512), Err: err}
	}

	log.Info().Str("file", fileName).Dur("duration", time.Since(start)).Msg("summarize script finished")
	return strings.TrimSpace(stdout.String()), nil
}

func (s *Script) tempDir() string {
	if s.TempDir != "" {
		return s.TempDir
	}
	return os.TempDir()
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
