// Package folders lists the document tree under the configured root and
// joins every entry with what the store knows about it.
package folders

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/chopdok/internal/apperr"
)

// DirectoryIndex records when directories were first seen.
type DirectoryIndex interface {
	RecordDirectory(ctx context.Context, path string) error
	GetFirstSeen(ctx context.Context, path string) (*time.Time, error)
}

// SummaryLookup finds stored summaries.
type SummaryLookup interface {
	GetSummary(ctx context.Context, filePath string) (*string, error)
}

// NameLookup finds proposed file names.
type NameLookup interface {
	GetProposedName(ctx context.Context, filePath string) (*string, error)
}

// Entry is one item of a folder listing.
type Entry struct {
	Name            string     `json:"name"`
	IsDirectory     bool       `json:"isDirectory"`
	FirstSeen       *time.Time `json:"firstSeen"`
	HasSummary      bool       `json:"hasSummary"`
	HasProposedName bool       `json:"hasProposedName"`
}

// Lister reads folders under Root. Store keys are slash separated paths
// relative to the root, e.g. "23-001_Schule_AN/plan.pdf".
type Lister struct {
	root      string
	dirs      DirectoryIndex
	summaries SummaryLookup
	names     NameLookup
}

func New(root string, dirs DirectoryIndex, summaries SummaryLookup, names NameLookup) *Lister {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	return &Lister{root: abs, dirs: dirs, summaries: summaries, names: names}
}

func (l *Lister) Root() string { return l.root }

// Resolve maps a root-relative path to an absolute path and its store key.
// Paths escaping the root are rejected.
func (l *Lister) Resolve(rel string) (string, string, error) {
	full := filepath.Join(l.root, filepath.FromSlash(rel))
	r, err := filepath.Rel(l.root, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", "", apperr.Input(err, "path %q is outside the root folder", rel)
	}
	return full, filepath.ToSlash(r), nil
}

func key(parent, name string) string {
	if parent == "." || parent == "" {
		return name
	}
	return parent + "/" + name
}

// ListFolder lists rel. Directories carry their first-seen time, files
// whether a summary or a proposed name is stored for them.
func (l *Lister) ListFolder(ctx context.Context, rel string) ([]Entry, error) {
	full, parentKey, err := l.Resolve(rel)
	if err != nil {
		return nil, err
	}
	items, err := os.ReadDir(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound("folder %q not found", rel)
	}
	if err != nil {
		return nil, apperr.IO(err, "list folder %q", rel)
	}

	out := make([]Entry, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := Entry{Name: item.Name(), IsDirectory: item.IsDir()}
		k := key(parentKey, item.Name())
		if e.IsDirectory {
			if e.FirstSeen, err = l.dirs.GetFirstSeen(ctx, k); err != nil {
				return nil, err
			}
		} else {
			s, err := l.summaries.GetSummary(ctx, k)
			if err != nil {
				return nil, err
			}
			n, err := l.names.GetProposedName(ctx, k)
			if err != nil {
				return nil, err
			}
			e.HasSummary, e.HasProposedName = s != nil, n != nil
		}
		out = append(out, e)
	}
	log.Debug().Str("folder", parentKey).Int("entries", len(out)).Msg("listed folder")
	return out, nil
}

// File is a regular file resolved under the root.
type File struct {
	Path string
	Key  string
	Info fs.FileInfo
}

// OpenFile resolves rel to a regular file under the root.
func (l *Lister) OpenFile(rel string) (*File, error) {
	if strings.TrimSpace(rel) == "" {
		return nil, apperr.Input(nil, "file path is empty")
	}
	full, k, err := l.Resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound("file %q not found", rel)
	}
	if err != nil {
		return nil, apperr.IO(err, "stat %q", rel)
	}
	if info.IsDir() {
		return nil, apperr.Input(nil, "%q is a directory", rel)
	}
	return &File{Path: full, Key: k, Info: info}, nil
}
