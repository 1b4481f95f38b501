package folders

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/local/chopdok/internal/apperr"
	"github.com/local/chopdok/internal/store"
)

// FolderItem describes a top-level project directory.
type FolderItem struct {
	FullName    string     `json:"fullName"`
	ProjectID   string     `json:"projectId"`
	ProjectName string     `json:"projectName"`
	Type        string     `json:"type"`
	FirstSeen   *time.Time `json:"firstSeen"`
}

var prjIDRegex = regexp.MustCompile(`^(\d+[-_]\d+)`)

// ScanRoot lists the top-level directories, records each one and returns
// them with the project id and name read from the directory name.
func (l *Lister) ScanRoot(ctx context.Context) ([]FolderItem, error) {
	items, err := os.ReadDir(l.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound("root folder %q not found", l.root)
	}
	if err != nil {
		return nil, apperr.IO(err, "scan root folder")
	}

	out := []FolderItem{}
	for _, item := range items {
		if !item.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fi := splitFolderName(item.Name())
		if err := l.dirs.RecordDirectory(ctx, item.Name()); err != nil {
			return nil, err
		}
		if fi.FirstSeen, err = l.dirs.GetFirstSeen(ctx, item.Name()); err != nil {
			return nil, err
		}
		out = append(out, fi)
	}
	log.Info().Str("root", l.root).Int("folders", len(out)).Msg("scanned root folder")
	return out, nil
}

func splitFolderName(name string) FolderItem {
	fi := FolderItem{FullName: name}
	if m := prjIDRegex.FindString(name); m != "" {
		fi.ProjectID = m
		rest := strings.Split(name[len(m):], "_")
		if len(rest) > 1 {
			fi.ProjectName = rest[1]
		}
		if len(rest) > 2 {
			fi.Type = strings.Join(rest[2:], "_")
		}
		return fi
	}
	parts := strings.Split(name, "_")
	fi.ProjectID = "N/A"
	fi.ProjectName = strings.Join(parts[:len(parts)-1], "_")
	fi.Type = parts[len(parts)-1]
	return fi
}

// ProjectType says whether a directory holds a tender or an offer.
type ProjectType string

const (
	TypeAngebot       ProjectType = "AN"
	TypeAusschreibung ProjectType = "AS"
)

// ProjectDir is what a project directory name encodes, e.g.
// "23_001_Schule_AS_v2_l3_f-Muster".
type ProjectDir struct {
	ID            string
	Name          string
	Type          ProjectType
	Version       string
	LotNumber     string
	Company       string
	OtherSuffixes []string
}

// ParseDirectoryName reads a project directory name. The id is everything
// before the first letter with underscores turned into dashes; the rest is
// the project name followed by suffixes. Lot "100" means all lots.
func ParseDirectoryName(name string) (ProjectDir, bool) {
	first := strings.IndexFunc(name, unicode.IsLetter)
	if first < 0 {
		return ProjectDir{}, false
	}
	id := strings.ReplaceAll(strings.TrimRight(name[:first], "_"), "_", "-")
	parts := strings.Split(name[first:], "_")
	if id == "" || len(parts) < 2 {
		return ProjectDir{}, false
	}

	pd := ProjectDir{ID: id, Name: parts[0], Type: TypeAngebot, Version: "1", LotNumber: "100", Company: "WiWo"}
	for _, s := range parts[1:] {
		lower := strings.ToLower(s)
		switch {
		case s == "AN" || s == "AS":
			pd.Type = ProjectType(s)
		case strings.HasPrefix(lower, "v"):
			pd.Version = s[1:]
		case strings.HasPrefix(lower, "l"):
			pd.LotNumber = s[1:]
		case strings.HasPrefix(lower, "f-"):
			pd.Company = s[2:]
		default:
			pd.OtherSuffixes = append(pd.OtherSuffixes, s)
		}
	}
	return pd, true
}

// ProjectWriter is the part of the project store the importer needs.
type ProjectWriter interface {
	GetProject(ctx context.Context, id string) (*store.Project, error)
	UpsertProject(ctx context.Context, p store.Project) error
	UpsertAusschreibung(ctx context.Context, a store.Ausschreibung) (int64, error)
	UpsertAngebot(ctx context.Context, a store.Angebot) (int64, error)
}

// ImportProjects parses every top-level directory name and stores the
// project plus its tender or offer. Existing projects keep their status.
func (l *Lister) ImportProjects(ctx context.Context, projects ProjectWriter) (int, error) {
	items, err := os.ReadDir(l.root)
	if err != nil {
		return 0, apperr.IO(err, "read root folder")
	}

	imported := 0
	for _, item := range items {
		if !item.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		pd, ok := ParseDirectoryName(item.Name())
		if !ok {
			log.Debug().Str("dir", item.Name()).Msg("skipping directory without project id")
			continue
		}

		status := store.StatusActive
		existing, err := projects.GetProject(ctx, pd.ID)
		if err != nil {
			return imported, err
		}
		if existing != nil {
			status = existing.Status
		}
		if err := projects.UpsertProject(ctx, store.Project{ID: pd.ID, Name: pd.Name, Status: status}); err != nil {
			return imported, err
		}

		version, lot, company := pd.Version, pd.LotNumber, pd.Company
		switch pd.Type {
		case TypeAusschreibung:
			_, err = projects.UpsertAusschreibung(ctx, store.Ausschreibung{
				ProjectID: pd.ID, Version: &version, LotNumber: &lot, Company: &company, Path: item.Name(),
			})
		default:
			_, err = projects.UpsertAngebot(ctx, store.Angebot{
				ProjectID: pd.ID, Version: &version, LotNumber: &lot, Company: &company, Path: item.Name(),
			})
		}
		if err != nil {
			return imported, err
		}
		imported++
		log.Info().Str("prjid", pd.ID).Str("name", pd.Name).Str("type", string(pd.Type)).Msg("imported project")
	}
	return imported, nil
}
