package main

import (
    "fmt"
    "os"
    "path/filepath"
    "strconv"
    "strings"

    "github.com/rs/zerolog/log"
    "github.com/spf13/cobra"

    "github.com/local/chopdok/internal/apperr"
    cfgpkg "github.com/local/chopdok/internal/config"
    logpkg "github.com/local/chopdok/internal/logger"
    "github.com/local/chopdok/internal/partition"
)

func newRootCmd() *cobra.Command {
    var (
        level  string
        pretty bool
    )
    cfg := cfgpkg.FromEnv()

    root := &cobra.Command{
        Use:           "chopdok",
        Short:         "Split PDFs into parts and manage the project database",
        SilenceUsage:  true,
        SilenceErrors: true,
        PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
            return logpkg.Init(logpkg.Options{
                Service: "chopdok-cli",
                Level:   level,
                Pretty:  pretty,
                Console: cmd.ErrOrStderr(),
            })
        },
    }
    root.PersistentFlags().StringVar(&level, "log-level", "warn", "Log level (debug, info, warn, error)")
    root.PersistentFlags().BoolVar(&pretty, "pretty", true, "Human readable log output")

    root.AddCommand(
        newSplitCmd(),
        newDeleteCmd(),
        newPartsCmd(),
        newImportCmd(cfg),
    )
    return root
}

// planFlags are the split choices shared by split and parts.
type planFlags struct {
    plan   string
    splits string
    delete string
    names  []string
}

func (f *planFlags) register(cmd *cobra.Command) {
    cmd.Flags().StringVar(&f.plan, "plan", "", "YAML plan with splitPoints, deletedPages and partNames")
    cmd.Flags().StringVar(&f.splits, "split", "", `Pages that start a new part, e.g. "4,7"`)
    cmd.Flags().StringVar(&f.delete, "delete", "", `Pages to leave out, e.g. "5" or "2-3"`)
    cmd.Flags().StringArrayVar(&f.names, "name", nil, `Part name as number=name, e.g. "2=Anhang" (repeatable)`)
}

// state builds the plan for a document of pageCount pages. Flags add to
// whatever the plan file sets.
func (f *planFlags) state(pageCount int) (partition.State, error) {
    var s partition.State
    if f.plan != "" {
        var err error
        if s, err = partition.LoadPlan(f.plan); err != nil { return s, err }
        if s.PageCount != 0 && s.PageCount != pageCount {
            log.Warn().Int("plan", s.PageCount).Int("document", pageCount).Msg("plan page count differs from document")
        }
    }
    s.PageCount = pageCount

    splits, err := partition.ParsePageList(f.splits)
    if err != nil { return s, err }
    s.SplitPoints = append(s.SplitPoints, splits...)
    deleted, err := partition.ParsePageList(f.delete)
    if err != nil { return s, err }
    s.DeletedPages = append(s.DeletedPages, deleted...)

    for _, kv := range f.names {
        num, name, ok := strings.Cut(kv, "=")
        n, err := strconv.Atoi(strings.TrimSpace(num))
        if !ok || err != nil || n < 1 {
            return s, apperr.Validation("invalid --name %q, want number=name", kv)
        }
        if s.PartNames == nil { s.PartNames = map[int]string{} }
        s.PartNames[n-1] = name
    }
    return s.Normalize(), nil
}

// writeAtomic writes data next to path and renames it into place so a
// failed write never leaves a partial file behind.
func writeAtomic(path string, data []byte) error {
    if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
        return apperr.IO(err, "create %s", filepath.Dir(path))
    }
    tmp, err := os.CreateTemp(filepath.Dir(path), ".chopdok-*")
    if err != nil { return apperr.IO(err, "create temp file") }
    defer os.Remove(tmp.Name())
    if _, err := tmp.Write(data); err != nil {
        tmp.Close()
        return apperr.IO(err, "write %s", path)
    }
    if err := tmp.Close(); err != nil { return apperr.IO(err, "write %s", path) }
    if err := os.Rename(tmp.Name(), path); err != nil { return apperr.IO(err, "rename to %s", path) }
    return nil
}

// cliError prints err as "kind: message".
func cliError(cmd *cobra.Command, err error) error {
    kind := apperr.KindOf(err)
    if kind == "" { kind = apperr.KindIO }
    fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", kind, apperr.MessageOf(err))
    return err
}
