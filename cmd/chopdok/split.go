package main

import (
    "fmt"
    "path/filepath"

    "github.com/rs/zerolog/log"
    "github.com/spf13/cobra"
    "gopkg.in/yaml.v3"

    "github.com/local/chopdok/internal/partition"
    "github.com/local/chopdok/internal/pdfsplit"
)

func newSplitCmd() *cobra.Command {
    var (
        flags   planFlags
        out     string
        archive bool
        workers int
    )
    cmd := &cobra.Command{
        Use:   "split FILE",
        Short: "Write one PDF per part, or a zip archive of all parts",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            src, err := pdfsplit.OpenFile(args[0])
            if err != nil { return cliError(cmd, err) }
            state, err := flags.state(src.PageCount())
            if err != nil { return cliError(cmd, err) }

            outputs, err := src.MaterializeParts(cmd.Context(), partition.ComputeParts(state), workers)
            if err != nil { return cliError(cmd, err) }

            if archive {
                data, err := pdfsplit.ArchiveBytes(outputs)
                if err != nil { return cliError(cmd, err) }
                path := filepath.Join(out, pdfsplit.ArchiveName)
                if err := writeAtomic(path, data); err != nil { return cliError(cmd, err) }
                fmt.Fprintln(cmd.OutOrStdout(), path)
                return nil
            }
            for _, o := range outputs {
                path := filepath.Join(out, o.FileName)
                if err := writeAtomic(path, o.Data); err != nil { return cliError(cmd, err) }
                if o.Part.Empty {
                    fmt.Fprintf(cmd.OutOrStdout(), "%s (no pages)\n", path)
                    continue
                }
                fmt.Fprintln(cmd.OutOrStdout(), path)
            }
            log.Info().Str("file", src.Name()).Int("parts", len(outputs)).Msg("split done")
            return nil
        },
    }
    flags.register(cmd)
    cmd.Flags().StringVarP(&out, "out", "o", ".", "Output directory")
    cmd.Flags().BoolVar(&archive, "archive", false, "Write "+pdfsplit.ArchiveName+" instead of single files")
    cmd.Flags().IntVar(&workers, "workers", 0, "Parts extracted concurrently (0 = number of CPUs)")
    return cmd
}

func newDeleteCmd() *cobra.Command {
    var (
        pages string
        out   string
    )
    cmd := &cobra.Command{
        Use:   "delete FILE",
        Short: "Write a copy of FILE without the given pages",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            src, err := pdfsplit.OpenFile(args[0])
            if err != nil { return cliError(cmd, err) }
            deleted, err := partition.ParsePageList(pages)
            if err != nil { return cliError(cmd, err) }
            res, err := src.DeletePages(cmd.Context(), deleted)
            if err != nil { return cliError(cmd, err) }
            path := out
            if path == "" { path = filepath.Join(filepath.Dir(args[0]), res.FileName) }
            if err := writeAtomic(path, res.Data); err != nil { return cliError(cmd, err) }
            fmt.Fprintln(cmd.OutOrStdout(), path)
            return nil
        },
    }
    cmd.Flags().StringVar(&pages, "pages", "", `Pages to remove, e.g. "2,4" or "3-5"`)
    cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default "+pdfsplit.ModifiedFileName+" next to FILE)")
    _ = cmd.MarkFlagRequired("pages")
    return cmd
}

// partsReport is what the parts command prints.
type partsReport struct {
    File  string           `yaml:"file"`
    Plan  partition.State  `yaml:"plan"`
    Parts []partition.Part `yaml:"parts"`
}

func newPartsCmd() *cobra.Command {
    var flags planFlags
    cmd := &cobra.Command{
        Use:   "parts FILE",
        Short: "Print the parts a plan produces without writing any PDF",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            src, err := pdfsplit.OpenFile(args[0])
            if err != nil { return cliError(cmd, err) }
            state, err := flags.state(src.PageCount())
            if err != nil { return cliError(cmd, err) }

            enc := yaml.NewEncoder(cmd.OutOrStdout())
            enc.SetIndent(2)
            defer enc.Close()
            return enc.Encode(partsReport{File: src.Name(), Plan: state, Parts: partition.ComputeParts(state)})
        },
    }
    flags.register(cmd)
    return cmd
}
