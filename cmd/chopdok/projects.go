package main

import (
    "fmt"

    "github.com/spf13/cobra"

    cfgpkg "github.com/local/chopdok/internal/config"
    "github.com/local/chopdok/internal/folders"
    "github.com/local/chopdok/internal/store"
)

func newImportCmd(cfg cfgpkg.Config) *cobra.Command {
    var root, db string
    cmd := &cobra.Command{
        Use:   "import-projects",
        Short: "Read project directories under the root into the project database",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, args []string) error {
            projects, err := store.OpenProjectStore(cmd.Context(), db)
            if err != nil { return cliError(cmd, err) }
            defer projects.Close()

            n, err := folders.New(root, nil, nil, nil).ImportProjects(cmd.Context(), projects)
            if err != nil { return cliError(cmd, err) }
            fmt.Fprintf(cmd.OutOrStdout(), "imported %d project directories\n", n)
            return nil
        },
    }
    cmd.Flags().StringVar(&root, "root", cfg.Folders.Root, "Document root (ROOT_FOLDER)")
    cmd.Flags().StringVar(&db, "db", cfg.Store.ProjectsDB, "Project database (PROJECTS_DB)")
    return cmd
}
