package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ryotapoi/sitereorg/internal/core"
)

// journalPath resolves the journal location: flag, then environment, then the XDG default.
func journalPath(flag string) string {
	if flag != "" {
		return flag
	}
	if v, ok := os.LookupEnv(core.EnvJournal); ok && v != "" {
		return v
	}
	return core.DefaultJournalPath()
}

func (a *app) historyCmd() *cobra.Command {
	var (
		journal string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := core.History(journalPath(journal), limit)
			if err != nil {
				return err
			}
			switch a.format {
			case "json":
				return printHistoryJSON(a.stdout, runs)
			default:
				printHistoryText(a.stdout, runs)
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&journal, "journal", "", "journal database (default $"+core.EnvJournal+" or the XDG state directory)")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of runs (0 for all)")
	return cmd
}

func (a *app) mappingsCmd() *cobra.Command {
	var (
		journal string
		runID   string
	)
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Show the legacy URL mappings of a recorded run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, mappings, err := core.RunMappings(journalPath(journal), runID)
			if err != nil {
				return err
			}
			switch a.format {
			case "json":
				return printMappingsJSON(a.stdout, id, mappings)
			default:
				printMappingsText(a.stdout, id, mappings)
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&journal, "journal", "", "journal database (default $"+core.EnvJournal+" or the XDG state directory)")
	cmd.Flags().StringVar(&runID, "run", "", "run id (default latest run)")
	return cmd
}
