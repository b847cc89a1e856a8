package main

import (
	"github.com/spf13/cobra"

	"github.com/ryotapoi/sitereorg/internal/core"
)

func (a *app) checkCmd() *cobra.Command {
	var (
		repo    string
		config  string
		root    string
		index   string
		exclude []string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that every local reference under the publish root resolves",
		Long: `Check scans the publish root configured for the repository (dest in
sitereorg.yaml, $DEST, or --root) and reports every local href/src that
does not resolve. index and check.exclude are read from the configuration
unless --index or --exclude is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, root, err := siteConfig(cmd, repo, config, root)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("index") {
				cfg.Index = index
			}
			if cmd.Flags().Changed("exclude") {
				cfg.Check.Exclude = exclude
			}
			res, err := core.CheckLinks(root, core.CheckOptions{Index: cfg.Index, Exclude: cfg.Check.Exclude, Logger: a.log})
			if err != nil {
				return err
			}
			switch a.format {
			case "json":
				err = printCheckJSON(a.stdout, res)
			default:
				printCheckText(a.stdout, res)
			}
			if err != nil {
				return err
			}
			if !res.OK() {
				return &core.LinkCheckError{Violations: res.Violations}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&repo, "repo", ".", "repository root")
	cmd.Flags().StringVar(&config, "config", "", "configuration file (default <repo>/"+core.ConfigFileName+")")
	cmd.Flags().StringVar(&root, "root", "", "publish root to check (default <repo>/<dest>)")
	cmd.Flags().StringVar(&index, "index", core.DefaultIndex, "directory index document")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "glob of documents not to scan (repeatable)")
	return cmd
}
