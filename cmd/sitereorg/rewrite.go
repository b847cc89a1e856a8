package main

import (
	"github.com/spf13/cobra"

	"github.com/ryotapoi/sitereorg/internal/core"
)

func (a *app) rewriteCmd() *cobra.Command {
	var (
		repo   string
		config string
		root   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Rewrite legacy asset references to /assets/",
		Long: `Rewrite normalizes legacy asset references under the publish root
configured for the repository (dest in sitereorg.yaml, $DEST, or --root),
using the assets mapping of the configuration. DRY_RUN=1 or --dry-run
reports without writing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, env, root, err := siteConfig(cmd, repo, config, root)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("dry-run") {
				dryRun = env.DryRun
			}
			res, err := core.NormalizeAssetPaths(root, core.RewriteOptions{Assets: cfg.Assets, DryRun: dryRun, Logger: a.log})
			if err != nil {
				return err
			}
			switch a.format {
			case "json":
				return printRewriteJSON(a.stdout, res, dryRun)
			default:
				printRewriteText(a.stdout, res, dryRun)
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&repo, "repo", ".", "repository root")
	cmd.Flags().StringVar(&config, "config", "", "configuration file (default <repo>/"+core.ConfigFileName+")")
	cmd.Flags().StringVar(&root, "root", "", "publish root to rewrite (default <repo>/<dest>)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing")
	return cmd
}
