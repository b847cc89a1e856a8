package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ryotapoi/sitereorg/internal/core"
)

type runFlags struct {
	repo      string
	config    string
	dest      string
	backupDir string
	dryRun    bool
}

func (a *app) runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reorganize the site in the repository",
		Long: `Run checks that the working tree is clean, writes a backup archive,
moves the legacy pages and assets into the publish root, writes redirect
stubs, rewrites references and validates every local link.

Environment: DEST overrides the publish root, DRY_RUN=1 plans without
changing anything, BACKUP_DIR and SITEREORG_JOURNAL relocate the backup
archive and the run journal. Flags override the environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReorganize(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.repo, "repo", ".", "repository root")
	cmd.Flags().StringVar(&f.config, "config", "", "configuration file (default <repo>/"+core.ConfigFileName+")")
	cmd.Flags().StringVar(&f.dest, "dest", "", "publish root relative to the repository (default "+core.DefaultDest+")")
	cmd.Flags().StringVar(&f.backupDir, "backup-dir", "", "directory for the backup archive")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "describe the changes without making them")
	return cmd
}

func (a *app) runReorganize(cmd *cobra.Command, f runFlags) error {
	cfg, env, err := loadConfigWithEnv(f.repo, f.config)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("dest") {
		cfg.Dest = f.dest
	}
	if f.backupDir != "" {
		cfg.BackupDir = f.backupDir
	}
	dryRun := env.DryRun
	if cmd.Flags().Changed("dry-run") {
		dryRun = f.dryRun
	}

	res, err := core.Reorganize(f.repo, core.ReorgOptions{Config: cfg, DryRun: dryRun, Logger: a.log})
	if res != nil {
		if perr := a.printRun(res); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

// loadConfigWithEnv loads the configuration and applies the environment overrides.
func loadConfigWithEnv(repo, configPath string) (core.Config, core.Env, error) {
	cfg, err := loadRunConfig(repo, configPath)
	if err != nil {
		return core.Config{}, core.Env{}, err
	}
	env, err := core.ReadEnv(os.LookupEnv)
	if err != nil {
		return core.Config{}, core.Env{}, err
	}
	env.Apply(&cfg)
	return cfg, env, nil
}

// siteConfig resolves the configuration of the standalone commands and the publish
// root they operate on: --root when given, otherwise the configured dest under --repo.
func siteConfig(cmd *cobra.Command, repo, configPath, root string) (core.Config, core.Env, string, error) {
	cfg, env, err := loadConfigWithEnv(repo, configPath)
	if err != nil {
		return core.Config{}, core.Env{}, "", err
	}
	if err := cfg.Validate(); err != nil {
		return core.Config{}, core.Env{}, "", fmt.Errorf("config: %w", err)
	}
	if !cmd.Flags().Changed("root") {
		root = filepath.Join(repo, filepath.FromSlash(cfg.Dest))
	}
	return cfg, env, root, nil
}

// loadRunConfig reads the configuration file, falling back to the defaults when
// no explicit file is given and the repository has none.
func loadRunConfig(repo, configPath string) (core.Config, error) {
	if configPath == "" {
		cfg, err := core.LoadConfig(repo)
		if err != nil {
			return core.Config{}, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := core.LoadConfigFile(filepath.Clean(configPath))
	if err != nil {
		return core.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (a *app) printRun(res *core.ReorgResult) error {
	switch a.format {
	case "json":
		return printRunJSON(a.stdout, res)
	default:
		printRunText(a.stdout, res)
		return nil
	}
}
