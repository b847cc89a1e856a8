package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ryotapoi/sitereorg/internal/core"
)

func (a *app) stubCmd() *cobra.Command {
	var (
		file   string
		target string
		legacy string
	)
	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Write a redirect stub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--path is required")
			}
			if target == "" {
				return fmt.Errorf("--target is required")
			}
			if legacy == "" {
				legacy = filepath.ToSlash(filepath.Clean(file))
			}
			if err := core.WriteStub(file, legacy, target); err != nil {
				return err
			}
			a.log.Debug("stub written", zap.String("path", file), zap.String("target", target))
			switch a.format {
			case "json":
				return printStubJSON(a.stdout, file, target)
			default:
				printStubText(a.stdout, file, target)
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&file, "path", "", "stub file to write")
	cmd.Flags().StringVar(&target, "target", "", "site-rooted URL to redirect to")
	cmd.Flags().StringVar(&legacy, "legacy", "", "legacy path named in the stub (default --path)")
	return cmd
}
