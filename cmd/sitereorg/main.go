package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ryotapoi/sitereorg/internal/core"
)

var version = "dev"

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitBrokenLinks = 2
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// app carries the state shared by every command of one invocation.
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	verbose bool
	format  string
	log     *zap.Logger
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, log: zap.NewNop()}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	_ = a.log.Sync()
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	if errors.Is(err, core.ErrBrokenLinks) {
		return exitBrokenLinks
	}
	return exitFailure
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sitereorg",
		Short: "Reorganize a flat legacy static site into a structured publish root",
		Long: `sitereorg moves a legacy flat static site into a publish root with
assets/, guide/, sessions/YYYY/MM/ and summaries/YYYY/, leaves redirect
stubs at every vacated page, rewrites asset references and verifies that
every local link still resolves.

Exit codes: 0 success, 1 failure, 2 broken local references.`,
		Version:       resolveVersion(),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(a.format); err != nil {
				return err
			}
			a.log = newLogger(a.stderr, a.verbose, a.format)
			return nil
		},
	}
	root.SetVersionTemplate("sitereorg version {{.Version}}\n")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.format, "format", "text", "output format (json or text)")

	root.AddCommand(
		a.runCmd(),
		a.checkCmd(),
		a.rewriteCmd(),
		a.stubCmd(),
		a.historyCmd(),
		a.mappingsCmd(),
	)
	return root
}

// newLogger builds a development logger writing to w: info level by default,
// debug when verbose, JSON encoding when the report itself is JSON.
func newLogger(w io.Writer, verbose bool, format string) *zap.Logger {
	config := zap.NewDevelopmentConfig()
	if !verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	enc := zapcore.NewConsoleEncoder(config.EncoderConfig)
	if format == "json" {
		enc = zapcore.NewJSONEncoder(config.EncoderConfig)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), config.Level))
}

func resolveVersion() string {
	v := version
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	return v
}
