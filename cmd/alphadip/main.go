// Command alphadip manages the Alphadip Tracker credential files and checks
// that the configured Google endpoints answer.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

// exitError carries the process exit code of a failed command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// failed marks err as a command failure rather than a usage error
func failed(err error) error {
	return &exitError{code: exitFailed, err: err}
}

type rootOptions struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "alphadip",
		Short: "Manage Alphadip Tracker configuration",
		Long: `Manage the Alphadip Tracker credential files.

The committed template (config.example.env) holds placeholders only. Copy it
to config.env with 'alphadip init', fill in real values, then run
'alphadip validate' and 'alphadip check'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			installCLILogger(cmd.ErrOrStderr(), opts.verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log pipeline steps to stderr")

	root.AddCommand(
		newTemplateCmd(),
		newInitCmd(),
		newValidateCmd(),
		newShowCmd(),
		newExtractIDCmd(),
		newCheckCmd(),
		newHistoryCmd(),
		newPipelinesCmd(),
	)
	return root
}

// installCLILogger routes zap's global logger to w, or discards it
func installCLILogger(w io.Writer, verbose bool) {
	if !verbose {
		zap.ReplaceGlobals(zap.NewNop())
		return
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(zapcore.DebugLevel),
	)
	zap.ReplaceGlobals(zap.New(core))
}

// run executes the CLI and returns the process exit code
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "Error:", ee.err)
		}
		return ee.code
	}

	fmt.Fprintln(stderr, "Error:", err)
	fmt.Fprintln(stderr, "Run 'alphadip --help' for usage.")
	return exitUsage
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
