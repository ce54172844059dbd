// Package cli implements the assistant command tree.
package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// Process exit statuses. Policy denials and routing misses are the
// caller's problem; everything else unexpected is internal.
const (
	exitOK       = 0
	exitInternal = 1
	exitPolicy   = 2
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assistant",
	Short: "Assistant - routes free text to permission-gated tool calls",
	Long: `Assistant resolves free-text requests into tool calls through a
deterministic fast path, a keyword heuristic, and a model fallback,
then executes them behind a permission gate with an audit trail.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a process exit status through cobra's error path.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

// Execute runs the command tree and returns the process exit status.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	rootCmd.PrintErrln("Error:", err)
	return exitInternal
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.assistant/assistant.json)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}
