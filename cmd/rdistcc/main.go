// Command rdistcc is the client-side dispatch driver and reference
// compile server for the remote compilation service. It wires
// internal/dispatch, internal/hostdef, internal/lock, and
// internal/preprocessor into a runnable CLI, and internal/server into a
// `serve` subcommand for integration tests and small deployments.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rdistcc/internal/observability"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rdistcc",
	Short: "Remote compilation dispatch client and reference server",
}

func main() {
	os.Exit(run())
}

// run executes the CLI and returns the process exit code instead of
// calling os.Exit directly, so the deferred tracer shutdown below (and
// every defer further down the call stack, in runDispatch) gets to run
// before the process actually exits.
func run() int {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "rdistcc.yaml", "path to configuration file")
	rootCmd.AddCommand(dispatchCmd, serveCmd)

	shutdown := observability.InitializeTracing("rdistcc")
	defer shutdown(context.Background())

	err := rootCmd.Execute()
	var exitErr *exitStatusError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
