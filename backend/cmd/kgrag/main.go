package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"reqgraph/backend/pkg/logger"
)

// cliFlags holds the persistent flags shared by every command.
type cliFlags struct {
	Verbose bool
	JSON    bool
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}
	root := &cobra.Command{
		Use:           "kgrag",
		Short:         "Build a requirements knowledge graph and query it",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.InitCLI(flags.Verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable debug logging on stderr")
	root.PersistentFlags().BoolVar(&flags.JSON, "json", false, "Print results as JSON")

	root.AddCommand(
		newParseModelCmd(flags),
		newNormalizeCmd(flags),
		newExtractTriplesCmd(flags),
		newImportTriplesCmd(flags),
		newImportModelCmd(flags),
		newIndexDocumentsCmd(flags),
		newQueryCmd(flags),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logger.Sync()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
