package main

import (
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "cgc",
		Short:        "Reactive LP dispatch for energy networks",
		Version:      version,
		SilenceUsage: true,
	}
	cmd.AddCommand(solveCmd(), serveCmd())
	return cmd
}
