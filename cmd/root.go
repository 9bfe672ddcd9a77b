// Package cmd implements the bellhop command line interface.
package cmd

import "github.com/spf13/cobra"

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bellhop",
		Short:         "Voice presence agent with spoken notifications",
		Long:          "bellhop keeps an automated participant in the busiest voice channel of each community and announces member arrivals, departures, and moves with synthesized speech.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newVersionCmd(),
	)

	return rootCmd
}
