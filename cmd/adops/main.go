package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "adops",
	Short:         "adops — ad account analysis and autonomous optimization",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(integrationCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
