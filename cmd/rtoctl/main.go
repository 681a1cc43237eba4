package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"rtodocs/internal/config"
)

var Version = "dev"

func main() {
	cfg := config.Load()

	if err := newRootCmd(cfg, openFromConfig(cfg)).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.AppConfig, open opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "rtoctl",
		Short:         "Operator tools for the RTO document service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd(cfg))
	rootCmd.AddCommand(tokenCmd(cfg))
	rootCmd.AddCommand(orphansCmd(open))

	return rootCmd
}
