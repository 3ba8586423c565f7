package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/milalabs/licsync/internal/cmd"
	"github.com/milalabs/licsync/internal/cmn/config"
)

var rootCmd = &cobra.Command{
	Use:   config.AppSlug,
	Short: "License server with encrypted git and object storage sync",
	Long: `licsync records issued licenses, serves activation checks over HTTP
and keeps the records in sync with an encrypted git remote.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var version = "0.0.0"

func init() {
	config.Version = version

	rootCmd.AddCommand(cmd.Server())
	rootCmd.AddCommand(cmd.Sync())
	rootCmd.AddCommand(cmd.Backup())
	rootCmd.AddCommand(cmd.License())
	rootCmd.AddCommand(cmd.Version())
}
