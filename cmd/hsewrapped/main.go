package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "hsewrapped",
	Short:        "Telegram bot turning an HSE portfolio into a set of statistics slides",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, parseCmd, usersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
