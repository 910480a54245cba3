package cmd

import (
	"fmt"
	"os"

	"findoc/internal/logger"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "findoc",
	Short: "findoc - financial document OCR and analysis",
	Long: `findoc extracts text from scanned financial documents and runs it
through a local LLM server to produce an asset overview and a structured
income statement.

Run "findoc serve" to start the HTTP API, or "findoc analyze" to process
a single document from the command line.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("findoc executed")

		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
