// Package cmd defines the gsio command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gsio",
	Short: "gsio - streaming chat completion gateway",
	Long: `gsio is a gateway that fronts multiple LLM providers behind one
streaming chat API. Requests are submitted once, materialized once over
Server-Sent Events, and can transparently consult a pgvector knowledge
base through the retrieval tool loop.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
