package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/clove/internal/assistant"
	mcpserver "github.com/ziadkadry99/clove/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing repository search and context tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var asst *assistant.Assistant
		if asst, err = a.createAssistant(); err != nil {
			logger.Warn().Err(err).Msg("ask tool disabled")
			asst = nil
		}

		// Set version from the cmd package variable.
		mcpserver.Version = Version

		return mcpserver.NewServer(a.ix, asst, logger).Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
