package main

import (
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-council/backend/internal/app"
	"github.com/zhouzirui/z-council/backend/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve council tools over MCP on stdio",
	Long:  `Start an MCP server on stdin/stdout exposing council_discuss, persona, provider and config tools.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		logger.Info().Strs("providers", a.Providers.Names()).Msg("mcp server starting on stdio")
		return mcp.NewServer(a.Council, a.Providers, cfg, logger).ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
