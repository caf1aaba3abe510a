package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-council/backend/internal/service/ai"
)

var connectionFlags providerFlags

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Check that the configured LLM endpoint answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		settings, err := connectionFlags.apply(cfg.Provider)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Testing connection to %s (model %s)...\n", settings.BaseURL, settings.Model)

		client, err := ai.NewClientFromSettings(cmd.Context(), "default", settings, logger)
		if err != nil {
			return err
		}
		if !client.TestConnection(cmd.Context()) {
			return fmt.Errorf("connection failed")
		}
		fmt.Fprintln(out, "Connection successful!")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testConnectionCmd)
	connectionFlags.register(testConnectionCmd)
}
