package main

import (
	"github.com/spf13/cobra"
)

var personasOutput string

var listPersonasCmd = &cobra.Command{
	Use:     "list-personas",
	Aliases: []string{"personas"},
	Short:   "Show the persona catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		personas := a.Personas.List()
		if personasOutput == "json" {
			return printJSON(cmd, personas)
		}
		renderMarkdown(cmd.OutOrStdout(), personasMarkdown(personas))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listPersonasCmd)
	listPersonasCmd.Flags().StringVarP(&personasOutput, "output", "O", "text", "Output format: text or json")
}
