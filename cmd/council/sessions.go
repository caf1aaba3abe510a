package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-council/backend/internal/service/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Browse archived council sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		summaries, err := a.Archive.List(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(summaries) == 0 {
			fmt.Fprintln(out, "No archived sessions.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tPOLICY\tROUNDS\tCONSENSUS\tTOPIC")
		for _, s := range summaries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%s\n",
				s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.ConsensusType, s.Rounds, s.ConsensusReached, preview(s.Topic, 50))
		}
		return tw.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show SESSION_ID",
	Short: "Render an archived session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Archive.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("session %s: %w", args[0], err)
		}
		renderMarkdown(cmd.OutOrStdout(), session.ExportMarkdown(rec))
		return nil
	},
}

var exportFormat string

var sessionsExportCmd = &cobra.Command{
	Use:   "export SESSION_ID",
	Short: "Write an archived session as JSON or markdown to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := session.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		a, err := loadApp(cmd.Context(), cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Archive.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("session %s: %w", args[0], err)
		}
		data, err := session.Export(rec, format)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete SESSION_ID",
	Short: "Remove an archived session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context(), cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Archive.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("session %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsExportCmd, sessionsDeleteCmd)
	sessionsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "markdown", "Export format: json or markdown")
}

// printJSON is shared by commands with an -O json mode.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
