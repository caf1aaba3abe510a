package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-council/backend/internal/app"
	"github.com/zhouzirui/z-council/backend/internal/config"
	"github.com/zhouzirui/z-council/backend/internal/logging"
	"github.com/zhouzirui/z-council/backend/internal/mcp"
)

var rootCmd = &cobra.Command{
	Use:           "council",
	Short:         "Multi-persona LLM deliberation and consensus tool",
	Long:          `Council runs a panel of LLM personas through discussion rounds, consensus checks and votes until they agree or run out of rounds.`,
	Version:       mcp.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: user and project files)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides LOG_LEVEL)")
}

// providerFlags are the connection overrides shared by discuss and test-connection.
type providerFlags struct {
	model   string
	apiBase string
	apiKey  string
	preset  string
}

func (p *providerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.model, "model", "m", "", "Model to use (overrides config)")
	cmd.Flags().StringVarP(&p.apiBase, "api-base", "b", "", "API base URL (overrides config)")
	cmd.Flags().StringVarP(&p.apiKey, "api-key", "k", "", "API key if required")
	cmd.Flags().StringVarP(&p.preset, "preset", "p", "", "Provider preset: ark, lmstudio, openai, openai-mini")
}

// apply layers preset then explicit flags over settings.
func (p providerFlags) apply(settings config.ProviderSettings) (config.ProviderSettings, error) {
	if p.preset != "" {
		preset, err := config.Preset(p.preset)
		if err != nil {
			return settings, err
		}
		settings = settings.MergeWith(preset)
	}
	return settings.MergeWith(config.ProviderSettings{
		Model:   p.model,
		BaseURL: p.apiBase,
		APIKey:  p.apiKey,
	}), nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	_ = godotenv.Load()

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("COUNCIL_CONFIG")
	}
	cfg, err := config.LoadWithOptions(config.LoadOptions{ConfigPath: path})
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	level := cfg.Log.Level
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	} else if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	// stdout carries results and MCP frames; logs go to stderr.
	return cfg, logging.New(level, true), nil
}

func loadApp(ctx context.Context, cmd *cobra.Command, pf *providerFlags) (*app.App, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if pf != nil {
		if cfg.Provider, err = pf.apply(cfg.Provider); err != nil {
			return nil, err
		}
	}
	return app.New(ctx, cfg, logger)
}
