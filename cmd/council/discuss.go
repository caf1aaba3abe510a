package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	model "github.com/zhouzirui/z-council/backend/internal/model/council"
	councilsvc "github.com/zhouzirui/z-council/backend/internal/service/council"
	"github.com/zhouzirui/z-council/backend/internal/service/session"
)

// discussOptions is shared by discuss and run-config. Field tags are the run-config file keys.
type discussOptions struct {
	Topic         string   `json:"topic" yaml:"topic"`
	Objective     string   `json:"objective" yaml:"objective"`
	Context       string   `json:"context" yaml:"context"`
	Personas      int      `json:"personas" yaml:"personas"`
	PersonaNames  []string `json:"persona_names" yaml:"persona_names"`
	AutoPersonas  bool     `json:"auto_personas" yaml:"auto_personas"`
	ConsensusType string   `json:"consensus_type" yaml:"consensus_type"`
	MaxRounds     int      `json:"max_rounds" yaml:"max_rounds"`
	Output        string   `json:"output" yaml:"output"`
	Quiet         bool     `json:"quiet" yaml:"quiet"`

	Model   string `json:"model" yaml:"model"`
	APIBase string `json:"api_base" yaml:"api_base"`
	APIKey  string `json:"api_key" yaml:"api_key"`
	Preset  string `json:"preset" yaml:"preset"`
}

func (o discussOptions) validate() error {
	if strings.TrimSpace(o.Topic) == "" || strings.TrimSpace(o.Objective) == "" {
		return errors.New("topic and objective are required")
	}
	switch o.Output {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid output %q (want text or json)", o.Output)
	}
	if o.ConsensusType != "" {
		if _, err := model.ParseConsensusType(o.ConsensusType); err != nil {
			return err
		}
	}
	return nil
}

func (o discussOptions) request() councilsvc.DiscussRequest {
	return councilsvc.DiscussRequest{
		Topic:          o.Topic,
		Objective:      o.Objective,
		InitialContext: o.Context,
		PersonaNames:   o.PersonaNames,
		Generate:       o.AutoPersonas,
		Count:          o.Personas,
		ConsensusType:  o.ConsensusType,
		MaxRounds:      o.MaxRounds,
	}
}

func (o discussOptions) providerFlags() *providerFlags {
	return &providerFlags{model: o.Model, apiBase: o.APIBase, apiKey: o.APIKey, preset: o.Preset}
}

var discussOpts = discussOptions{Personas: 3, Output: "text"}

var discussCmd = &cobra.Command{
	Use:   "discuss",
	Short: "Run a council discussion on a topic",
	Example: `  council discuss -t "API Design" -o "Choose REST vs GraphQL" -n 3
  council discuss -t "Pricing" -o "Pick a model" --auto-personas --consensus-type supermajority -O json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDiscuss(cmd, discussOpts)
	},
}

func init() {
	rootCmd.AddCommand(discussCmd)

	f := discussCmd.Flags()
	f.StringVarP(&discussOpts.Topic, "topic", "t", "", "Discussion topic")
	f.StringVarP(&discussOpts.Objective, "objective", "o", "", "Goal/decision to reach")
	f.StringVarP(&discussOpts.Context, "context", "c", "", "Additional context for the discussion")
	f.IntVarP(&discussOpts.Personas, "personas", "n", 3, "Number of personas")
	f.StringSliceVar(&discussOpts.PersonaNames, "persona", nil, "Persona names to seat (repeatable)")
	f.BoolVar(&discussOpts.AutoPersonas, "auto-personas", false, "Generate personas for the topic")
	f.StringVar(&discussOpts.ConsensusType, "consensus-type", "", "unanimous, supermajority, majority or plurality (default from config)")
	f.IntVarP(&discussOpts.MaxRounds, "max-rounds", "r", 0, "Maximum discussion rounds (default from config)")
	f.StringVarP(&discussOpts.Output, "output", "O", "text", "Output format: text or json")
	f.BoolVarP(&discussOpts.Quiet, "quiet", "q", false, "Minimal output (for automation)")
	f.StringVarP(&discussOpts.Model, "model", "m", "", "Model to use (overrides config)")
	f.StringVarP(&discussOpts.APIBase, "api-base", "b", "", "API base URL (overrides config)")
	f.StringVarP(&discussOpts.APIKey, "api-key", "k", "", "API key if required")
	f.StringVarP(&discussOpts.Preset, "preset", "p", "", "Provider preset: ark, lmstudio, openai, openai-mini")
	_ = discussCmd.MarkFlagRequired("topic")
	_ = discussCmd.MarkFlagRequired("objective")
}

var runConfigCmd = &cobra.Command{
	Use:   "run-config CONFIG_FILE",
	Short: "Run a council session from a JSON or YAML file",
	Long: `Run a council session described by a file. Keys: topic, objective, context,
personas, persona_names, auto_personas, consensus_type, max_rounds, output, quiet,
model, api_base, api_key, preset. topic and objective are required.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := readRunConfig(args[0])
		if err != nil {
			return err
		}
		return runDiscuss(cmd, opts)
	},
}

func init() {
	rootCmd.AddCommand(runConfigCmd)
}

func readRunConfig(path string) (discussOptions, error) {
	opts := discussOptions{Personas: 3, Output: "text"}
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &opts)
	default:
		err = json.Unmarshal(data, &opts)
	}
	if err != nil {
		return opts, fmt.Errorf("parse %s: %w", path, err)
	}
	return opts, opts.validate()
}

func runDiscuss(cmd *cobra.Command, opts discussOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := loadApp(ctx, cmd, opts.providerFlags())
	if err != nil {
		return err
	}
	defer a.Close()

	stderr := cmd.ErrOrStderr()
	hooks := councilsvc.Hooks{}
	if !opts.Quiet {
		hooks = progressHooks(stderr)
		fmt.Fprintf(stderr, "Starting discussion on: %s\nObjective: %s\n", opts.Topic, opts.Objective)
	}

	rec, err := a.Council.Discuss(ctx, opts.request(), hooks)
	if err != nil && rec.ID == "" {
		return err
	}
	if err != nil {
		fmt.Fprintf(stderr, "warning: %v\n", err)
	}

	if opts.Output == "json" {
		return printJSON(cmd, rec.Session)
	}
	out := cmd.OutOrStdout()
	if opts.Quiet {
		renderMarkdown(out, outcomeMarkdown(rec))
		return nil
	}
	renderMarkdown(out, session.ExportMarkdown(rec))
	return nil
}

func progressHooks(w io.Writer) councilsvc.Hooks {
	return councilsvc.Hooks{
		OnRoundStart: func(_ context.Context, round int) {
			fmt.Fprintf(w, "\nRound %d\n", round)
		},
		OnMessage: func(_ context.Context, msg model.Message) {
			if msg.Kind != model.KindDiscussion {
				return
			}
			if msg.IsPass {
				fmt.Fprintf(w, "  %s passes\n", msg.PersonaName)
				return
			}
			fmt.Fprintf(w, "  %s: %s\n", msg.PersonaName, preview(msg.Content, 100))
		},
		OnConsensusCheck: func(_ context.Context, ev councilsvc.ConsensusEvent) {
			if ev.Reached {
				fmt.Fprintf(w, "  moderator: consensus reached\n")
			}
		},
		OnVote: func(_ context.Context, ev councilsvc.VoteEvent) {
			fmt.Fprintf(w, "  vote on %q: %s\n", preview(ev.Proposal, 60), ev.Tally.String())
		},
	}
}

func preview(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
