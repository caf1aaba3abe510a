package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-council/backend/internal/config"
	"github.com/zhouzirui/z-council/backend/internal/model/persona"
	councilsvc "github.com/zhouzirui/z-council/backend/internal/service/council"
	"github.com/zhouzirui/z-council/backend/internal/service/session"
)

const Version = "0.3.0"

// Council is the service surface exposed as tools.
type Council interface {
	Discuss(ctx context.Context, req councilsvc.DiscussRequest, hooks councilsvc.Hooks) (session.Record, error)
	Personas() []persona.Persona
	GeneratePersonas(ctx context.Context, topic string, count int) ([]persona.Persona, bool)
}

// Providers lists and checks configured model providers.
type Providers interface {
	Names() []string
	Validate(ctx context.Context) map[string]error
}

// DiscussResult is the structured output of council_discuss.
type DiscussResult struct {
	SessionID        string         `json:"session_id" jsonschema_description:"Archive id of the finished session"`
	ConsensusReached bool           `json:"consensus_reached" jsonschema_description:"Whether the council converged"`
	FinalConsensus   *string        `json:"final_consensus" jsonschema_description:"Agreed position, or the last proposal when no consensus was reached"`
	Rounds           int            `json:"rounds" jsonschema_description:"Number of rounds held"`
	Transcript       string         `json:"transcript" jsonschema_description:"Markdown transcript of the deliberation"`
	Record           session.Record `json:"record"`
}

// Server exposes the council over the Model Context Protocol.
type Server struct {
	council   Council
	providers Providers
	cfg       *config.Config
	logger    zerolog.Logger
	mcpServer *server.MCPServer
}

// NewServer registers every tool. providers and cfg may be nil.
func NewServer(council Council, providers Providers, cfg *config.Config, logger zerolog.Logger) *Server {
	s := &Server{
		council:   council,
		providers: providers,
		cfg:       cfg,
		logger:    logger.With().Str("component", "mcp").Logger(),
		mcpServer: server.NewMCPServer("z-council", Version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, used by tests and alternative transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	discussTool := mcp.NewTool("council_discuss",
		mcp.WithDescription("Run a multi-persona council deliberation on a topic and return the consensus."),
		mcp.WithString("topic", mcp.Required(), mcp.Description("What the council discusses")),
		mcp.WithString("objective", mcp.Description("What the council must decide")),
		mcp.WithString("context", mcp.Description("Background shown to every persona in round 1")),
		mcp.WithString("personas", mcp.Description("Comma-separated persona names from personas_list")),
		mcp.WithBoolean("generate", mcp.Description("Generate topic-specific personas instead of using the catalogue")),
		mcp.WithNumber("count", mcp.Description("Number of personas to use or generate")),
		mcp.WithString("consensus_type", mcp.Description("unanimous, supermajority, majority or plurality")),
		mcp.WithNumber("max_rounds", mcp.Description("Upper bound on discussion rounds")),
		mcp.WithOutputSchema[DiscussResult](),
	)
	s.mcpServer.AddTool(discussTool, mcp.NewStructuredToolHandler(s.handleDiscuss))

	s.mcpServer.AddTool(mcp.NewTool("personas_list",
		mcp.WithDescription("List the personas available to the council."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.council.Personas())
	})

	s.mcpServer.AddTool(mcp.NewTool("personas_generate",
		mcp.WithDescription("Design a panel of personas for a topic."),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Topic the panel will discuss")),
		mcp.WithNumber("count", mcp.Description("Panel size, clamped to 2-10")),
	), s.handleGenerate)

	s.mcpServer.AddTool(mcp.NewTool("providers_list",
		mcp.WithDescription("List configured model providers."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if s.providers == nil {
			return mcp.NewToolResultError("no provider registry configured"), nil
		}
		return jsonResult(map[string]any{"providers": s.providers.Names()})
	})

	s.mcpServer.AddTool(mcp.NewTool("config_get",
		mcp.WithDescription("Show the effective configuration with secrets redacted."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if s.cfg == nil {
			return mcp.NewToolResultError("configuration not loaded"), nil
		}
		return jsonResult(s.cfg.Redacted())
	})

	s.mcpServer.AddTool(mcp.NewTool("config_validate",
		mcp.WithDescription("Validate the configuration and test every provider connection."),
	), s.handleValidate)
}

func (s *Server) handleDiscuss(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (DiscussResult, error) {
	req := councilsvc.DiscussRequest{
		Topic:          stringArg(args, "topic"),
		Objective:      stringArg(args, "objective"),
		InitialContext: stringArg(args, "context"),
		ConsensusType:  stringArg(args, "consensus_type"),
		Count:          intArg(args, "count"),
		MaxRounds:      intArg(args, "max_rounds"),
	}
	if generate, ok := args["generate"].(bool); ok {
		req.Generate = generate
	}
	for _, name := range strings.Split(stringArg(args, "personas"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			req.PersonaNames = append(req.PersonaNames, name)
		}
	}

	rec, err := s.council.Discuss(ctx, req, councilsvc.Hooks{})
	if err != nil && rec.ID == "" {
		return DiscussResult{}, fmt.Errorf("discussion failed: %w", err)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", rec.ID).Msg("[mcp] session not archived")
	}
	return DiscussResult{
		SessionID:        rec.ID,
		ConsensusReached: rec.Session.ConsensusReached,
		FinalConsensus:   rec.Session.FinalConsensus,
		Rounds:           len(rec.Session.Rounds),
		Transcript:       session.ExportMarkdown(rec),
		Record:           rec,
	}, nil
}

func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic := strings.TrimSpace(request.GetString("topic", ""))
	if topic == "" {
		return mcp.NewToolResultError("topic is required"), nil
	}
	count := request.GetInt("count", 5)
	personas, generated := s.council.GeneratePersonas(ctx, topic, count)
	return jsonResult(map[string]any{"personas": personas, "generated": generated})
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := map[string]any{}
	problems := []string{}
	if s.cfg != nil {
		problems = append(problems, s.cfg.Validate()...)
	}
	if s.providers != nil {
		connections := map[string]string{}
		for name, err := range s.providers.Validate(ctx) {
			if err != nil {
				connections[name] = err.Error()
				problems = append(problems, fmt.Sprintf("provider %s: %v", name, err))
				continue
			}
			connections[name] = "ok"
		}
		report["connections"] = connections
	}
	report["valid"] = len(problems) == 0
	report["problems"] = problems
	return jsonResult(report)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("council://personas", "Persona catalogue",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.council.Personas())
		if err != nil {
			return nil, fmt.Errorf("marshal personas: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "council://personas",
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

// intArg accepts JSON numbers, which decode as float64.
func intArg(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
