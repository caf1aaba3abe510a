package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-council/backend/internal/config"
	"github.com/zhouzirui/z-council/backend/internal/metrics"
)

// ErrNilCompletion is returned when the model produced no message at all.
var ErrNilCompletion = errors.New("model returned no message")

// Completer is the completion capability consumed by the council engine.
type Completer interface {
	// Complete sends one isolated system+user exchange and returns the reply text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// TestConnection reports whether the provider answers a trivial prompt.
	TestConnection(ctx context.Context) bool
}

// Client 基于 eino chain 封装一次性的大模型调用。
type Client struct {
	name    string
	chain   compose.Runnable[map[string]any, *schema.Message]
	timeout time.Duration
	logger  zerolog.Logger
}

// NewClient compiles a system/user prompt chain in front of chatModel.
func NewClient(ctx context.Context, name string, chatModel model.BaseChatModel, timeout time.Duration, logger zerolog.Logger) (*Client, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("provider %s: chat model is nil", name)
	}
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile completion chain: %w", err)
	}

	return &Client{
		name:    name,
		chain:   runnable,
		timeout: timeout,
		logger:  logger.With().Str("provider", name).Logger(),
	}, nil
}

// NewClientFromSettings creates the ark chat model described by settings and wraps it.
func NewClientFromSettings(ctx context.Context, name string, settings config.ProviderSettings, logger zerolog.Logger) (*Client, error) {
	chatModel, err := settings.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model for %s: %w", name, err)
	}
	return NewClient(ctx, name, chatModel, settings.Timeout(), logger)
}

// Name identifies the provider in logs and metrics.
func (c *Client) Name() string {
	return c.name
}

// Complete implements Completer. The per-call timeout is enforced here, not by the engine.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	msg, err := c.chain.Invoke(callCtx, map[string]any{
		"system": systemPrompt,
		"query":  userPrompt,
	})
	metrics.CompletionDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())

	if err == nil && msg == nil {
		err = ErrNilCompletion
	}
	if err != nil {
		metrics.CompletionsTotal.WithLabelValues(c.name, "error").Inc()
		c.logger.Warn().Err(err).Dur("latency", time.Since(start)).Msg("completion failed")
		return "", fmt.Errorf("provider %s: %w", c.name, err)
	}

	metrics.CompletionsTotal.WithLabelValues(c.name, "ok").Inc()
	c.logger.Debug().
		Int("length", len(msg.Content)).
		Dur("latency", time.Since(start)).
		Msg("completion finished")
	return strings.TrimSpace(msg.Content), nil
}

// TestConnection implements Completer.
func (c *Client) TestConnection(ctx context.Context) bool {
	return Ping(ctx, c)
}

// Ping asks a completer for a fixed token and checks the answer.
func Ping(ctx context.Context, c Completer) bool {
	reply, err := c.Complete(ctx, "You are a connectivity check.", "Respond with only the word 'OK'")
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToUpper(reply), "OK")
}
