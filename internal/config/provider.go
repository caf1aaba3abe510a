package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// DefaultTimeout bounds a single completion when a provider does not set its own.
const DefaultTimeout = 120 * time.Second

// ProviderSettings 描述一个大模型提供方的连接与采样参数。
// Zero values mean "inherit" when settings are merged.
type ProviderSettings struct {
	Model          string   `yaml:"model,omitempty" json:"model,omitempty"`
	BaseURL        string   `yaml:"api_base,omitempty" json:"api_base,omitempty"`
	APIKey         string   `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	AccessKey      string   `yaml:"access_key,omitempty" json:"access_key,omitempty"`
	SecretKey      string   `yaml:"secret_key,omitempty" json:"secret_key,omitempty"`
	Region         string   `yaml:"region,omitempty" json:"region,omitempty"`
	Temperature    *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	TopP           *float64 `yaml:"top_p,omitempty" json:"top_p,omitempty"`
	MaxTokens      *int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	TimeoutSeconds *int     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Enabled 表示是否提供了必需的模型与凭证。
func (s ProviderSettings) Enabled() bool {
	return s.Model != "" && (s.APIKey != "" || (s.AccessKey != "" && s.SecretKey != ""))
}

// IsZero reports whether no field is set.
func (s ProviderSettings) IsZero() bool {
	return s.Model == "" && s.BaseURL == "" && s.APIKey == "" && s.AccessKey == "" &&
		s.SecretKey == "" && s.Region == "" && s.Temperature == nil && s.TopP == nil &&
		s.MaxTokens == nil && s.TimeoutSeconds == nil
}

// MergeWith returns s overridden by every non-zero field of other.
func (s ProviderSettings) MergeWith(other ProviderSettings) ProviderSettings {
	merged := s
	if other.Model != "" {
		merged.Model = other.Model
	}
	if other.BaseURL != "" {
		merged.BaseURL = other.BaseURL
	}
	if other.APIKey != "" {
		merged.APIKey = other.APIKey
	}
	if other.AccessKey != "" {
		merged.AccessKey = other.AccessKey
	}
	if other.SecretKey != "" {
		merged.SecretKey = other.SecretKey
	}
	if other.Region != "" {
		merged.Region = other.Region
	}
	if other.Temperature != nil {
		merged.Temperature = other.Temperature
	}
	if other.TopP != nil {
		merged.TopP = other.TopP
	}
	if other.MaxTokens != nil {
		merged.MaxTokens = other.MaxTokens
	}
	if other.TimeoutSeconds != nil {
		merged.TimeoutSeconds = other.TimeoutSeconds
	}
	return merged
}

// Expand resolves ${VAR} references in the credential and endpoint fields.
func (s ProviderSettings) Expand() ProviderSettings {
	expanded := s
	expanded.Model = os.ExpandEnv(s.Model)
	expanded.BaseURL = os.ExpandEnv(s.BaseURL)
	expanded.APIKey = os.ExpandEnv(s.APIKey)
	expanded.AccessKey = os.ExpandEnv(s.AccessKey)
	expanded.SecretKey = os.ExpandEnv(s.SecretKey)
	return expanded
}

// Redacted hides secrets so settings can be printed or returned over the API.
func (s ProviderSettings) Redacted() ProviderSettings {
	redacted := s
	redacted.APIKey = redact(s.APIKey)
	redacted.AccessKey = redact(s.AccessKey)
	redacted.SecretKey = redact(s.SecretKey)
	return redacted
}

// Timeout returns the per-completion timeout.
func (s ProviderSettings) Timeout() time.Duration {
	if s.TimeoutSeconds == nil || *s.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(*s.TimeoutSeconds) * time.Second
}

// NewChatModel 使用配置创建一个模型实例。
func (s ProviderSettings) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	expanded := s.Expand()
	if !expanded.Enabled() {
		return nil, fmt.Errorf("provider credentials or model missing: need api key + model, or access/secret key pair")
	}

	var temperature *float32
	if expanded.Temperature != nil {
		val := float32(*expanded.Temperature)
		temperature = &val
	}

	var topP *float32
	if expanded.TopP != nil {
		val := float32(*expanded.TopP)
		topP = &val
	}

	var maxTokens *int
	if expanded.MaxTokens != nil {
		val := *expanded.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     expanded.BaseURL,
		Region:      expanded.Region,
		APIKey:      expanded.APIKey,
		AccessKey:   expanded.AccessKey,
		SecretKey:   expanded.SecretKey,
		Model:       expanded.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	if strings.HasPrefix(secret, "${") {
		return secret
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}

var presets = map[string]ProviderSettings{
	"ark": {
		BaseURL: "https://ark.cn-beijing.volces.com/api/v3",
		Region:  "cn-beijing",
		APIKey:  "${ARK_API_KEY}",
	},
	"lmstudio": {
		Model:   "qwen/qwen3-coder-30b",
		BaseURL: "http://localhost:1234/v1",
		APIKey:  "lm-studio",
	},
	"openai": {
		Model:   "gpt-4o",
		BaseURL: "https://api.openai.com/v1",
		APIKey:  "${OPENAI_API_KEY}",
	},
	"openai-mini": {
		Model:   "gpt-4o-mini",
		BaseURL: "https://api.openai.com/v1",
		APIKey:  "${OPENAI_API_KEY}",
	},
}

// Preset returns the named provider preset.
func Preset(name string) (ProviderSettings, error) {
	preset, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return ProviderSettings{}, fmt.Errorf("unknown preset %q (want one of %s)", name, strings.Join(PresetNames(), ", "))
	}
	return preset, nil
}

// PresetNames lists presets in a stable order.
func PresetNames() []string {
	return []string{"ark", "lmstudio", "openai", "openai-mini"}
}
