package handler

import (
	"net/http"
	"sort"

	"github.com/kcolemangt/llm-gateway/model"
)

// ProviderConfig describes an upstream that speaks the common OpenAI-like shape and
// can be served by the generic handler.
type ProviderConfig struct {
	// Name is used in logs.
	Name            string
	ModelProvider   model.ModelProvider
	PathPrefix      string
	ServiceProvider model.ServiceProvider
	// BaseURL returns the configured or default upstream origin.
	BaseURL func(cfg *model.ServerConfig) string
	// AllowedPaths, when set, restricts the subpaths that may be requested.
	AllowedPaths      map[string]bool
	UseGatewayRewrite bool
	// AuthHeaderName defaults to Authorization.
	AuthHeaderName string
	// RawAuth sends the key without the "Bearer " prefix.
	RawAuth bool
	// ExtraHeaders are computed per request and set last.
	ExtraHeaders func(r *http.Request, cfg *model.ServerConfig) map[string]string
}

func (pc ProviderConfig) authHeaderName() string {
	if pc.AuthHeaderName == "" {
		return "Authorization"
	}
	return pc.AuthHeaderName
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// Path prefixes of the bespoke handlers.
const (
	PathOpenAI    = "/api/openai"
	PathAzure     = "/api/azure"
	PathGoogle    = "/api/google"
	PathBaidu     = "/api/baidu"
	PathStability = "/api/stability"
)

// Anthropic chat subpaths; nothing else may be requested through /api/anthropic.
const (
	AnthropicChatPath       = "v1/messages"
	AnthropicLegacyChatPath = "v1/complete"
)

// DefaultProviders returns the registry of providers handled generically, keyed by
// path prefix.
func DefaultProviders() map[string]ProviderConfig {
	list := []ProviderConfig{
		{
			Name:            "DeepSeek",
			ModelProvider:   model.ProviderDeepSeek,
			PathPrefix:      "/api/deepseek",
			ServiceProvider: model.ServiceDeepSeek,
			BaseURL:         func(c *model.ServerConfig) string { return orDefault(c.DeepSeekURL, model.DeepSeekBaseURL) },
		},
		{
			Name:            "ByteDance",
			ModelProvider:   model.ProviderDoubao,
			PathPrefix:      "/api/bytedance",
			ServiceProvider: model.ServiceByteDance,
			BaseURL:         func(c *model.ServerConfig) string { return orDefault(c.ByteDanceURL, model.ByteDanceBaseURL) },
		},
		{
			Name:            "Alibaba",
			ModelProvider:   model.ProviderQwen,
			PathPrefix:      "/api/alibaba",
			ServiceProvider: model.ServiceAlibaba,
			BaseURL:         func(c *model.ServerConfig) string { return orDefault(c.AlibabaURL, model.AlibabaBaseURL) },
			ExtraHeaders: func(r *http.Request, _ *model.ServerConfig) map[string]string {
				return map[string]string{"X-DashScope-SSE": orDefault(r.Header.Get("X-DashScope-SSE"), "disable")}
			},
		},
		{
			Name:            "Moonshot",
			ModelProvider:   model.ProviderMoonshot,
			PathPrefix:      "/api/moonshot",
			ServiceProvider: model.ServiceMoonshot,
			BaseURL:         func(c *model.ServerConfig) string { return orDefault(c.MoonshotURL, model.MoonshotBaseURL) },
		},
		{
			Name:            "Iflytek",
			ModelProvider:   model.ProviderIflytek,
			PathPrefix:      "/api/iflytek",
			ServiceProvider: model.ServiceIflytek,
			BaseURL:         func(c *model.ServerConfig) string { return orDefault(c.IflytekURL, model.IflytekBaseURL) },
		},
		{
			Name:            "XAI",
			ModelProvider:   model.ProviderXAI,
			PathPrefix:      "/api/xai",
			ServiceProvider: model.ServiceXAI,
			BaseURL:         func(c *model.ServerConfig) string { return orDefault(c.XAIURL, model.XAIBaseURL) },
		},
		{
			Name:            "ChatGLM",
			ModelProvider:   model.ProviderChatGLM,
			PathPrefix:      "/api/chatglm",
			ServiceProvider: model.ServiceChatGLM,
			BaseURL:         func(c *model.ServerConfig) string { return orDefault(c.ChatGLMURL, model.ChatGLMBaseURL) },
		},
		{
			Name:            "SiliconFlow",
			ModelProvider:   model.ProviderSiliconFlow,
			PathPrefix:      "/api/siliconflow",
			ServiceProvider: model.ServiceSiliconFlow,
			BaseURL:         func(c *model.ServerConfig) string { return orDefault(c.SiliconFlowURL, model.SiliconFlowBaseURL) },
		},
		{
			Name:            "302.AI",
			ModelProvider:   model.Provider302AI,
			PathPrefix:      "/api/302ai",
			ServiceProvider: model.Service302AI,
			BaseURL:         func(c *model.ServerConfig) string { return orDefault(c.AI302URL, model.AI302BaseURL) },
		},
		{
			Name:            "Anthropic",
			ModelProvider:   model.ProviderClaude,
			PathPrefix:      "/api/anthropic",
			ServiceProvider: model.ServiceAnthropic,
			BaseURL: func(c *model.ServerConfig) string {
				return orDefault(c.AnthropicURL, orDefault(c.BaseURL, model.AnthropicBaseURL))
			},
			AllowedPaths:      map[string]bool{AnthropicChatPath: true, AnthropicLegacyChatPath: true},
			UseGatewayRewrite: true,
			AuthHeaderName:    "x-api-key",
			RawAuth:           true,
			ExtraHeaders: func(r *http.Request, c *model.ServerConfig) map[string]string {
				version := orDefault(r.Header.Get("anthropic-version"), orDefault(c.AnthropicAPIVersion, model.DefaultAnthropicVersion))
				return map[string]string{
					"Cache-Control": "no-store",
					"anthropic-dangerous-direct-browser-access": "true",
					"anthropic-version":                         version,
				}
			},
		},
	}

	out := make(map[string]ProviderConfig, len(list))
	for _, pc := range list {
		out[pc.PathPrefix] = pc
	}
	return out
}

// SortedProviders returns the registry ordered by path prefix.
func SortedProviders() []ProviderConfig {
	providers := DefaultProviders()
	out := make([]ProviderConfig, 0, len(providers))
	for _, pc := range providers {
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PathPrefix < out[j].PathPrefix })
	return out
}
