package model

import "time"

// ModelProvider selects which system-held credential a request may use.
type ModelProvider string

const (
	ProviderGPT         ModelProvider = "GPT"
	ProviderStability   ModelProvider = "Stability"
	ProviderGeminiPro   ModelProvider = "GeminiPro"
	ProviderClaude      ModelProvider = "Claude"
	ProviderErnie       ModelProvider = "Ernie"
	ProviderDoubao      ModelProvider = "Doubao"
	ProviderQwen        ModelProvider = "Qwen"
	ProviderMoonshot    ModelProvider = "Moonshot"
	ProviderIflytek     ModelProvider = "Iflytek"
	ProviderXAI         ModelProvider = "XAI"
	ProviderChatGLM     ModelProvider = "ChatGLM"
	ProviderDeepSeek    ModelProvider = "DeepSeek"
	ProviderSiliconFlow ModelProvider = "SiliconFlow"
	Provider302AI       ModelProvider = "302.AI"
)

// ServiceProvider names an upstream vendor for model filtering.
type ServiceProvider string

const (
	ServiceOpenAI      ServiceProvider = "OpenAI"
	ServiceAzure       ServiceProvider = "Azure"
	ServiceGoogle      ServiceProvider = "Google"
	ServiceAnthropic   ServiceProvider = "Anthropic"
	ServiceBaidu       ServiceProvider = "Baidu"
	ServiceByteDance   ServiceProvider = "ByteDance"
	ServiceAlibaba     ServiceProvider = "Alibaba"
	ServiceMoonshot    ServiceProvider = "Moonshot"
	ServiceStability   ServiceProvider = "Stability"
	ServiceIflytek     ServiceProvider = "Iflytek"
	ServiceXAI         ServiceProvider = "XAI"
	ServiceChatGLM     ServiceProvider = "ChatGLM"
	ServiceDeepSeek    ServiceProvider = "DeepSeek"
	ServiceSiliconFlow ServiceProvider = "SiliconFlow"
	Service302AI       ServiceProvider = "302.AI"
)

// Default upstream origins used when no URL is configured for a vendor.
const (
	OpenAIBaseURL      = "https://api.openai.com"
	AnthropicBaseURL   = "https://api.anthropic.com"
	GeminiBaseURL      = "https://generativelanguage.googleapis.com"
	BaiduBaseURL       = "https://aip.baidubce.com"
	ByteDanceBaseURL   = "https://ark.cn-beijing.volces.com"
	AlibabaBaseURL     = "https://dashscope.aliyuncs.com/api/"
	MoonshotBaseURL    = "https://api.moonshot.ai"
	IflytekBaseURL     = "https://spark-api-open.xf-yun.com"
	DeepSeekBaseURL    = "https://api.deepseek.com"
	XAIBaseURL         = "https://api.x.ai"
	ChatGLMBaseURL     = "https://open.bigmodel.cn"
	SiliconFlowBaseURL = "https://api.siliconflow.cn"
	AI302BaseURL       = "https://api.302.ai"
	StabilityBaseURL   = "https://api.stability.ai"

	DefaultAnthropicVersion = "2023-06-01"
	DefaultAccessCodePrefix = "ak-"
	// LegacyAccessCodePrefix is reserved as well; tokens carrying it are never forwarded.
	LegacyAccessCodePrefix = "nk-"
)

// ServerConfig is the process-wide configuration. It is built once by config.Load
// and must not be modified afterwards.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
	LogLevel   string `toml:"log_level"`

	APIKey      string `toml:"api_key"`
	BaseURL     string `toml:"base_url"`
	OpenAIOrgID string `toml:"openai_org_id"`

	// Codes holds md5 hex digests of the accepted access codes.
	Codes            map[string]struct{} `toml:"-"`
	NeedCode         bool                `toml:"-"`
	AccessCodePrefix string              `toml:"access_code_prefix"`
	HideUserAPIKey   bool                `toml:"hide_user_api_key"`
	CustomModels     string              `toml:"custom_models"`

	AzureURL        string `toml:"azure_url"`
	AzureAPIKey     string `toml:"azure_api_key"`
	AzureAPIVersion string `toml:"azure_api_version"`

	GoogleURL    string `toml:"google_url"`
	GoogleAPIKey string `toml:"google_api_key"`

	AnthropicURL        string `toml:"anthropic_url"`
	AnthropicAPIKey     string `toml:"anthropic_api_key"`
	AnthropicAPIVersion string `toml:"anthropic_api_version"`

	BaiduURL       string `toml:"baidu_url"`
	BaiduAPIKey    string `toml:"baidu_api_key"`
	BaiduSecretKey string `toml:"baidu_secret_key"`

	ByteDanceURL    string `toml:"bytedance_url"`
	ByteDanceAPIKey string `toml:"bytedance_api_key"`

	AlibabaURL    string `toml:"alibaba_url"`
	AlibabaAPIKey string `toml:"alibaba_api_key"`

	MoonshotURL    string `toml:"moonshot_url"`
	MoonshotAPIKey string `toml:"moonshot_api_key"`

	IflytekURL       string `toml:"iflytek_url"`
	IflytekAPIKey    string `toml:"iflytek_api_key"`
	IflytekAPISecret string `toml:"iflytek_api_secret"`

	DeepSeekURL    string `toml:"deepseek_url"`
	DeepSeekAPIKey string `toml:"deepseek_api_key"`

	XAIURL    string `toml:"xai_url"`
	XAIAPIKey string `toml:"xai_api_key"`

	ChatGLMURL    string `toml:"chatglm_url"`
	ChatGLMAPIKey string `toml:"chatglm_api_key"`

	SiliconFlowURL    string `toml:"siliconflow_url"`
	SiliconFlowAPIKey string `toml:"siliconflow_api_key"`

	StabilityURL    string `toml:"stability_url"`
	StabilityAPIKey string `toml:"stability_api_key"`

	AI302URL    string `toml:"ai302_url"`
	AI302APIKey string `toml:"ai302_api_key"`

	Gateway GatewayConfig `toml:"gateway"`
	TLS     TLSConfig     `toml:"tls"`
}

// GatewayConfig holds transport tunables.
type GatewayConfig struct {
	UpstreamTimeout Duration    `toml:"upstream_timeout"`
	Retry           RetryConfig `toml:"retry"`
	ModelInfoURL    string      `toml:"model_info_url"`
	ModelInfoTTL    Duration    `toml:"model_info_ttl"`
}

// RetryConfig mirrors proxy.RetryOptions in file form.
type RetryConfig struct {
	MaxAttempts       int      `toml:"max_attempts"`
	BaseDelay         Duration `toml:"base_delay"`
	MaxDelay          Duration `toml:"max_delay"`
	RetryableStatuses []int    `toml:"retryable_statuses"`
}

// TLSConfig enables ACME certificates for a public domain.
type TLSConfig struct {
	Enabled  bool   `toml:"enabled"`
	Domain   string `toml:"domain"`
	Email    string `toml:"email"`
	CacheDir string `toml:"cache_dir"`
}

// Duration decodes "30s"-style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// AuthResult is produced once per request by the credential resolver.
// SystemAPIKey is set only when the server, not the caller, supplies the credential.
type AuthResult struct {
	Error        bool   `json:"error"`
	Msg          string `json:"msg,omitempty"`
	SystemAPIKey string `json:"-"`
}

// ModelInfo is the per-model metadata served by /api/model-info.
type ModelInfo struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	ContextLength int          `json:"context_length"`
	MaxOutput     *int         `json:"max_output"`
	Pricing       ModelPricing `json:"pricing"`
}

// ModelPricing values are cost per token as published upstream.
type ModelPricing struct {
	Input     float64  `json:"input"`
	Output    float64  `json:"output"`
	CacheRead *float64 `json:"cache_read"`
}
