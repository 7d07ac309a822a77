package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kcolemangt/llm-gateway/auth"
	"github.com/kcolemangt/llm-gateway/logging"
	"github.com/kcolemangt/llm-gateway/model"
	"github.com/kcolemangt/llm-gateway/modelinfo"
	"github.com/kcolemangt/llm-gateway/proxy"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrInvalidListenAddr is returned by Validate for an address net.Listen would reject.
var ErrInvalidListenAddr = errors.New("invalid listen address")

const (
	DefaultListenAddr = ":3000"
	DefaultLogLevel   = "info"
	DefaultCertCache  = "certs"
)

// Default returns a config with every tunable set and no vendors configured.
func Default() *model.ServerConfig {
	retry := proxy.DefaultRetryOptions()
	return &model.ServerConfig{
		ListenAddr:       DefaultListenAddr,
		LogLevel:         DefaultLogLevel,
		AccessCodePrefix: model.DefaultAccessCodePrefix,
		Codes:            map[string]struct{}{},
		Gateway: model.GatewayConfig{
			UpstreamTimeout: model.Duration{Duration: proxy.DefaultUpstreamTimeout},
			ModelInfoURL:    modelinfo.DefaultSourceURL,
			ModelInfoTTL:    model.Duration{Duration: modelinfo.DefaultTTL},
			Retry: model.RetryConfig{
				MaxAttempts:       retry.MaxAttempts,
				BaseDelay:         model.Duration{Duration: retry.BaseDelay},
				MaxDelay:          model.Duration{Duration: retry.MaxDelay},
				RetryableStatuses: retry.RetryableStatuses,
			},
		},
		TLS: model.TLSConfig{CacheDir: DefaultCertCache},
	}
}

// Load builds the server config from .env, the process environment and an optional
// TOML file, in increasing precedence. A missing file is not an error.
func Load(path string, logger *zap.Logger) (*model.ServerConfig, error) {
	// existing environment variables take priority over .env values
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found or unable to load it, continuing with system environment variables", zap.Error(err))
	} else {
		logger.Info(".env file loaded successfully")
	}

	cfg := Default()
	applyEnv(cfg)

	if path != "" {
		if err := applyFile(cfg, path, logger); err != nil {
			return nil, err
		}
	}

	for _, code := range strings.Split(env("CODE"), ",") {
		if code = strings.TrimSpace(code); code != "" {
			cfg.Codes[auth.HashCode(code)] = struct{}{}
		}
	}
	cfg.NeedCode = len(cfg.Codes) > 0

	logger.Info("Configuration loaded",
		zap.String("listenAddr", cfg.ListenAddr),
		zap.Bool("needCode", cfg.NeedCode),
		zap.Int("codeCount", len(cfg.Codes)),
		zap.Bool("hideUserApiKey", cfg.HideUserAPIKey),
		zap.String("baseUrl", cfg.BaseURL),
		logging.KeyInfo("apiKey", cfg.APIKey))
	return cfg, nil
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func setEnv(dst *string, name string) {
	if v := env(name); v != "" {
		*dst = v
	}
}

func applyEnv(cfg *model.ServerConfig) {
	setEnv(&cfg.ListenAddr, "LISTEN_ADDR")
	setEnv(&cfg.LogLevel, "LOG_LEVEL")
	setEnv(&cfg.AccessCodePrefix, "ACCESS_CODE_PREFIX")

	setEnv(&cfg.APIKey, "OPENAI_API_KEY")
	setEnv(&cfg.BaseURL, "BASE_URL")
	setEnv(&cfg.OpenAIOrgID, "OPENAI_ORG_ID")
	setEnv(&cfg.CustomModels, "CUSTOM_MODELS")
	cfg.HideUserAPIKey = env("HIDE_USER_API_KEY") != ""

	vendors := []struct {
		dst  *string
		name string
	}{
		{&cfg.AzureURL, "AZURE_URL"},
		{&cfg.AzureAPIKey, "AZURE_API_KEY"},
		{&cfg.AzureAPIVersion, "AZURE_API_VERSION"},
		{&cfg.GoogleURL, "GOOGLE_URL"},
		{&cfg.GoogleAPIKey, "GOOGLE_API_KEY"},
		{&cfg.AnthropicURL, "ANTHROPIC_URL"},
		{&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY"},
		{&cfg.AnthropicAPIVersion, "ANTHROPIC_API_VERSION"},
		{&cfg.BaiduURL, "BAIDU_URL"},
		{&cfg.BaiduAPIKey, "BAIDU_API_KEY"},
		{&cfg.BaiduSecretKey, "BAIDU_SECRET_KEY"},
		{&cfg.ByteDanceURL, "BYTEDANCE_URL"},
		{&cfg.ByteDanceAPIKey, "BYTEDANCE_API_KEY"},
		{&cfg.AlibabaURL, "ALIBABA_URL"},
		{&cfg.AlibabaAPIKey, "ALIBABA_API_KEY"},
		{&cfg.MoonshotURL, "MOONSHOT_URL"},
		{&cfg.MoonshotAPIKey, "MOONSHOT_API_KEY"},
		{&cfg.IflytekURL, "IFLYTEK_URL"},
		{&cfg.IflytekAPIKey, "IFLYTEK_API_KEY"},
		{&cfg.IflytekAPISecret, "IFLYTEK_API_SECRET"},
		{&cfg.DeepSeekURL, "DEEPSEEK_URL"},
		{&cfg.DeepSeekAPIKey, "DEEPSEEK_API_KEY"},
		{&cfg.XAIURL, "XAI_URL"},
		{&cfg.XAIAPIKey, "XAI_API_KEY"},
		{&cfg.ChatGLMURL, "CHATGLM_URL"},
		{&cfg.ChatGLMAPIKey, "CHATGLM_API_KEY"},
		{&cfg.SiliconFlowURL, "SILICONFLOW_URL"},
		{&cfg.SiliconFlowAPIKey, "SILICONFLOW_API_KEY"},
		{&cfg.StabilityURL, "STABILITY_URL"},
		{&cfg.StabilityAPIKey, "STABILITY_API_KEY"},
		{&cfg.AI302URL, "AI302_URL"},
		{&cfg.AI302APIKey, "AI302_API_KEY"},
	}
	for _, v := range vendors {
		setEnv(v.dst, v.name)
	}
}

func applyFile(cfg *model.ServerConfig, path string, logger *zap.Logger) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("Config file not found, using environment only", zap.String("file", path))
		return nil
	}
	if err != nil {
		logger.Error("Failed to read config file", zap.String("file", path), zap.Error(err))
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		logger.Error("Failed to parse config file", zap.String("file", path), zap.Error(err))
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	logger.Info("Config file loaded and parsed", zap.String("file", path))
	return nil
}

// Validate reports the first setting the server cannot start with.
func Validate(cfg *model.ServerConfig) error {
	if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidListenAddr, cfg.ListenAddr, err)
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	g := cfg.Gateway
	durations := map[string]time.Duration{
		"gateway.upstream_timeout": g.UpstreamTimeout.Duration,
		"gateway.model_info_ttl":   g.ModelInfoTTL.Duration,
		"gateway.retry.base_delay": g.Retry.BaseDelay.Duration,
		"gateway.retry.max_delay":  g.Retry.MaxDelay.Duration,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	if g.Retry.MaxAttempts < 0 {
		return fmt.Errorf("gateway.retry.max_attempts must not be negative, got %d", g.Retry.MaxAttempts)
	}
	for _, status := range g.Retry.RetryableStatuses {
		if status < 100 || status > 599 {
			return fmt.Errorf("gateway.retry.retryable_statuses: %d is not an HTTP status", status)
		}
	}

	if cfg.TLS.Enabled && cfg.TLS.Domain == "" {
		return errors.New("tls.enabled requires tls.domain")
	}
	return nil
}
