package auth

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/kcolemangt/llm-gateway/logging"
	"github.com/kcolemangt/llm-gateway/model"
	"github.com/kcolemangt/llm-gateway/utils"
	"go.uber.org/zap"
)

// Rejection messages returned in AuthResult.Msg.
const (
	MsgEmptyAccessCode   = "empty access code"
	MsgWrongAccessCode   = "wrong access code"
	MsgUserKeyNotAllowed = "you are not allowed to access with your own api key"
	MsgNoServerKey       = "Server API key not configured. Please contact the administrator or provide your own API key."
)

// UserAPIKeyHeader carries a caller-supplied vendor key. It always wins.
const UserAPIKeyHeader = "X-User-Api-Key"

// Resolver decides whether a request is authorized and which credential the server
// should attach upstream.
type Resolver struct {
	cfg    *model.ServerConfig
	logger *zap.Logger
}

// NewResolver returns a Resolver over an immutable config.
func NewResolver(cfg *model.ServerConfig, logger *zap.Logger) *Resolver {
	return &Resolver{cfg: cfg, logger: logger}
}

// HashCode returns the md5 hex digest used for access-code membership checks.
func HashCode(code string) string {
	sum := md5.Sum([]byte(code))
	return hex.EncodeToString(sum[:])
}

// AccessCodePrefix is the configured prefix that marks a bearer token as an access code.
func (r *Resolver) AccessCodePrefix() string {
	if r.cfg.AccessCodePrefix != "" {
		return r.cfg.AccessCodePrefix
	}
	return model.DefaultAccessCodePrefix
}

// IsAccessCode reports whether a raw token carries one of the reserved prefixes.
func (r *Resolver) IsAccessCode(token string) bool {
	return strings.HasPrefix(token, r.AccessCodePrefix()) || strings.HasPrefix(token, model.LegacyAccessCodePrefix)
}

// ParseAPIKey splits an Authorization value into an access code or an API key.
func (r *Resolver) ParseAPIKey(authorization string) (accessCode, apiKey string) {
	token := utils.StripBearer(authorization)
	prefix := r.AccessCodePrefix()
	if strings.HasPrefix(token, prefix) {
		return token[len(prefix):], ""
	}
	return "", token
}

// Authenticate evaluates the request once and returns the outcome.
func (r *Resolver) Authenticate(req *http.Request, provider model.ModelProvider) model.AuthResult {
	accessCode, apiKey := r.ParseAPIKey(req.Header.Get("Authorization"))
	hashed := HashCode(accessCode)

	r.logger.Debug("Authenticating request",
		zap.Int("codeCount", len(r.cfg.Codes)),
		zap.Bool("hasAccessCode", accessCode != ""),
		zap.String("clientIP", utils.ClientIP(req)))

	if _, known := r.cfg.Codes[hashed]; r.cfg.NeedCode && !known && apiKey == "" {
		msg := MsgWrongAccessCode
		if accessCode == "" {
			msg = MsgEmptyAccessCode
		}
		r.logger.Info("Access code rejected", zap.String("reason", msg))
		return model.AuthResult{Error: true, Msg: msg}
	}

	if r.cfg.HideUserAPIKey && apiKey != "" {
		r.logger.Info("User api key rejected by configuration")
		return model.AuthResult{Error: true, Msg: MsgUserKeyNotAllowed}
	}

	if apiKey != "" {
		r.logger.Info("Using user-provided api key")
		return model.AuthResult{}
	}

	systemKey := r.SystemKey(provider, req.URL.Path)
	if systemKey == "" && r.cfg.BaseURL != "" {
		r.logger.Info("Provider key not set, falling back to default api key (unified proxy mode)",
			zap.String("provider", string(provider)))
		systemKey = r.cfg.APIKey
	}
	if systemKey == "" {
		r.logger.Warn("No api key available for provider", zap.String("provider", string(provider)))
		return model.AuthResult{Error: true, Msg: MsgNoServerKey}
	}

	r.logger.Info("Using system api key", logging.KeyInfo("systemKey", systemKey))
	return model.AuthResult{SystemAPIKey: systemKey}
}

// SystemKey returns the server-held key for provider. path is used to tell Azure
// deployments apart from plain OpenAI calls.
func (r *Resolver) SystemKey(provider model.ModelProvider, path string) string {
	c := r.cfg
	switch provider {
	case model.ProviderStability:
		return c.StabilityAPIKey
	case model.ProviderGeminiPro:
		return c.GoogleAPIKey
	case model.ProviderClaude:
		return c.AnthropicAPIKey
	case model.ProviderDoubao:
		return c.ByteDanceAPIKey
	case model.ProviderErnie:
		return c.BaiduAPIKey
	case model.ProviderQwen:
		return c.AlibabaAPIKey
	case model.ProviderMoonshot:
		return c.MoonshotAPIKey
	case model.ProviderIflytek:
		if c.IflytekAPIKey == "" && c.IflytekAPISecret == "" {
			return ""
		}
		return c.IflytekAPIKey + ":" + c.IflytekAPISecret
	case model.ProviderDeepSeek:
		return c.DeepSeekAPIKey
	case model.ProviderXAI:
		return c.XAIAPIKey
	case model.ProviderChatGLM:
		return c.ChatGLMAPIKey
	case model.ProviderSiliconFlow:
		return c.SiliconFlowAPIKey
	case model.Provider302AI:
		return c.AI302APIKey
	default:
		if strings.Contains(path, "azure/deployments") {
			return c.AzureAPIKey
		}
		return c.APIKey
	}
}

// HeaderOptions shape the upstream credential header.
type HeaderOptions struct {
	// HeaderName is consulted before Authorization for the passthrough value.
	HeaderName string
	// Bearer prefixes resolved keys with "Bearer ".
	Bearer bool
}

// ResolveAuthHeaderValue picks the literal credential value to send upstream:
// the X-User-Api-Key header, then the system key, then the inbound header value
// unless it carries an access code. The result may be empty.
func (r *Resolver) ResolveAuthHeaderValue(req *http.Request, result model.AuthResult, opts HeaderOptions) string {
	wrap := func(key string) string {
		if opts.Bearer {
			return "Bearer " + key
		}
		return key
	}

	if userKey := req.Header.Get(UserAPIKeyHeader); userKey != "" {
		return wrap(userKey)
	}
	if result.SystemAPIKey != "" {
		return wrap(result.SystemAPIKey)
	}

	name := opts.HeaderName
	if name == "" {
		name = "Authorization"
	}
	original := req.Header.Get(name)
	if original == "" {
		original = req.Header.Get("Authorization")
	}
	raw := strings.TrimSpace(strings.Replace(original, "Bearer ", "", 1))
	if r.IsAccessCode(raw) {
		return ""
	}
	return original
}
