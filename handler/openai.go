package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/kcolemangt/llm-gateway/auth"
	"github.com/kcolemangt/llm-gateway/filter"
	"github.com/kcolemangt/llm-gateway/model"
	"github.com/kcolemangt/llm-gateway/proxy"
	"github.com/kcolemangt/llm-gateway/utils"
	"go.uber.org/zap"
)

const openAIOrgHeader = "OpenAI-Organization"

// serveOpenAI proxies OpenAI and Azure OpenAI requests. Azure is detected by a
// deployments path and authenticates with an api-key header.
func (g *Gateway) serveOpenAI(w http.ResponseWriter, r *http.Request, subpath string) {
	if r.Method == http.MethodOptions {
		writePreflight(w)
		return
	}

	result := g.auth.Authenticate(r, model.ProviderGPT)
	if result.Error {
		writeJSON(w, http.StatusUnauthorized, result)
		return
	}

	isAzure := strings.Contains(r.URL.Path, "azure/deployments")
	name := "OpenAI"
	if isAzure {
		name = "Azure"
	}

	headerName, authValue := g.openAIAuth(r, result, isAzure)

	opts := proxy.BuildFetchURLOptions{
		BaseURL:           orDefault(g.cfg.BaseURL, model.OpenAIBaseURL),
		RequestPath:       subpath,
		UseGatewayRewrite: true,
	}
	if isAzure {
		base := proxy.NormalizeBaseURL(orDefault(g.cfg.AzureURL, model.OpenAIBaseURL))
		base, _, _ = strings.Cut(base, "/deployments")
		opts.BaseURL = base
		opts.RequestPath = g.azureDeploymentPath(subpath)
		opts.QueryString = "api-version=" + url.QueryEscape(orDefault(r.URL.Query().Get("api-version"), g.cfg.AzureAPIVersion))
	}
	fetchURL := proxy.BuildFetchURL(opts)

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Cache-Control", "no-store")
	if authValue != "" {
		header.Set(headerName, authValue)
	}
	orgID := strings.TrimSpace(g.cfg.OpenAIOrgID)
	if orgID != "" {
		header.Set(openAIOrgHeader, orgID)
	}

	var (
		body     []byte
		buffered bool
	)
	// compatible endpoints behind a custom base url use their own model names
	customBase := g.cfg.BaseURL != "" && g.cfg.BaseURL != model.OpenAIBaseURL
	if !customBase {
		var rejected bool
		body, buffered, rejected = g.checkModel(w, r, name, func(modelName string) []string {
			return []string{string(model.ServiceOpenAI), string(model.ServiceAzure), modelName}
		})
		if rejected {
			return
		}
	}

	g.forward(w, r, name, fetchURL, body, buffered, header, g.client, func(h http.Header) {
		if orgID == "" {
			h.Del(openAIOrgHeader)
			return
		}
		g.logger.Debug("Upstream organization", zap.String("org", h.Get(openAIOrgHeader)))
	})
}

// openAIAuth picks the upstream credential. An access code is never forwarded: the
// server key replaces it, or the header is dropped when none is configured.
func (g *Gateway) openAIAuth(r *http.Request, result model.AuthResult, isAzure bool) (headerName, value string) {
	wrap := func(key string) string {
		if isAzure {
			return key
		}
		return "Bearer " + key
	}

	headerName = "Authorization"
	value = r.Header.Get("Authorization")
	if isAzure {
		headerName = "api-key"
		value = utils.StripBearer(value)
	}

	switch {
	case r.Header.Get(auth.UserAPIKeyHeader) != "":
		value = wrap(r.Header.Get(auth.UserAPIKeyHeader))
	case result.SystemAPIKey != "":
		value = wrap(result.SystemAPIKey)
	case g.auth.IsAccessCode(utils.StripBearer(value)):
		fallback := g.cfg.APIKey
		if isAzure {
			fallback = g.cfg.AzureAPIKey
		}
		if fallback == "" {
			g.logger.Warn("Dropping access code credential, no server key configured", zap.Bool("azure", isAzure))
			return headerName, ""
		}
		value = wrap(fallback)
	}
	return headerName, value
}

// azureDeploymentPath substitutes the deployment id from AZURE_URL for a model alias
// declared as name@azure without a display name.
func (g *Gateway) azureDeploymentPath(subpath string) string {
	if g.cfg.CustomModels == "" || g.cfg.AzureURL == "" {
		return subpath
	}
	parts := strings.Split(subpath, "/")
	if len(parts) < 2 || parts[1] == "" {
		return subpath
	}
	modelName := parts[1]

	_, deployID, found := strings.Cut(g.cfg.AzureURL, "deployments/")
	deployID = strings.Trim(deployID, "/")
	if !found || deployID == "" {
		return subpath
	}

	for _, rule := range filter.ParseRules(g.cfg.CustomModels) {
		if rule.All || !rule.Enable || rule.Provider != strings.ToLower(string(model.ServiceAzure)) || rule.Display != "" {
			continue
		}
		if strings.Contains(rule.Name, modelName) {
			g.logger.Info("Replacing model with azure deployment id",
				zap.String("model", modelName),
				zap.String("deployment", deployID))
			return strings.ReplaceAll(subpath, modelName, deployID)
		}
	}
	return subpath
}
