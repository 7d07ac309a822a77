package handler

import (
	"net/http"

	"github.com/kcolemangt/llm-gateway/auth"
	"github.com/kcolemangt/llm-gateway/proxy"
	"go.uber.org/zap"
)

// serveProvider proxies a request for a registry provider.
func (g *Gateway) serveProvider(pc ProviderConfig, w http.ResponseWriter, r *http.Request, subpath string) {
	if r.Method == http.MethodOptions {
		writePreflight(w)
		return
	}

	if pc.AllowedPaths != nil && !pc.AllowedPaths[subpath] {
		g.logger.Info("Subpath not allowed", zap.String("provider", pc.Name), zap.String("subpath", subpath))
		writeJSON(w, http.StatusForbidden, errorBody{Error: true, Msg: "you are not allowed to request " + subpath})
		return
	}

	result := g.auth.Authenticate(r, pc.ModelProvider)
	if result.Error {
		writeJSON(w, http.StatusUnauthorized, result)
		return
	}

	// providers with a path allow-list keep their own origin even in unified proxy mode
	baseURL := pc.BaseURL(g.cfg)
	if g.cfg.BaseURL != "" && pc.AllowedPaths == nil {
		baseURL = g.cfg.BaseURL
	}
	fetchURL := proxy.BuildFetchURL(proxy.BuildFetchURLOptions{
		BaseURL:           baseURL,
		RequestPath:       subpath,
		QueryString:       r.URL.RawQuery,
		UseGatewayRewrite: pc.UseGatewayRewrite,
	})

	headerName := pc.authHeaderName()
	authValue := g.auth.ResolveAuthHeaderValue(r, result, auth.HeaderOptions{
		HeaderName: headerName,
		Bearer:     !pc.RawAuth,
	})

	header := proxy.BuildUpstreamHeaders(r.Header)
	header.Del("Authorization")
	header.Del(headerName)
	header.Set("Content-Type", "application/json")
	if authValue != "" {
		header.Set(headerName, authValue)
	}
	if pc.ExtraHeaders != nil {
		for k, v := range pc.ExtraHeaders(r, g.cfg) {
			header.Set(k, v)
		}
	}

	body, buffered, rejected := g.checkModel(w, r, pc.Name, scope(string(pc.ServiceProvider)))
	if rejected {
		return
	}

	g.forward(w, r, pc.Name, fetchURL, body, buffered, header, g.client, nil)
}
