package handler

import (
	"net/http"

	"github.com/kcolemangt/llm-gateway/auth"
	"github.com/kcolemangt/llm-gateway/model"
	"github.com/kcolemangt/llm-gateway/proxy"
	"go.uber.org/zap"
)

// BaseURLHeader lets a caller point the passthrough proxy at its own upstream.
const BaseURLHeader = "X-Base-URL"

// servePassthrough forwards requests for unknown providers to the X-Base-URL header
// or the shared base URL, retrying transient upstream failures.
func (g *Gateway) servePassthrough(w http.ResponseWriter, r *http.Request, subpath string) {
	if r.Method == http.MethodOptions {
		writePreflight(w)
		return
	}

	result := g.auth.Authenticate(r, model.ProviderGPT)
	if result.Error {
		writeJSON(w, http.StatusUnauthorized, result)
		return
	}

	baseURL := g.cfg.BaseURL
	override := r.Header.Get(BaseURLHeader)
	if override != "" {
		baseURL = override
	}
	if baseURL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: true, Message: "no upstream base url configured"})
		return
	}
	if override != "" && override != g.cfg.BaseURL && result.SystemAPIKey != "" {
		// a server key only ever goes to a server-chosen upstream
		g.logger.Warn("Withholding server key from caller-supplied base url", zap.String("baseUrl", override))
		result.SystemAPIKey = ""
	}

	query := r.URL.Query()
	query.Del("path")
	query.Del("provider")
	fetchURL := proxy.BuildFetchURL(proxy.BuildFetchURLOptions{
		BaseURL:           baseURL,
		RequestPath:       subpath,
		QueryString:       query.Encode(),
		UseGatewayRewrite: true,
	})

	header := proxy.BuildUpstreamHeaders(r.Header)
	if authValue := g.auth.ResolveAuthHeaderValue(r, result, auth.HeaderOptions{Bearer: true}); authValue != "" {
		header.Set("Authorization", authValue)
	} else {
		header.Del("Authorization")
	}

	body, err := readBody(r)
	if err != nil {
		g.writeBodyError(w, "Proxy", err)
		return
	}

	g.forward(w, r, "Proxy", fetchURL, body, true, header, g.retrier, nil)
}
