package handler

import (
	"net/http"

	"github.com/kcolemangt/llm-gateway/auth"
	"github.com/kcolemangt/llm-gateway/model"
	"github.com/kcolemangt/llm-gateway/proxy"
	"github.com/kcolemangt/llm-gateway/utils"
)

// serveStability proxies image generation requests. Bodies are multipart and pass
// through untouched.
func (g *Gateway) serveStability(w http.ResponseWriter, r *http.Request, subpath string) {
	if r.Method == http.MethodOptions {
		writePreflight(w)
		return
	}

	result := g.auth.Authenticate(r, model.ProviderStability)
	if result.Error {
		writeJSON(w, http.StatusUnauthorized, result)
		return
	}

	key := r.Header.Get(auth.UserAPIKeyHeader)
	if key == "" {
		token := utils.StripBearer(r.Header.Get("Authorization"))
		if token != "" && !g.auth.IsAccessCode(token) {
			key = token
		} else {
			key = orDefault(result.SystemAPIKey, g.cfg.StabilityAPIKey)
		}
	}
	if key == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: true, Message: "missing STABILITY_API_KEY in server env vars"})
		return
	}

	fetchURL := proxy.NormalizeBaseURL(orDefault(g.cfg.StabilityURL, model.StabilityBaseURL)) + "/" + subpath

	header := http.Header{}
	header.Set("Content-Type", orDefault(r.Header.Get("Content-Type"), "multipart/form-data"))
	header.Set("Accept", orDefault(r.Header.Get("Accept"), "application/json"))
	header.Set("Authorization", "Bearer "+key)

	g.forward(w, r, "Stability", fetchURL, nil, false, header, g.client, nil)
}
