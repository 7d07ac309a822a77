package handler

import (
	"net/http"

	"github.com/kcolemangt/llm-gateway/auth"
	"github.com/kcolemangt/llm-gateway/model"
	"github.com/kcolemangt/llm-gateway/proxy"
	"github.com/kcolemangt/llm-gateway/utils"
)

// serveGoogle proxies Gemini requests, sending the key as x-goog-api-key.
func (g *Gateway) serveGoogle(w http.ResponseWriter, r *http.Request, subpath string) {
	if r.Method == http.MethodOptions {
		writePreflight(w)
		return
	}

	result := g.auth.Authenticate(r, model.ProviderGeminiPro)
	if result.Error {
		writeJSON(w, http.StatusUnauthorized, result)
		return
	}

	apiKey := g.googleKey(r, result)
	if apiKey == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: true, Message: "missing GOOGLE_API_KEY in server env vars"})
		return
	}

	var query string
	if r.URL.Query().Get("alt") == "sse" {
		query = "alt=sse"
	}
	fetchURL := proxy.BuildFetchURL(proxy.BuildFetchURLOptions{
		BaseURL:     orDefault(g.cfg.GoogleURL, model.GeminiBaseURL),
		RequestPath: subpath,
		QueryString: query,
	})

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Cache-Control", "no-store")
	header.Set("x-goog-api-key", apiKey)

	g.forward(w, r, "Google", fetchURL, nil, false, header, g.client, nil)
}

// googleKey resolves the Gemini key: the X-User-Api-Key header, then a caller key
// from x-goog-api-key or Authorization, then the server key.
func (g *Gateway) googleKey(r *http.Request, result model.AuthResult) string {
	if userKey := r.Header.Get(auth.UserAPIKeyHeader); userKey != "" {
		return userKey
	}
	token := r.Header.Get("x-goog-api-key")
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	token = utils.StripBearer(token)
	if token != "" && !g.auth.IsAccessCode(token) {
		return token
	}
	return orDefault(result.SystemAPIKey, g.cfg.GoogleAPIKey)
}
