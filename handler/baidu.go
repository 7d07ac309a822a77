package handler

import (
	"net/http"
	"net/url"

	"github.com/kcolemangt/llm-gateway/model"
	"github.com/kcolemangt/llm-gateway/proxy"
	"go.uber.org/zap"
)

// serveBaidu proxies ERNIE requests. The configured key pair is exchanged for an
// access token that travels in the query string.
func (g *Gateway) serveBaidu(w http.ResponseWriter, r *http.Request, subpath string) {
	if r.Method == http.MethodOptions {
		writePreflight(w)
		return
	}

	result := g.auth.Authenticate(r, model.ProviderErnie)
	if result.Error {
		writeJSON(w, http.StatusUnauthorized, result)
		return
	}

	if g.cfg.BaiduAPIKey == "" || g.cfg.BaiduSecretKey == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: true, Message: "missing BAIDU_API_KEY or BAIDU_SECRET_KEY in server env vars"})
		return
	}

	body, buffered, rejected := g.checkModel(w, r, "Baidu", scope(string(model.ServiceBaidu)))
	if rejected {
		return
	}

	token, err := g.baidu.Token(r.Context(), g.cfg.BaiduAPIKey, g.cfg.BaiduSecretKey)
	if err != nil {
		g.logger.Error("Baidu token exchange failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Error: true, Message: "failed to obtain baidu access token"})
		return
	}

	fetchURL := proxy.BuildFetchURL(proxy.BuildFetchURLOptions{
		BaseURL:     orDefault(g.cfg.BaiduURL, model.BaiduBaseURL),
		RequestPath: subpath,
		QueryString: "access_token=" + url.QueryEscape(token),
	})

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	g.forward(w, r, "Baidu", fetchURL, body, buffered, header, g.client, nil)
}
