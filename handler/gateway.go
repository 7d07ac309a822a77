package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kcolemangt/llm-gateway/auth"
	"github.com/kcolemangt/llm-gateway/filter"
	"github.com/kcolemangt/llm-gateway/model"
	"github.com/kcolemangt/llm-gateway/modelinfo"
	"github.com/kcolemangt/llm-gateway/proxy"
	"github.com/kcolemangt/llm-gateway/utils"
	"go.uber.org/zap"
)

// maxBufferedBody caps how much of a request body is buffered for model filtering
// and retries.
const maxBufferedBody = 32 << 20

var errBodyTooLarge = errors.New("request body too large")

// Gateway serves /api/{provider}/* for every configured upstream.
type Gateway struct {
	cfg       *model.ServerConfig
	logger    *zap.Logger
	auth      *auth.Resolver
	client    proxy.Doer
	retrier   *proxy.Retrier
	baidu     *auth.BaiduTokenSource
	modelInfo *modelinfo.Cache
	timeout   time.Duration
	routes    map[string]upstream
}

// upstream serves the requests of one inbound path prefix. ProviderConfig covers the
// OpenAI-like vendors; the rest are bespoke handlers.
type upstream interface {
	serve(g *Gateway, w http.ResponseWriter, r *http.Request, subpath string)
}

type upstreamFunc func(g *Gateway, w http.ResponseWriter, r *http.Request, subpath string)

func (f upstreamFunc) serve(g *Gateway, w http.ResponseWriter, r *http.Request, subpath string) {
	f(g, w, r, subpath)
}

func (pc ProviderConfig) serve(g *Gateway, w http.ResponseWriter, r *http.Request, subpath string) {
	g.serveProvider(pc, w, r, subpath)
}

func defaultRoutes() map[string]upstream {
	routes := map[string]upstream{
		PathOpenAI:    upstreamFunc((*Gateway).serveOpenAI),
		PathAzure:     upstreamFunc((*Gateway).serveOpenAI),
		PathGoogle:    upstreamFunc((*Gateway).serveGoogle),
		PathBaidu:     upstreamFunc((*Gateway).serveBaidu),
		PathStability: upstreamFunc((*Gateway).serveStability),
	}
	for prefix, pc := range DefaultProviders() {
		routes[prefix] = pc
	}
	return routes
}

// New wires a Gateway. A nil client uses proxy.NewHTTPClient.
func New(cfg *model.ServerConfig, client proxy.Doer, logger *zap.Logger) *Gateway {
	if client == nil {
		client = proxy.NewHTTPClient()
	}
	rc := cfg.Gateway.Retry
	retryOpts := proxy.RetryOptions{
		MaxAttempts:       rc.MaxAttempts,
		BaseDelay:         rc.BaseDelay.Duration,
		MaxDelay:          rc.MaxDelay.Duration,
		RetryableStatuses: rc.RetryableStatuses,
	}
	return &Gateway{
		cfg:       cfg,
		logger:    logger,
		auth:      auth.NewResolver(cfg, logger),
		client:    client,
		retrier:   proxy.NewRetrier(client, retryOpts, logger),
		baidu:     auth.NewBaiduTokenSource(client, orDefault(cfg.BaiduURL, model.BaiduBaseURL), logger),
		modelInfo: modelinfo.NewCache(client, cfg.Gateway.ModelInfoURL, cfg.Gateway.ModelInfoTTL.Duration, logger),
		timeout:   cfg.Gateway.UpstreamTimeout.Duration,
		routes:    defaultRoutes(),
	}
}

// Dispatch routes a request by its provider segment. Unknown prefixes fall through to
// the passthrough proxy.
func (g *Gateway) Dispatch(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/" + chi.URLParam(r, "provider")
	subpath := chi.URLParam(r, "*")
	g.logger.Debug("Dispatching request",
		zap.String("prefix", prefix),
		zap.String("subpath", subpath),
		zap.String("method", r.Method))

	if u, ok := g.routes[prefix]; ok {
		u.serve(g, w, r, subpath)
		return
	}
	g.servePassthrough(w, r, subpath)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON shape of gateway-generated failures.
type errorBody struct {
	Error   bool   `json:"error"`
	Msg     string `json:"msg,omitempty"`
	Message string `json:"message,omitempty"`
}

func writePreflight(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"body": "OK"})
}

func writeForbiddenModel(w http.ResponseWriter, modelName string) {
	writeJSON(w, http.StatusForbidden, errorBody{Error: true, Message: "you are not allowed to use " + modelName + " model"})
}

// readBody buffers the request body. It returns nil for requests without one and
// errBodyTooLarge past maxBufferedBody.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	if r.ContentLength > maxBufferedBody {
		return nil, errBodyTooLarge
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBufferedBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBufferedBody {
		return nil, errBodyTooLarge
	}
	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

// scope returns the provider list the model filter checks against.
func scope(providers ...string) func(string) []string {
	return func(string) []string { return providers }
}

// checkModel applies the model filter when CUSTOM_MODELS is set. It buffers the body
// and reports whether the request was rejected. A malformed body is logged and let
// through.
func (g *Gateway) checkModel(w http.ResponseWriter, r *http.Request, name string, providers func(modelName string) []string) (body []byte, buffered, rejected bool) {
	if g.cfg.CustomModels == "" {
		return nil, false, false
	}
	body, err := readBody(r)
	if err != nil {
		g.writeBodyError(w, name, err)
		return nil, true, true
	}
	if body == nil {
		return nil, true, false
	}
	modelName, err := filter.ModelFromBody(body)
	if err != nil {
		g.logger.Warn("Model filter skipped", zap.String("provider", name), zap.Error(err))
		return body, true, false
	}
	if filter.IsModelNotAvailable(g.cfg.CustomModels, modelName, providers(modelName)...) {
		g.logger.Info("Model rejected by filter", zap.String("provider", name), zap.String("model", modelName))
		writeForbiddenModel(w, modelName)
		return body, true, true
	}
	return body, true, false
}

func (g *Gateway) writeBodyError(w http.ResponseWriter, name string, err error) {
	g.logger.Warn("Failed to read request body", zap.String("provider", name), zap.Error(err))
	if errors.Is(err, errBodyTooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: true, Message: "request body exceeds 32 MiB"})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Error: true, Message: "failed to read request body"})
}

// newRequest builds the outbound request, buffering the body when it was already read.
func newRequest(ctx context.Context, r *http.Request, fetchURL string, body []byte, buffered bool, header http.Header) (*http.Request, error) {
	if buffered {
		return proxy.NewUpstreamRequest(ctx, r.Method, fetchURL, body, header)
	}
	var reader io.Reader
	if r.Body != nil && r.Body != http.NoBody {
		reader = r.Body
	}
	return proxy.NewStreamingRequest(ctx, r.Method, fetchURL, reader, header)
}

// forward runs one upstream call under the gateway timeout and writes the result.
// do is the client or the retrier.
func (g *Gateway) forward(w http.ResponseWriter, r *http.Request, name, fetchURL string, body []byte, buffered bool, header http.Header, do proxy.Doer, clean func(http.Header)) {
	ctx, cancel := proxy.WithUpstreamTimeout(r.Context(), g.timeout)
	defer cancel()

	req, err := newRequest(ctx, r, fetchURL, body, buffered, header)
	if err != nil {
		g.logger.Error("Failed to build upstream request", zap.String("provider", name), zap.String("fetchUrl", fetchURL), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Error: true, Message: "invalid upstream url"})
		return
	}

	g.logger.Info("Forwarding request",
		zap.String("provider", name),
		zap.String("method", r.Method),
		zap.String("fetchUrl", fetchURL))

	start := time.Now()
	res, err := do.Do(req)
	if err != nil {
		g.writeFetchError(w, r, name, err)
		return
	}

	header = proxy.CleanResponseHeaders(res.Header)
	if clean != nil {
		clean(header)
	}
	_ = proxy.WriteResponse(w, res, header, g.logger)

	g.logger.Info("Upstream response relayed",
		zap.String("provider", name),
		zap.Int("status", res.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
}

func (g *Gateway) writeFetchError(w http.ResponseWriter, r *http.Request, name string, err error) {
	switch {
	case r.Context().Err() != nil:
		// the caller went away; there is nobody to answer
		g.logger.Info("Client cancelled request", zap.String("provider", name), zap.Error(err))
	case errors.Is(err, context.DeadlineExceeded):
		g.logger.Warn("Upstream request timed out", zap.String("provider", name), zap.Error(err))
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: true, Message: "upstream request timed out"})
	default:
		g.logger.Error("Upstream fetch failed", zap.String("provider", name), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Error: true, Message: utils.MaskSecrets(err.Error())})
	}
}
