package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kcolemangt/llm-gateway/utils"
	"go.uber.org/zap"
)

// NewRouter mounts the gateway, the model-info routes and a health check.
func NewRouter(g *Gateway) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(g.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors(g.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/api/model-info", g.ServeModelInfo)
	r.Post("/api/model-info/refresh", g.RefreshModelInfo)

	r.Route("/api/{provider}", func(api chi.Router) {
		api.Get("/*", g.Dispatch)
		api.Post("/*", g.Dispatch)
		api.Options("/*", g.Dispatch)
	})

	return r
}

// cors allows browser clients on any origin. Preflights are still answered by the
// provider handlers.
func cors(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")

			if r.Method == http.MethodOptions {
				if reqMethod := r.Header.Get("Access-Control-Request-Method"); reqMethod != "" {
					logger.Debug("Preflight requested method", zap.String("method", reqMethod))
				}
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				} else {
					h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Accept, X-User-Api-Key, X-Base-URL")
				}
				h.Set("Access-Control-Max-Age", "86400")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request once the response is complete.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("Request served",
					zap.String("requestId", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("clientIP", utils.ClientIP(r)),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
