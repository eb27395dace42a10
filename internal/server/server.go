package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexflow/api"
	"github.com/dgnsrekt/gexflow/internal/metrics"
)

// Streams holds the optional push endpoints. Nil fields are not mounted.
type Streams struct {
	WebSocket   http.Handler
	AlertEvents http.HandlerFunc
}

// NewRouter wires the query and ingest API. streams may be nil when pushing
// is disabled.
func NewRouter(server *Server, streams *Streams, logger *zap.Logger) (http.Handler, error) {
	// Load OpenAPI spec for validation
	swagger, err := api.GetSwagger()
	if err != nil {
		return nil, err
	}
	swagger.Servers = nil // Allow any host

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(server.cfg.Server.CORSOrigins))
	r.Use(zapLoggerMiddleware(logger))
	r.Use(metrics.Middleware)

	// Non-validated routes
	r.Get("/health", server.health)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/openapi.yaml", openapiHandler)
	r.Get("/docs", swaggerUIHandler)
	if streams != nil && streams.WebSocket != nil {
		r.Get("/ws", streams.WebSocket.ServeHTTP)
	}
	if streams != nil && streams.AlertEvents != nil {
		// Long-lived; kept out of compression and request validation
		r.Get("/api/v1/alerts/stream", streams.AlertEvents)
	}

	// API routes with OpenAPI validation
	r.Group(func(apiRouter chi.Router) {
		apiRouter.Use(middleware.Compress(5))
		if server.cfg.Server.ValidateRequests {
			apiRouter.Use(oapimiddleware.OapiRequestValidatorWithOptions(swagger, &oapimiddleware.Options{
				ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
					writeError(w, statusCode, message)
				},
			}))
		}

		apiRouter.Route("/api/v1", func(v1 chi.Router) {
			v1.Get("/greeks", server.getGreeks)
			v1.Get("/gex", server.getGEX)
			v1.Get("/gex/wall", server.getGammaWall)
			v1.Get("/gex/flip", server.getGammaFlip)
			v1.Get("/cvd", server.getCVD)
			v1.Get("/footprint", server.getFootprint)
			v1.Get("/candles", server.getCandles)
			v1.Get("/alerts", server.getAlerts)
			v1.Post("/snapshots", server.postSnapshot)
			v1.Post("/ticks", server.postTicks)
			v1.Post("/session/reset", server.resetSession)
		})
	})

	return r, nil
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := "*"
	if len(origins) > 0 {
		allowed = strings.Join(origins, ", ")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("requestID", middleware.GetReqID(r.Context())),
			)
			next.ServeHTTP(w, r)
		})
	}
}

func openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(api.OpenAPISpec)
}

func swaggerUIHandler(w http.ResponseWriter, r *http.Request) {
	html := `<!DOCTYPE html>
<html>
<head>
    <title>gexflow API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.10.3/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.10.3/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            SwaggerUIBundle({
                url: "/openapi.yaml",
                dom_id: '#swagger-ui',
            });
        };
    </script>
</body>
</html>`
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(html))
}
