package server

import (
	"net/http"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/go-logr/logr"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vvakame/bookgraph/internal/metrics"
)

const (
	PlaygroundPath = "/"
	GraphQLPath    = "/query"
	MetricsPath    = "/metrics"
	HealthzPath    = "/healthz"
)

type Options struct {
	Schema graphql.ExecutableSchema
	Logger logr.Logger

	// Registry receives the operation metrics and is served at /metrics.
	// A fresh registry is used when nil.
	Registry *prometheus.Registry

	Playground      bool
	ComplexityLimit int
	CORSOrigins     []string
}

// NewHandler returns the HTTP handler serving GraphQL, the playground, metrics and health checks.
func NewHandler(opts *Options) (http.Handler, error) {
	if opts == nil || opts.Schema == nil {
		return nil, errors.New("schema is must required")
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	srv := handler.NewDefaultServer(opts.Schema)
	if opts.ComplexityLimit > 0 {
		srv.Use(extension.FixedComplexityLimit(opts.ComplexityLimit))
	}
	srv.Use(metrics.New(reg))
	srv.Use(&operationLogger{})

	router := mux.NewRouter()
	router.Path(GraphQLPath).Methods(http.MethodGet, http.MethodPost, http.MethodOptions).Handler(srv)
	if opts.Playground {
		router.Path(PlaygroundPath).Methods(http.MethodGet).Handler(playground.Handler("bookgraph", GraphQLPath))
	}
	router.Path(MetricsPath).Methods(http.MethodGet).Handler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	router.Path(HealthzPath).Methods(http.MethodGet).HandlerFunc(healthz)

	var h http.Handler = router
	if len(opts.CORSOrigins) != 0 {
		h = handlers.CORS(
			handlers.AllowCredentials(),
			handlers.AllowedOrigins(opts.CORSOrigins),
			handlers.AllowedHeaders([]string{"Content-Type", requestIDHeader}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		)(h)
	}
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{opts.Logger}),
	)(h)
	h = requestIDMiddleware(opts.Logger, h)

	return h, nil
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
