// Package api serves the FRED proxy and the query agent over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vishpuri/FRED/agent"
	"github.com/vishpuri/FRED/fred"
	"github.com/vishpuri/FRED/mcpclient"
	"github.com/vishpuri/FRED/tools"
)

// QueryProcessor answers natural-language queries.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, query string, cb agent.ProcessCallbacks) (*agent.Result, error)
}

// StateReporter reports the MCP session state.
type StateReporter interface {
	State() mcpclient.State
}

// Deps are the collaborators behind the routes. Nil members disable the
// routes that need them.
type Deps struct {
	FRED           *fred.Client
	Tools          *tools.ToolRegistry
	Agent          QueryProcessor
	MCP            StateReporter
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
}

type server struct {
	deps Deps
	log  zerolog.Logger
}

// NewRouter constructs the HTTP handler.
func NewRouter(deps Deps, log zerolog.Logger) http.Handler {
	s := &server{deps: deps, log: log.With().Str("component", "api").Logger()}

	r := chi.NewRouter()
	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range middlewareChain(s.log) {
		r.Use(m)
	}

	r.Route("/api", func(ar chi.Router) {
		ar.Get("/health", s.handleHealth)
		if deps.FRED != nil {
			ar.Route("/fred", func(fr chi.Router) {
				fr.Get("/browse", s.handleBrowse)
				fr.Get("/search", s.handleSearch)
				fr.Get("/series/{seriesId}", s.handleSeries)
			})
		}
		if deps.Tools != nil {
			ar.Post("/tools/{name}", s.handleTool)
		}
		if deps.Agent != nil {
			ar.Post("/query", s.handleQuery)
			ar.Get("/query/stream", s.handleQueryStream)
		}
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, label string, err error) {
	body := errorBody{Error: label}
	if err != nil {
		body.Message = err.Error()
	}
	writeJSON(w, status, body)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := false
	if s.deps.MCP != nil {
		connected = s.deps.MCP.State() == mcpclient.Connected
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"timestamp":          time.Now().UTC().Format(time.RFC3339Nano),
		"mcpServerConnected": connected,
	})
}
