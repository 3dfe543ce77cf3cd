// Package handler serves a session's view over HTTP: health and metrics
// endpoints plus a websocket that streams view snapshots and accepts sends.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johndosdos/conecta/internal/auth"
	"github.com/johndosdos/conecta/internal/chat"
)

// OpenFunc starts a session for identity with target.
type OpenFunc func(ctx context.Context, identity auth.Provider, target string) (*chat.Session, error)

// IdentifyFunc extracts the caller's identity from a request.
type IdentifyFunc func(r *http.Request) auth.Provider

type Server struct {
	Open     OpenFunc
	Identify IdentifyFunc
	Gatherer prometheus.Gatherer
	Log      *slog.Logger

	// OriginPatterns lists cross-origin hosts allowed to open the websocket.
	// Same-host requests are always accepted.
	OriginPatterns []string
}

// NewRouter wires the HTTP routes.
func NewRouter(s *Server) http.Handler {
	if s.Log == nil {
		s.Log = slog.Default()
	}
	if s.Gatherer == nil {
		s.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/ws/{target}", s.ServeWs)

	return r
}

// BearerIdentity reads a JWT from the Authorization header or the token
// query parameter. Browsers cannot set headers on a websocket upgrade.
func BearerIdentity(secret, issuer string, log *slog.Logger) IdentifyFunc {
	return func(r *http.Request) auth.Provider {
		token := r.URL.Query().Get("token")
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
		return auth.JWTProvider{Token: token, Secret: secret, Issuer: issuer, Log: log}
	}
}

// StaticIdentity gives every request the same identity.
func StaticIdentity(id string) IdentifyFunc {
	return func(*http.Request) auth.Provider { return auth.Static(id) }
}
