// Package api exposes the pipelines over HTTP. Request headers carry the
// per-call configuration overrides.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"cdmutil/internal/pipeline"
)

const maxBodyBytes = 16 << 20

// Server serves the pipeline endpoints until its context is cancelled.
type Server struct {
	pipeline *pipeline.Pipeline
	addr     string
}

func NewServer(p *pipeline.Pipeline, addr string) *Server {
	return &Server{pipeline: p, addr: addr}
}

// Router builds the route table. Every endpoint accepts GET and POST, like
// the function triggers it replaces; createManifest and events need a body.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		requestLogger,
		middleware.Recoverer,
		middleware.RequestSize(maxBodyBytes),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/manifestToSQL", s.handleManifestToSQL)
		r.Post("/manifestToSQL", s.handleManifestToSQL)
		r.Get("/manifestToSQLDDL", s.handleManifestToSQLDDL)
		r.Post("/manifestToSQLDDL", s.handleManifestToSQLDDL)
		r.Post("/createManifest", s.handleCreateManifest)
		r.Get("/getManifestDefinition", s.handleManifestDefinition)
		r.Post("/getManifestDefinition", s.handleManifestDefinition)
		r.Get("/manifestToModelJson", s.handleModelJSON)
		r.Post("/manifestToModelJson", s.handleModelJSON)
		r.Post("/events", s.handleEvents)
	})
	return r
}

// Serve blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Router(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		log.Info().Str("addr", s.addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		log.Debug().Msg("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("request", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}
