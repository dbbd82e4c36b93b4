// Package webapi serves the wizard to a browser: a JSON API, a websocket that
// pushes state snapshots, and the embedded single page.
package webapi

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"poster-studio/internal/wizard"
)

const maxUploadBytes = 64 << 20

type Options struct {
	Wizard         *wizard.Controller
	Logger         zerolog.Logger
	RequestTimeout time.Duration
	// Static is served at / when set.
	Static fs.FS
}

type Server struct {
	wizard         *wizard.Controller
	log            zerolog.Logger
	hub            *hub
	requestTimeout time.Duration
	static         fs.FS
	unsubscribe    func()
}

func New(opts Options) *Server {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 240 * time.Second
	}
	log := opts.Logger.With().Str("component", "webapi").Logger()

	s := &Server{
		wizard:         opts.Wizard,
		log:            log,
		hub:            newHub(log),
		requestTimeout: timeout,
		static:         opts.Static,
	}
	s.unsubscribe = s.wizard.Subscribe(s.hub.broadcast)
	return s
}

// Close stops pushing state and disconnects websocket clients.
func (s *Server) Close() {
	s.unsubscribe()
	s.hub.close()
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, requestLogger(s.log))

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", s.handleCatalog)
		r.Get("/state", s.handleState)
		r.Post("/submit", s.handleSubmit)
		r.Post("/back", s.handleBack)
		r.Post("/reset", s.handleReset)
		r.Post("/proposals/{id}/select", s.handleSelect)

		r.Route("/poster", func(r chi.Router) {
			r.Put("/config", s.handleSetConfig)
			r.Post("/regenerate", s.handleRegenerate)
			r.Post("/edit", s.handleEdit)
			r.Post("/analyze", s.handleAnalyze)
			r.Get("/image", s.handleImage)
		})
	})
	r.Get("/ws", s.handleWS)

	if s.static != nil {
		r.Handle("/*", http.FileServer(http.FS(s.static)))
	}
	return r
}

// withTimeout bounds a generation call. The request context still cancels it
// when the browser goes away.
func (s *Server) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.requestTimeout)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ws" {
				// hijacked connections cannot be wrapped
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.status).
				Dur("elapsed", time.Since(start)).
				Msg("http")
		})
	}
}
