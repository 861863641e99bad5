// Package web serves the dimmer's status page and JSON views over HTTP.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sweeney/triac-dimmer/internal/status"
)

// Server renders tracker snapshots for browsers and pollers. It is read-only:
// dimmer control goes through MQTT.
type Server struct {
	srv     *http.Server
	tracker *status.Tracker
	log     zerolog.Logger
}

// New builds a Server on addr. Nothing listens until ListenAndServe or Serve.
func New(addr string, tracker *status.Tracker, log zerolog.Logger) *Server {
	s := &Server{tracker: tracker, log: log.With().Str("component", "web").Logger()}

	routes := map[string]http.HandlerFunc{
		"/":            s.page,
		"/index.html":  s.page,
		"/index.json":  s.statusJSON,
		"/dimmer.json": s.dimmerJSON,
	}
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.Handle(path, readOnly(exact(path, h)))
	}
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) ListenAndServe() error { return s.srv.ListenAndServe() }

func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

// exact rejects paths the mux routed to h only as a subtree match.
func exact(path string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}
}

func readOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.tracker.Snapshot()); err != nil {
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("render status page")
	}
}

func (s *Server) statusJSON(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) dimmerJSON(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, status.FormatDimmerJSON(s.tracker.Snapshot()))
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(body); err != nil {
		s.log.Debug().Err(err).Str("path", r.URL.Path).Msg("write response")
	}
}
