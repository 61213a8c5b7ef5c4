// Package web provides an HTTP status server for the alarm clock.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/alarm-clock/internal/logger"
	"github.com/sweeney/alarm-clock/internal/logic"
	"github.com/sweeney/alarm-clock/internal/status"
)

// defaultTap is how long a simulated tap holds the button.
const defaultTap = 200 * time.Millisecond

// Simulator drives the input lines when no hardware is attached.
type Simulator interface {
	SetButton(c logic.Color, down bool) error
	SetUSB(present bool)
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithSimulator enables the /buttons and /usb endpoints.
func WithSimulator(sim Simulator) Option {
	return func(s *Server) {
		s.sim = sim
	}
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	metrics    http.Handler
	sim        Simulator
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts ...Option) *Server {
	s := &Server{tracker: tracker}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	if s.sim != nil {
		mux.HandleFunc("POST /buttons/{color}", s.handleButton)
		mux.HandleFunc("POST /usb", s.handleUSB)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.sim != nil); err != nil {
		logger.WarnKV(r.Context(), "render status page", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleButton accepts action=press, release or tap (the default).
func (s *Server) handleButton(w http.ResponseWriter, r *http.Request) {
	c := logic.Color(strings.ToUpper(r.PathValue("color")))
	if !c.Valid() {
		http.Error(w, "unknown button", http.StatusNotFound)
		return
	}

	var err error
	switch action := r.FormValue("action"); action {
	case "press":
		err = s.sim.SetButton(c, true)
	case "release":
		err = s.sim.SetButton(c, false)
	case "", "tap":
		if err = s.sim.SetButton(c, true); err == nil {
			time.AfterFunc(defaultTap, func() {
				_ = s.sim.SetButton(c, false)
			})
		}
	default:
		http.Error(w, "unknown action "+strconv.Quote(action), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger.DebugKV(r.Context(), "simulated button", "color", c, "action", r.FormValue("action"))
	redirectBack(w, r)
}

func (s *Server) handleUSB(w http.ResponseWriter, r *http.Request) {
	present, err := strconv.ParseBool(r.FormValue("present"))
	if err != nil {
		http.Error(w, "present must be a boolean", http.StatusBadRequest)
		return
	}
	s.sim.SetUSB(present)
	redirectBack(w, r)
}

// redirectBack sends browsers back to the page; API clients get 204.
func redirectBack(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
