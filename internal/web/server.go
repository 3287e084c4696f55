// Package web provides the HTTP surface of the hidrosense daemon: the REST
// API the dashboard polls, the status page and the operational endpoints.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/hidrosense/internal/notify"
	"github.com/sweeney/hidrosense/internal/status"
	"github.com/sweeney/hidrosense/internal/store"
)

// ThresholdPublisher announces a new activation threshold to the sensor.
type ThresholdPublisher interface {
	PublishThreshold(ctx context.Context, threshold int) error
}

// Deps are the components the server reads from and writes to.
type Deps struct {
	Tracker    *status.Tracker
	Store      store.Store
	Register   *store.Register
	Thresholds ThresholdPublisher // may be nil
	Notifier   notify.Sender
	Alerter    notify.Alerter
	Metrics    http.Handler // defaults to promhttp.Handler()
}

// Server serves the dashboard and the REST API over HTTP.
type Server struct {
	httpServer *http.Server
	deps       Deps
	timeout    time.Duration
}

// New creates a Server listening on addr.
func New(addr string, deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = promhttp.Handler()
	}
	s := &Server{deps: deps, timeout: notify.DefaultTimeout}

	r := mux.NewRouter()
	r.Use(corsMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/umidades", s.handleReadings).Methods(http.MethodGet)
	api.HandleFunc("/umidade", s.handleRecentReadings).Methods(http.MethodGet)
	api.HandleFunc("/limite", s.handleGetThreshold).Methods(http.MethodGet)
	api.HandleFunc("/set-limite", s.handleSetThreshold).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/send-telegram", s.handleSendTelegram).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/status", s.handlePumpStatus).Methods(http.MethodGet)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
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

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware lets a dashboard served from another origin poll the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	readings, err := s.deps.Store.Latest(r.Context(), DefaultLimit)
	if err != nil {
		http.Error(w, "failed to read readings", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, readings)
}

func (s *Server) handleJSON(w http.ResponseWriter, _ *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	resp := HealthJSON{Status: "ok", MQTTConnected: snap.MQTTConnected}
	if !snap.MQTTConnected {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := s.deps.Tracker.Snapshot().MQTTConnected
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, ReadyJSON{Ready: ready})
}
