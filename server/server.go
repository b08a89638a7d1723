// Package server exposes the actuator protocol and signal intake over HTTP.
//
//	GET  /v1/instructions/pending          pending instructions, highest priority first
//	POST /v1/instructions/{id}/executed    report an executed instruction
//	POST /v1/instructions/{id}/failed      report a rejected instruction
//	POST /v1/trades/{ticket}/closed        report a closed trade
//	POST /v1/connections/{id}/heartbeat    connection liveness and equity
//	POST /v1/signals                       submit a trading signal
//	GET  /metrics                          prometheus
//	GET  /healthz                          liveness
package server

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rustyeddy/trailguard/notify"
	"github.com/rustyeddy/trailguard/processor"
	"github.com/rustyeddy/trailguard/store"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

type Server struct {
	proc       *processor.Processor
	store      store.Store
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

type Option func(*Server)

func WithDispatcher(d *notify.Dispatcher) Option {
	return func(s *Server) { s.dispatcher = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(proc *processor.Processor, st store.Store, opts ...Option) *Server {
	s := &Server{
		proc:   proc,
		store:  st,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with recovery and access logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recovery)
	r.Use(s.accessLog)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/instructions/pending", s.pendingInstructions).Methods(http.MethodGet)
	v1.HandleFunc("/instructions/{id}/executed", s.instructionExecuted).Methods(http.MethodPost)
	v1.HandleFunc("/instructions/{id}/failed", s.instructionFailed).Methods(http.MethodPost)
	v1.HandleFunc("/trades/{ticket}/closed", s.tradeClosed).Methods(http.MethodPost)
	v1.HandleFunc("/connections/{id}/heartbeat", s.heartbeat).Methods(http.MethodPost)
	v1.HandleFunc("/signals", s.submitSignal).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) dispatch(ctx context.Context, events []notify.Event) {
	if s.dispatcher == nil || len(events) == 0 {
		return
	}
	s.dispatcher.Dispatch(ctx, events)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("http panic",
					zap.Any("panic", v),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
