// Package metrics holds the process-wide Prometheus collectors and the
// optional debug HTTP server exposing them.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"

	"github.com/atomicstack/multiverse/internal/logging"
)

const namespace = "multiverse"

var (
	DiffBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "diff",
		Name:      "batches_total",
		Help:      "Number of diff batches applied, by stream.",
	}, []string{"stream"})

	DiffOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "diff",
		Name:      "ops_total",
		Help:      "Number of diff operations applied, by stream.",
	}, []string{"stream"})

	DiffErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "diff",
		Name:      "errors_total",
		Help:      "Number of diff batches containing operations that could not be applied.",
	}, []string{"stream"})

	Timelines = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "timeline",
		Name:      "registered",
		Help:      "Number of room timelines with a running feeder.",
	})

	TimelineInitFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "timeline",
		Name:      "init_failures_total",
		Help:      "Number of failed attempts to create a room timeline.",
	})

	TasksCancelled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "task",
		Name:      "cancelled_total",
		Help:      "Number of background tasks cancelled, by kind.",
	}, []string{"kind"})

	TaskPanics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "task",
		Name:      "panics_total",
		Help:      "Number of background tasks that panicked, by kind.",
	}, []string{"kind"})

	SyncRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "requests_total",
		Help:      "Number of sliding sync requests, by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		DiffBatches,
		DiffOps,
		DiffErrors,
		Timelines,
		TimelineInitFailures,
		TasksCancelled,
		TaskPanics,
		SyncRequests,
	)
}

// ObserveBatch records one applied diff batch of n operations.
func ObserveBatch(stream string, n int, err error) {
	DiffBatches.WithLabelValues(stream).Inc()
	DiffOps.WithLabelValues(stream).Add(float64(n))
	if err != nil {
		DiffErrors.WithLabelValues(stream).Inc()
	}
}

// Router builds the debug HTTP routes. snapshot is called for every request
// to /debug/rooms and its result is encoded as JSON.
func Router(snapshot func() interface{}) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/debug/rooms", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var body interface{} = map[string]interface{}{}
		if snapshot != nil {
			body = snapshot()
		}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			logging.Error(err)
		}
	}).Methods(http.MethodGet)
	return r
}

// Serve runs the debug server on addr until ctx is cancelled. An empty addr
// disables the server and returns immediately.
func Serve(ctx context.Context, addr string, snapshot func() interface{}) error {
	if addr == "" {
		return nil
	}
	logger := logging.Logger("metrics")
	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Debug().
				Str("method", r.Method).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Str("path", r.URL.Path).
				Msg("")
		})(Router(snapshot)),
	)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info().Msgf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
