package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus holds the chatsearch collectors and their registry.
type Prometheus struct {
	Registry *prometheus.Registry

	QueriesTotal    *prometheus.CounterVec
	QueryDuration   prometheus.Histogram
	DocumentsTotal  *prometheus.CounterVec
	IngestDuration  prometheus.Histogram
	UpdatesTotal    *prometheus.CounterVec
	EnabledChannels prometheus.Gauge
}

// NewPrometheus registers the collectors on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Prometheus{
		Registry: reg,
		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsearch_queries_total",
				Help: "Total number of searches by outcome",
			},
			[]string{"outcome"},
		),
		QueryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatsearch_query_duration_seconds",
				Help:    "Duration of searches in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		DocumentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsearch_documents_total",
				Help: "Total number of AddDocument calls by outcome",
			},
			[]string{"outcome"},
		),
		IngestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatsearch_ingest_duration_seconds",
				Help:    "Duration of AddDocument calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		UpdatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsearch_updates_total",
				Help: "Total number of chat updates handled by kind",
			},
			[]string{"kind"},
		),
		EnabledChannels: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatsearch_enabled_channels",
				Help: "Number of channels with search enabled",
			},
		),
	}
}

func (p *Prometheus) observeQuery(outcome Outcome, d time.Duration) {
	if p == nil {
		return
	}
	p.QueriesTotal.WithLabelValues(string(outcome)).Inc()
	p.QueryDuration.Observe(d.Seconds())
}

func (p *Prometheus) observeIngest(outcome Outcome, d time.Duration) {
	if p == nil {
		return
	}
	p.DocumentsTotal.WithLabelValues(string(outcome)).Inc()
	p.IngestDuration.Observe(d.Seconds())
}

// ObserveUpdate counts one handled chat update.
func (p *Prometheus) ObserveUpdate(kind string) {
	if p == nil {
		return
	}
	p.UpdatesTotal.WithLabelValues(kind).Inc()
}

// SetEnabledChannels records the size of the enabled set.
func (p *Prometheus) SetEnabledChannels(n int) {
	if p == nil {
		return
	}
	p.EnabledChannels.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics and /health on addr until ctx is cancelled.
func (p *Prometheus) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"chatsearch"}`))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics_server_listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
