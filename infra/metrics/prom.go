package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/gridflex/flexcore/core/metrics"
)

// PromSink records scheduling events in Prometheus metrics.
type PromSink struct {
	jobs    *prometheus.CounterVec
	latency *prometheus.HistogramVec
	ingest  *prometheus.CounterVec
}

// NewPromSink registers the scheduling metrics on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer. A nil
// registerer defaults to the global one.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_jobs_total",
		Help: "Total number of scheduling jobs by outcome",
	}, []string{"sensor_id", "status", "backend"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduling_solve_seconds",
		Help:    "Wall time spent solving one scheduling job",
		Buckets: prometheus.DefBuckets,
	}, []string{"sensor_id", "status"})
	ingest := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beliefs_ingested_total",
		Help: "Total number of beliefs accepted into the store",
	}, []string{"sensor_id", "source"})

	if err := reg.Register(jobs); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			jobs = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(ingest); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			ingest = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	return &PromSink{jobs: jobs, latency: latency, ingest: ingest}, nil
}

func (s *PromSink) RecordJobResult(res coremetrics.JobResult) error {
	s.jobs.WithLabelValues(res.SensorID, res.Status, res.Backend).Inc()
	s.latency.WithLabelValues(res.SensorID, res.Status).Observe(res.Duration.Seconds())
	return nil
}

func (s *PromSink) RecordIngest(ev coremetrics.IngestEvent) error {
	s.ingest.WithLabelValues(ev.SensorID, ev.Source).Add(float64(ev.Count))
	return nil
}

// StartPromServer exposes the scrape endpoint on addr until ctx is canceled.
// A dedicated mux avoids interfering with other handlers.
func StartPromServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
