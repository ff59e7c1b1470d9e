// Registers:
//
//	#alertwatch_rounds_total
//	#alertwatch_round_duration_seconds
//	#alertwatch_fetch_errors_total
//	#alertwatch_alerts_total
//	#alertwatch_dispatch_total
//	#alertwatch_universe_size
//	#alertwatch_used_weight
//	#go_* and process_* system metrics
//
// Serve exposes them on /metrics using the Prometheus HTTP handler.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DIY-6/web3-script/logger"
)

// Recorder records monitor activity on its own registry.
type Recorder struct {
	registry      *prometheus.Registry
	rounds        *prometheus.CounterVec
	roundDuration *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	dispatch      *prometheus.CounterVec
	universeSize  *prometheus.GaugeVec
	usedWeight    prometheus.Gauge
}

// New creates a Recorder with Go runtime and process collectors attached.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		rounds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alertwatch_rounds_total",
			Help: "Completed polling rounds",
		}, []string{"monitor"}),
		roundDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alertwatch_round_duration_seconds",
			Help:    "Wall time of one polling round",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"monitor"}),
		fetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alertwatch_fetch_errors_total",
			Help: "Per-instrument failures by error kind",
		}, []string{"monitor", "kind"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alertwatch_alerts_total",
			Help: "Alert blocks produced",
		}, []string{"monitor"}),
		dispatch: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alertwatch_dispatch_total",
			Help: "Webhook chunks by result",
		}, []string{"monitor", "result"}),
		universeSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alertwatch_universe_size",
			Help: "Instruments tracked per monitor",
		}, []string{"monitor"}),
		usedWeight: f.NewGauge(prometheus.GaugeOpts{
			Name: "alertwatch_used_weight",
			Help: "Last reported exchange request weight for the current minute",
		}),
	}
}

// RoundCompleted records one finished round.
func (r *Recorder) RoundCompleted(monitor string, elapsed time.Duration, blocks int) {
	r.rounds.WithLabelValues(monitor).Inc()
	r.roundDuration.WithLabelValues(monitor).Observe(elapsed.Seconds())
	r.alerts.WithLabelValues(monitor).Add(float64(blocks))
}

// FetchFailed counts a per-instrument failure of the given kind.
func (r *Recorder) FetchFailed(monitor, kind string) {
	r.fetchErrors.WithLabelValues(monitor, kind).Inc()
}

// Dispatched records delivered and failed webhook chunks.
func (r *Recorder) Dispatched(monitor string, sent int, failed bool) {
	r.dispatch.WithLabelValues(monitor, "sent").Add(float64(sent))
	if failed {
		r.dispatch.WithLabelValues(monitor, "failed").Inc()
	}
}

// SetUniverseSize records how many instruments a monitor tracks.
func (r *Recorder) SetUniverseSize(monitor string, n int) {
	r.universeSize.WithLabelValues(monitor).Set(float64(n))
}

// SetUsedWeight records the exchange request weight.
func (r *Recorder) SetUsedWeight(used int64) {
	r.usedWeight.Set(float64(used))
}

// Handler returns the HTTP handler exposing the registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.GetLogger().WithComponent("metrics").WithFields(logger.Fields{"address": addr}).Info("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
