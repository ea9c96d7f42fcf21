package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/techscan/internal/metrics"
	"github.com/JakeFAU/techscan/internal/progress"
)

// PrometheusSink turns progress events into scan metrics.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   prometheus.Histogram
	workersDone   prometheus.Counter

	pages        *prometheus.CounterVec
	pageBytes    *prometheus.CounterVec
	pageDuration *prometheus.HistogramVec
	techsMatched prometheus.Counter

	resources *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against reg (the default
// registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "techscan_runs_started_total",
			Help: "Scan runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techscan_runs_completed_total",
			Help: "Scan runs finished, by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "techscan_run_duration_seconds",
			Help:    "Wall time of completed runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		workersDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "techscan_workers_completed_total",
			Help: "Workers that reported their chunk results.",
		}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techscan_pages_total",
			Help: "Pages processed, by site and status class (error when the fetch failed).",
		}, []string{"site", "status_class"}),
		pageBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techscan_capture_bytes_total",
			Help: "Captured bytes per site, resources included.",
		}, []string{"site"}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "techscan_page_duration_seconds",
			Help:    "Capture duration per page, resources included.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site"}),
		techsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "techscan_technologies_matched_total",
			Help: "Technology matches across all pages.",
		}),
		resources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techscan_resources_total",
			Help: "Intercepted resources, by kind and result.",
		}, []string{"kind", "result"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted, s.runsCompleted, s.runDuration, s.workersDone,
		s.pages, s.pageBytes, s.pageDuration, s.techsMatched, s.resources,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.observe(evt)
	}
	return nil
}

func (s *PrometheusSink) observe(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.runDuration.Observe(evt.Dur.Seconds())
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
	case progress.StageWorkerDone:
		s.workersDone.Inc()
	case progress.StagePageDone:
		site := metrics.SanitizeSite(evt.URL)
		class := evt.StatusClass
		if class == "" {
			class = progress.StatusOther
		}
		s.pages.WithLabelValues(site, string(class)).Inc()
		if evt.Bytes > 0 {
			s.pageBytes.WithLabelValues(site).Add(float64(evt.Bytes))
		}
		s.pageDuration.WithLabelValues(site).Observe(evt.Dur.Seconds())
		s.techsMatched.Add(float64(evt.Techs))
	case progress.StagePageError:
		s.pages.WithLabelValues(metrics.SanitizeSite(evt.URL), "error").Inc()
	case progress.StageResourceDone:
		s.resources.WithLabelValues(evt.Kind, "fetched").Inc()
	case progress.StageResourceError:
		s.resources.WithLabelValues(evt.Kind, "failed").Inc()
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
