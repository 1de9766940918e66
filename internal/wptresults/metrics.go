package wptresults

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	results   *prometheus.CounterVec
	artifacts prometheus.Counter
	running   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wpt_results_total",
				Help: "Number of reported test results.",
			},
			[]string{"status", "unexpected"},
		),
		artifacts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wpt_artifacts_written_total",
			Help: "Number of artifact files written.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wpt_tests_running",
			Help: "Number of started tests without a result yet.",
		}),
	}

	for name, c := range map[string]prometheus.Collector{
		"results":   m.results,
		"artifacts": m.artifacts,
		"running":   m.running,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register %s metric: %v", name, err)
		}
	}
	return m, nil
}

func (m *metrics) observe(r Result) {
	m.results.WithLabelValues(string(r.Actual), strconv.FormatBool(r.Unexpected)).Inc()
	n := 0
	for _, paths := range r.Artifacts {
		n += len(paths)
	}
	m.artifacts.Add(float64(n))
}

// WriteMetrics writes the metrics gathered by g to path, in the text exposition format.
func WriteMetrics(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("could not write metrics to %s: %v", path, err)
	}
	return nil
}
