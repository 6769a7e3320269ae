// Package metrics exports check outcomes in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/khcheck/khcheck/internal/engine"
	"github.com/khcheck/khcheck/internal/models"
)

// Metrics holds one run's gauges on a private registry
type Metrics struct {
	registry *prometheus.Registry

	// Checks by verdict: "ok" or "fail"
	Checks *prometheus.GaugeVec

	// 1 when the rule passed, 0 otherwise
	RulePassed *prometheus.GaugeVec

	// Constant 1 carrying the detected kernel properties as labels
	KernelInfo *prometheus.GaugeVec

	CheckDuration prometheus.Gauge
	LastRun       prometheus.Gauge
}

// New registers the khcheck metrics on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Checks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "khcheck_checks_total",
			Help: "Number of top-level hardening checks by verdict",
		}, []string{"verdict"}),

		RulePassed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "khcheck_rule_passed",
			Help: "Whether a hardening check passed (1) or failed (0)",
		}, []string{"id", "reason", "decision"}),

		KernelInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "khcheck_kernel_info",
			Help: "Kernel properties detected from the checked config",
		}, []string{"version", "arch", "compiler"}),

		CheckDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "khcheck_check_duration_seconds",
			Help: "Wall time of the last check run",
		}),

		LastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "khcheck_last_run_timestamp_seconds",
			Help: "Unix time of the last check run",
		}),
	}
}

// Registry exposes the private registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Record sets every gauge from one report
func (m *Metrics) Record(rep *engine.Report, state *models.State, took time.Duration) {
	if m == nil {
		return
	}

	sum := rep.Summary()
	m.Checks.WithLabelValues("ok").Set(float64(sum.OK))
	m.Checks.WithLabelValues("fail").Set(float64(sum.Fail))

	for _, res := range rep.All() {
		v := 0.0
		if res.Passed() {
			v = 1
		}
		m.RulePassed.WithLabelValues(res.Rule.ID, res.Rule.Reason, res.Rule.Decision).Set(v)
	}

	version, compiler := "unknown", "unknown"
	if state != nil {
		if kv := state.KernelVersion(); kv != nil {
			version = kv.String()
		}
		if c := state.Compiler(); c != "" {
			compiler = c
		}
	}
	m.KernelInfo.WithLabelValues(version, string(rep.Arch), compiler).Set(1)

	m.CheckDuration.Set(took.Seconds())
	m.LastRun.SetToCurrentTime()
}

// WriteFile writes the registry atomically for the node_exporter textfile
// collector
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
