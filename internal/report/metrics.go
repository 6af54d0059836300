package report

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the run gauges exported for node_exporter's textfile
// collector. Each run overwrites the previous values.
type Metrics struct {
	reg *prometheus.Registry

	tasks         *prometheus.GaugeVec
	taskSeconds   *prometheus.GaugeVec
	runSeconds    prometheus.Gauge
	lastRun       prometheus.Gauge
	lastSuccess   prometheus.Gauge
	ledger        prometheus.Gauge
	resumePending prometheus.Gauge
}

// NewMetrics creates the gauges on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fedora_setup_tasks",
			Help: "Tasks handled in the last run by phase and status.",
		}, []string{"phase", "status"}),
		taskSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fedora_setup_task_duration_seconds",
			Help: "Execution time of each task in the last run.",
		}, []string{"phase", "task"}),
		runSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedora_setup_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedora_setup_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedora_setup_last_run_success",
			Help: "1 if the last run finished without failures.",
		}),
		ledger: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedora_setup_ledger_entries",
			Help: "Completed task names currently held in the ledger.",
		}),
		resumePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedora_setup_resume_pending",
			Help: "1 if a post-reboot resume unit is installed.",
		}),
	}
	m.reg.MustRegister(m.tasks, m.taskSeconds, m.runSeconds, m.lastRun, m.lastSuccess, m.ledger, m.resumePending)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveRun projects a finished run onto the gauges.
func (m *Metrics) ObserveRun(rec *Recorder, success bool, finished time.Time) {
	m.tasks.Reset()
	m.taskSeconds.Reset()
	for _, res := range rec.Results() {
		m.tasks.WithLabelValues(res.Phase, res.Status()).Inc()
		if !res.Skipped {
			m.taskSeconds.WithLabelValues(res.Phase, res.Task).Set(res.Duration.Seconds())
		}
	}
	m.runSeconds.Set(finished.Sub(rec.Started()).Seconds())
	m.lastRun.Set(float64(finished.Unix()))
	if success {
		m.lastSuccess.Set(1)
	} else {
		m.lastSuccess.Set(0)
	}
}

// SetLedgerEntries records the ledger size.
func (m *Metrics) SetLedgerEntries(n int) { m.ledger.Set(float64(n)) }

// SetResumePending records whether a reboot resume is scheduled.
func (m *Metrics) SetResumePending(pending bool) {
	if pending {
		m.resumePending.Set(1)
		return
	}
	m.resumePending.Set(0)
}
