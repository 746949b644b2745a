// Package metrics exposes sync and reconciliation health counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provider records sync-loop outcomes. A noop implementation backs disabled
// deployments so call sites never branch.
type Provider interface {
	IncFetch(success bool)
	IncSave(success bool)
	IncReconcile(outcome string)
	SetRecordsTotal(count int)
	SetPending(writes, deletes int)
}

// Reconcile outcome labels.
const (
	ReconcileApplied = "applied"
	ReconcileNoop    = "noop"
	ReconcileGuarded = "guarded"
)

type provider struct {
	fetchTotal     *prometheus.CounterVec
	saveTotal      *prometheus.CounterVec
	reconcileTotal *prometheus.CounterVec
	recordsTotal   prometheus.Gauge
	pendingTotal   *prometheus.GaugeVec
}

// NewProvider registers the collectors and returns a live Provider, or a noop
// one when metrics are disabled.
func NewProvider(enabled bool) Provider {
	if !enabled {
		return &noopProvider{}
	}

	return &provider{
		fetchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chapterboard_fetch_total",
			Help: "Total remote document fetches by result",
		}, []string{"result"}),

		saveTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chapterboard_save_total",
			Help: "Total remote document saves by result",
		}, []string{"result"}),

		reconcileTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chapterboard_reconcile_total",
			Help: "Total reconciliation passes by outcome",
		}, []string{"outcome"}),

		recordsTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chapterboard_records_total",
			Help: "Current number of records in the working collection",
		}),

		pendingTotal: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chapterboard_pending_mutations",
			Help: "Current number of unconfirmed local mutations by kind",
		}, []string{"kind"}),
	}
}

func (p *provider) IncFetch(success bool) {
	p.fetchTotal.WithLabelValues(resultLabel(success)).Inc()
}

func (p *provider) IncSave(success bool) {
	p.saveTotal.WithLabelValues(resultLabel(success)).Inc()
}

func (p *provider) IncReconcile(outcome string) {
	p.reconcileTotal.WithLabelValues(outcome).Inc()
}

func (p *provider) SetRecordsTotal(count int) {
	p.recordsTotal.Set(float64(count))
}

func (p *provider) SetPending(writes, deletes int) {
	p.pendingTotal.WithLabelValues("write").Set(float64(writes))
	p.pendingTotal.WithLabelValues("delete").Set(float64(deletes))
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// noopProvider is a no-op implementation for when metrics are disabled.
type noopProvider struct{}

func (n *noopProvider) IncFetch(_ bool)       {}
func (n *noopProvider) IncSave(_ bool)        {}
func (n *noopProvider) IncReconcile(_ string) {}
func (n *noopProvider) SetRecordsTotal(_ int) {}
func (n *noopProvider) SetPending(_, _ int)   {}
