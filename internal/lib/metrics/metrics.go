// Package metrics содержит счётчики Prometheus сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics набор счётчиков гейта. Нулевой указатель допустим: методы ничего не делают.
type Metrics struct {
	verdicts      *prometheus.CounterVec
	storeFailures *prometheus.CounterVec
	billingEvents *prometheus.CounterVec
}

// New регистрирует счётчики в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scangate_gate_verdicts_total",
			Help: "Admission verdicts by kind and tier.",
		}, []string{"verdict", "tier"}),
		storeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scangate_store_failures_total",
			Help: "Key-value store failures by component.",
		}, []string{"component"}),
		billingEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scangate_billing_events_total",
			Help: "Billing events by type and outcome.",
		}, []string{"type", "outcome"}),
	}
}

// Verdict учитывает решение гейта.
func (m *Metrics) Verdict(verdict, tier string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(verdict, tier).Inc()
}

// StoreFailure учитывает сбой хранилища в компоненте.
func (m *Metrics) StoreFailure(component string) {
	if m == nil {
		return
	}
	m.storeFailures.WithLabelValues(component).Inc()
}

// BillingEvent учитывает обработанное платёжное событие.
func (m *Metrics) BillingEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.billingEvents.WithLabelValues(eventType, outcome).Inc()
}
