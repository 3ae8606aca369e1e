package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsCollector struct {
	purchaseSuccess *prometheus.CounterVec
	purchaseFailed  *prometheus.CounterVec
	purchaseCost    prometheus.Histogram
	codeReceived    *prometheus.CounterVec
	refunds         *prometheus.CounterVec
	sweepOutcomes   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		purchaseSuccess: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numrent_purchase_success_total",
				Help: "Total number of successful number purchases",
			},
			[]string{"service", "country"},
		),
		purchaseFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numrent_purchase_failed_total",
				Help: "Total number of failed number purchases",
			},
			[]string{"reason"},
		),
		purchaseCost: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "numrent_purchase_cost",
				Help:    "Cost distribution of number purchases",
				Buckets: prometheus.LinearBuckets(0, 5, 20),
			},
		),
		codeReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numrent_code_received_total",
				Help: "Total number of OTP codes received",
			},
			[]string{"service"},
		),
		refunds: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numrent_refunds_total",
				Help: "Total number of refunds issued",
			},
			[]string{"source"},
		),
		sweepOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numrent_sweep_outcomes_total",
				Help: "Per-record outcomes of expiry sweep runs",
			},
			[]string{"outcome"},
		),
		providerLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "numrent_provider_request_duration_seconds",
				Help:    "Duration of upstream provider requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
	}
}

func (m *MetricsCollector) IncrementPurchaseSuccess(service, country string) {
	if m == nil {
		return
	}
	m.purchaseSuccess.WithLabelValues(service, country).Inc()
}

func (m *MetricsCollector) IncrementPurchaseFailed(reason string) {
	if m == nil {
		return
	}
	m.purchaseFailed.WithLabelValues(reason).Inc()
}

func (m *MetricsCollector) RecordPurchaseCost(cost float64) {
	if m == nil {
		return
	}
	m.purchaseCost.Observe(cost)
}

func (m *MetricsCollector) IncrementCodeReceived(service string) {
	if m == nil {
		return
	}
	m.codeReceived.WithLabelValues(service).Inc()
}

func (m *MetricsCollector) IncrementRefund(source string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(source).Inc()
}

func (m *MetricsCollector) IncrementSweepOutcome(outcome string) {
	if m == nil {
		return
	}
	m.sweepOutcomes.WithLabelValues(outcome).Inc()
}

func (m *MetricsCollector) ObserveProviderRequest(action string, seconds float64) {
	if m == nil {
		return
	}
	m.providerLatency.WithLabelValues(action).Observe(seconds)
}
