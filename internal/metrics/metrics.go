package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "terracare_engine_build_info",
			Help: "Build information of the Terracare participation economy engine",
		},
		[]string{"version", "commit", "date"},
	)

	ActivitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "terracare_engine_activities_total",
			Help: "Total number of activity attestations processed",
		},
		[]string{"status"},
	)

	PointsAwardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "terracare_engine_points_awarded_total",
			Help: "Total value points awarded after daily capping",
		},
	)

	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "terracare_engine_conversions_total",
			Help: "Total number of credit-to-utility conversions",
		},
		[]string{"status"},
	)

	DistributionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "terracare_engine_distributions_total",
			Help: "Total number of revenue distributions",
		},
		[]string{"status"},
	)

	InvestorPaymentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "terracare_engine_investor_payments_total",
			Help: "Total number of per-investor repayment transfers",
		},
	)

	BuybacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "terracare_engine_buybacks_total",
			Help: "Total number of utility buybacks",
		},
		[]string{"status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "terracare_engine_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 0.001s to ~4.1s
		},
		[]string{"route", "method"},
	)

	JournalWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "terracare_engine_journal_writes_total",
			Help: "Total number of audit journal writes",
		},
		[]string{"kind", "status"},
	)
)
