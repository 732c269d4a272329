package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	CommitmentsRecorded  prometheus.Counter
	CommitmentsRejected  *prometheus.CounterVec
	UnitsIssued          prometheus.Counter
	OfferingsFinalized   prometheus.Counter
	SettlementsSynced    prometheus.Counter
	SettlementDuplicates prometheus.Counter
	Divergences          *prometheus.CounterVec
	ReconcileOutcomes    *prometheus.CounterVec
	CorporateActions     *prometheus.CounterVec
	PendingRequests      prometheus.Gauge
	RequestFulfilment    *prometheus.HistogramVec
	AuthorizationDenied  *prometheus.CounterVec
	IngestedEvents       *prometheus.CounterVec
	RateLimited          *prometheus.CounterVec
	EndpointLatency      *prometheus.HistogramVec
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CommitmentsRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "issuance_commitments_recorded_total",
			Help: "Total number of commitments recorded",
		}),
		CommitmentsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "issuance_commitments_rejected_total",
			Help: "Total number of commitments rejected, by error code",
		}, []string{"code"}),
		UnitsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "issuance_units_issued_total",
			Help: "Total number of units issued",
		}),
		OfferingsFinalized: f.NewCounter(prometheus.CounterOpts{
			Name: "issuance_offerings_finalized_total",
			Help: "Total number of finalized offerings",
		}),
		SettlementsSynced: f.NewCounter(prometheus.CounterOpts{
			Name: "issuance_settlements_synced_total",
			Help: "Total number of settlements marked processed",
		}),
		SettlementDuplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "issuance_settlements_duplicate_total",
			Help: "Total number of settlement deliveries rejected as already settled",
		}),
		Divergences: f.NewCounterVec(prometheus.CounterOpts{
			Name: "issuance_reconciliation_divergences_total",
			Help: "Total number of downstream failures after an idempotency marker was committed",
		}, []string{"domain"}),
		ReconcileOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "issuance_csd_reconcile_outcomes_total",
			Help: "CSD verification outcomes by system and status",
		}, []string{"system", "status"}),
		CorporateActions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "issuance_corporate_actions_total",
			Help: "Corporate actions processed by kind and outcome",
		}, []string{"kind", "outcome"}),
		PendingRequests: f.NewGauge(prometheus.GaugeOpts{
			Name: "issuance_pending_requests",
			Help: "Outstanding external requests",
		}),
		RequestFulfilment: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "issuance_request_fulfilment_seconds",
			Help:    "Time between issuing and fulfilling an external request",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 60, 300},
		}, []string{"kind"}),
		AuthorizationDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "issuance_authorization_denied_total",
			Help: "Operations rejected by the role gate",
		}, []string{"operation"}),
		IngestedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "issuance_ingested_events_total",
			Help: "Ingested ledger events by name and outcome",
		}, []string{"event", "outcome"}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "issuance_rate_limited_total",
			Help: "Requests rejected by the per-principal rate limit",
		}, []string{"class"}),
		EndpointLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "issuance_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}
