package metrics

import "github.com/prometheus/client_golang/prometheus"

// Per-agent query pipeline Prometheus metrics. These mirror the
// per-agent trackers for dashboard scraping; the trackers remain the
// authoritative in-process state.
var (
	AgentQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragfolio",
			Name:      "agent_queries_total",
			Help:      "Total queries per agent and outcome",
		},
		[]string{"agent", "outcome"}, // outcome: answered / blocked / failed
	)

	AgentQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragfolio",
			Name:      "agent_query_duration_seconds",
			Help:      "End-to-end query duration per agent in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"agent"},
	)

	InjectionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragfolio",
			Name:      "injection_attempts_total",
			Help:      "Queries rejected by the injection guard per agent and rule",
		},
		[]string{"agent", "rule"},
	)

	IndexRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragfolio",
			Name:      "index_rebuilds_total",
			Help:      "Index rebuilds per agent and status",
		},
		[]string{"agent", "status"}, // status: success / failure
	)

	IndexRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ragfolio",
			Name:      "index_records",
			Help:      "Records in the current snapshot per agent",
		},
		[]string{"agent"},
	)
)

var queryMetricsRegistered bool

// RegisterQueryMetrics registers the query pipeline collectors. Called
// once from main.
func RegisterQueryMetrics() {
	if queryMetricsRegistered {
		return
	}
	prometheus.MustRegister(AgentQueriesTotal)
	prometheus.MustRegister(AgentQueryDuration)
	prometheus.MustRegister(InjectionAttemptsTotal)
	prometheus.MustRegister(IndexRebuildsTotal)
	prometheus.MustRegister(IndexRecords)
	queryMetricsRegistered = true
}
