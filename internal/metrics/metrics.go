package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FlowsStarted counts authorization attempts by platform.
	FlowsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetview_auth_flows_started_total",
			Help: "The total number of authorization flows started.",
		},
		[]string{"platform"},
	)

	// FlowsCompleted counts attempts that ended with a token.
	FlowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetview_auth_flows_completed_total",
			Help: "The total number of authorization flows that completed successfully.",
		},
		[]string{"platform"},
	)

	// FlowsFailed counts terminal failures by platform and reason.
	FlowsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetview_auth_flows_failed_total",
			Help: "The total number of authorization flows that failed.",
		},
		[]string{"platform", "reason"},
	)

	// CallbackRequests counts connections handled by the loopback
	// listener, by outcome.
	CallbackRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "budgetview_callback_requests_total",
			Help: "The total number of requests received by the loopback callback listener.",
		},
		[]string{"result"},
	)

	// StateMismatches counts callbacks whose CSRF state did not match
	// the current attempt. Mostly stray browser requests, but a forged
	// callback would land here too.
	StateMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "budgetview_callback_state_mismatch_total",
			Help: "The total number of callback requests ignored due to a state mismatch.",
		},
	)

	// ExchangeDuration is a histogram of token endpoint round trips.
	ExchangeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "budgetview_token_exchange_duration_seconds",
			Help:    "A histogram of token endpoint request duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"grant_type"},
	)
)
