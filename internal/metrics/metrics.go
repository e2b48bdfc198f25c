package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	admittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "market_admission_admitted_total",
		Help: "Total number of requests admitted by the security gate",
	})
	rejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "market_admission_rejected_total",
		Help: "Total number of requests rejected by the security gate, by event kind",
	}, []string{"kind"})
	delayedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "market_admission_delayed_total",
		Help: "Total number of requests slowed down by the progressive delay stage",
	})
	delaySeconds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "market_admission_delay_seconds_total",
		Help: "Cumulative artificial delay inserted by the progressive delay stage",
	})
	autoBlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "market_security_auto_blocked_total",
		Help: "Total number of addresses auto-blocked by the risk feedback loop",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(admittedTotal, rejectedTotal, delayedTotal, delaySeconds, autoBlockedTotal)
}

// IncAdmitted increments the admitted requests counter.
func IncAdmitted() { admittedTotal.Inc() }

// IncRejected increments the rejected requests counter for the given kind.
func IncRejected(kind string) { rejectedTotal.WithLabelValues(kind).Inc() }

// ObserveDelay records one slowed-down request and its inserted delay.
func ObserveDelay(seconds float64) {
	delayedTotal.Inc()
	delaySeconds.Add(seconds)
}

// IncAutoBlocked increments the auto-blocked addresses counter.
func IncAutoBlocked() { autoBlockedTotal.Inc() }
