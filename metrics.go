package authcore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. All collectors are
// registered once at Build time; counters are safe for concurrent use.
type Metrics struct {
	loginAttempts     *prometheus.CounterVec
	refreshRotations  prometheus.Counter
	refreshReuse      prometheus.Counter
	sessionEvictions  prometheus.Counter
	otpIssued         *prometheus.CounterVec
	otpThrottled      *prometheus.CounterVec
	otpVerifications  *prometheus.CounterVec
	registrations     *prometheus.CounterVec
	passwordResets    prometheus.Counter
	enqueueFailures   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "refresh_rotations_total",
			Help:      "Successful refresh-token rotations.",
		}),
		refreshReuse: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "refresh_reuse_detected_total",
			Help:      "Rotated-out refresh tokens presented again; each one triggers full revocation.",
		}),
		sessionEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "session_evictions_total",
			Help:      "Refresh records evicted at the concurrent-session bound.",
		}),
		otpIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "otp_issued_total",
			Help:      "One-time passcodes issued, by purpose.",
		}, []string{"purpose"}),
		otpThrottled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "otp_requests_throttled_total",
			Help:      "One-time passcode requests rejected by the issuance budget, by purpose.",
		}, []string{"purpose"}),
		otpVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "otp_verifications_total",
			Help:      "One-time passcode verifications, by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		passwordResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "password_resets_total",
			Help:      "Completed password resets.",
		}),
		enqueueFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "task_enqueue_failures_total",
			Help:      "Best-effort notification enqueues that failed and were dropped.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.loginAttempts,
			m.refreshRotations,
			m.refreshReuse,
			m.sessionEvictions,
			m.otpIssued,
			m.otpThrottled,
			m.otpVerifications,
			m.registrations,
			m.passwordResets,
			m.enqueueFailures,
		)
	}
	return m
}
