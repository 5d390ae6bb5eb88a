package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/payroll-access/internal/core/port"
)

// SecurityMetricsOptions configures collector registration.
type SecurityMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// SecurityMetrics exposes Prometheus collectors for access-control decisions.
type SecurityMetrics struct {
	Decisions      *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	ResolverErrors prometheus.Counter
	FailedAttempts prometheus.Counter
	Lockouts       prometheus.Counter
	RateLimited    *prometheus.CounterVec
}

// NewSecurityMetrics constructs and registers the collectors. Re-registration
// against the same registerer reuses the existing collectors.
func NewSecurityMetrics(opts SecurityMetricsOptions) (*SecurityMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "payroll"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	decisions, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "access",
		Name:      "decisions_total",
		Help:      "Permission decisions partitioned by permission and outcome.",
	}, []string{"permission", "decision"}))
	if err != nil {
		return nil, err
	}

	cacheLookups, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "access",
		Name:      "permission_cache_lookups_total",
		Help:      "Permission cache lookups partitioned by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	resolverErrors, err := registerCollector(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "access",
		Name:      "resolver_errors_total",
		Help:      "Permission resolutions that failed and were denied.",
	}))
	if err != nil {
		return nil, err
	}

	failedAttempts, err := registerCollector(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "failed_attempts_total",
		Help:      "Failed login attempts counted against accounts.",
	}))
	if err != nil {
		return nil, err
	}

	lockouts, err := registerCollector(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "lockouts_total",
		Help:      "Accounts locked after crossing the failure threshold.",
	}))
	if err != nil {
		return nil, err
	}

	rateLimited, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by sliding window limits partitioned by scope.",
	}, []string{"scope"}))
	if err != nil {
		return nil, err
	}

	return &SecurityMetrics{
		Decisions:      decisions,
		CacheLookups:   cacheLookups,
		ResolverErrors: resolverErrors,
		FailedAttempts: failedAttempts,
		Lockouts:       lockouts,
		RateLimited:    rateLimited,
	}, nil
}

func registerCollector[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return collector, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, nil
}

// ObserveDecision counts one allow or deny.
func (m *SecurityMetrics) ObserveDecision(permission string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.Decisions.WithLabelValues(permission, decision).Inc()
}

// ObserveCacheLookup counts a permission cache hit or miss.
func (m *SecurityMetrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *SecurityMetrics) IncResolverError() {
	if m != nil {
		m.ResolverErrors.Inc()
	}
}

func (m *SecurityMetrics) IncFailedAttempt() {
	if m != nil {
		m.FailedAttempts.Inc()
	}
}

func (m *SecurityMetrics) IncLockout() {
	if m != nil {
		m.Lockouts.Inc()
	}
}

func (m *SecurityMetrics) IncRateLimited(scope string) {
	if m != nil {
		m.RateLimited.WithLabelValues(scope).Inc()
	}
}

var _ port.SecurityMetrics = (*SecurityMetrics)(nil)
