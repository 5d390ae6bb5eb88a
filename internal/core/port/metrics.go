package port

// SecurityMetrics records access-control outcomes.
type SecurityMetrics interface {
	ObserveDecision(permission string, allowed bool)
	ObserveCacheLookup(hit bool)
	IncResolverError()
	IncFailedAttempt()
	IncLockout()
	IncRateLimited(scope string)
}

// NoopSecurityMetrics discards every observation.
type NoopSecurityMetrics struct{}

func (NoopSecurityMetrics) ObserveDecision(string, bool) {}
func (NoopSecurityMetrics) ObserveCacheLookup(bool)      {}
func (NoopSecurityMetrics) IncResolverError()            {}
func (NoopSecurityMetrics) IncFailedAttempt()            {}
func (NoopSecurityMetrics) IncLockout()                  {}
func (NoopSecurityMetrics) IncRateLimited(string)        {}
