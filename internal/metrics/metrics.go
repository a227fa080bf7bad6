package metrics

import (
	"time"
)

// Collector receives operational measurements from the token manager and the banking API client.
// Implementations can export metrics to various backends (Prometheus, StatsD, etc.).
type Collector interface {
	// Banking API
	RecordAPICall(endpoint string, outcome string, duration time.Duration)
	RecordRetry(endpoint string, reason string)

	// Token lifecycle
	RecordRefresh(outcome string)

	// Circuit breaker
	RecordCircuitState(name string, state CircuitState)
}

// Outcomes used with RecordAPICall and RecordRefresh
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeExpired = "expired"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the service has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector is the default collector when metrics are not needed.
type NoOpCollector struct{}

func (NoOpCollector) RecordAPICall(endpoint string, outcome string, duration time.Duration) {}

func (NoOpCollector) RecordRetry(endpoint string, reason string) {}

func (NoOpCollector) RecordRefresh(outcome string) {}

func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}
