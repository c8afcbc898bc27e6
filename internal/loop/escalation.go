package loop

import (
	"time"

	"github.com/sony/gobreaker"
)

// DefaultAiErrorThreshold is the number of consecutive agent process
// failures that escalates the run to an AI error stop.
const DefaultAiErrorThreshold = 3

// newAgentBreaker builds the circuit breaker that escalates repeated
// agent process failures. A single flaky invocation is tolerated;
// threshold consecutive failures trips the breaker and the run stops
// with StopAiError instead of burning the remaining iteration budget.
func newAgentBreaker(threshold int) *gobreaker.CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultAiErrorThreshold
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "agent",
		Interval: 0,
		// The breaker never half-opens within a run; once tripped the
		// run is over.
		Timeout: 24 * time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
	})
}
