package reasoning

import (
	"time"

	"github.com/slok/goresilience"
	"github.com/slok/goresilience/circuitbreaker"
	"github.com/slok/goresilience/timeout"
)

// The breaker watches a ten second window and opens once BreakerThreshold
// calls in it have all failed.
const (
	breakerBuckets      = 10
	breakerBucketLength = time.Second
	breakerErrorPercent = 99
)

// newRunner chains the circuit breaker around the per-call timeout, so a
// stalled call counts as a failure. A zero timeout or threshold leaves that
// middleware out.
func newRunner(cfg Config) goresilience.Runner {
	var chain []goresilience.Middleware
	if cfg.BreakerThreshold > 0 {
		chain = append(chain, circuitbreaker.NewMiddleware(circuitbreaker.Config{
			ErrorPercentThresholdToOpen:        breakerErrorPercent,
			MinimumRequestToOpen:               cfg.BreakerThreshold,
			SuccessfulRequiredOnHalfOpen:       1,
			WaitDurationInOpenState:            cfg.BreakerReset,
			MetricsSlidingWindowBucketQuantity: breakerBuckets,
			MetricsBucketDuration:              breakerBucketLength,
		}))
	}
	if cfg.Timeout > 0 {
		chain = append(chain, timeout.NewMiddleware(timeout.Config{Timeout: cfg.Timeout}))
	}
	return goresilience.RunnerChain(chain...)
}
