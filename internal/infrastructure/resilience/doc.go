// Package resilience provides the circuit breaker that guards the upstream
// origin.
//
// When the upstream keeps failing, the breaker opens and calls fail fast
// with ErrCircuitOpen. The offline worker treats that like any other network
// error and answers from its cache bucket, so an unreachable origin costs one
// cache lookup instead of a connect timeout per request.
//
// States:
//   - Closed: calls pass through and failures are counted
//   - Open: calls are rejected until Timeout elapses
//   - Half-open: up to MaxRequests probe calls decide whether to close again
//
// Example Usage:
//
//	breaker := resilience.New("upstream", resilience.Settings{
//		Timeout:     30 * time.Second,
//		ReadyToTrip: resilience.ConsecutiveFailures(5),
//	})
//	resp, err := resilience.Call(breaker, func() (*Response, error) {
//		return fetch(ctx, req)
//	})
package resilience
