package middleware

import "sync"

// circuitBreaker switches the limiter to its fallback store after
// failureThreshold consecutive primary errors and back after
// successThreshold consecutive primary successes.
type circuitBreaker struct {
	mu               sync.Mutex
	open             bool
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
}

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{failureThreshold: 5, successThreshold: 3}
}

func (c *circuitBreaker) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// RecordFailure returns true when the circuit is open afterwards.
func (c *circuitBreaker) RecordFailure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	c.successes = 0
	if c.failures >= c.failureThreshold {
		c.open = true
	}
	return c.open
}

// RecordSuccess returns true when the circuit is closed afterwards.
func (c *circuitBreaker) RecordSuccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		c.failures = 0
		return true
	}
	c.successes++
	if c.successes >= c.successThreshold {
		c.open = false
		c.failures = 0
		c.successes = 0
	}
	return !c.open
}
