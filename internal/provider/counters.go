package provider

import (
	"sync"
	"sync/atomic"
)

// Counters accumulate application activity between samples. Request and
// error counts are drained by each sample; response times form a running
// mean that only ResetResponseTimes clears.
type Counters struct {
	requests atomic.Int64
	errors   atomic.Int64

	mu            sync.Mutex
	responseSum   float64
	responseCount int64
}

// NewCounters creates zeroed counters
func NewCounters() *Counters {
	return &Counters{}
}

// RecordRequest counts one handled request
func (c *Counters) RecordRequest() {
	c.requests.Add(1)
}

// RecordError counts one failed request
func (c *Counters) RecordError() {
	c.errors.Add(1)
}

// RecordResponseTime adds one response time in milliseconds. Negative
// values are ignored.
func (c *Counters) RecordResponseTime(ms float64) {
	if ms < 0 {
		return
	}
	c.mu.Lock()
	c.responseSum += ms
	c.responseCount++
	c.mu.Unlock()
}

// Drain returns the request and error counts recorded since the previous
// drain and resets both to zero.
func (c *Counters) Drain() (requests, errors int64) {
	return c.requests.Swap(0), c.errors.Swap(0)
}

// Peek returns the request and error counts recorded since the previous
// drain without resetting them
func (c *Counters) Peek() (requests, errors int64) {
	return c.requests.Load(), c.errors.Load()
}

// AverageResponseTime returns the mean of every response time recorded
// since start or the last reset, 0 when none were recorded.
func (c *Counters) AverageResponseTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.responseCount == 0 {
		return 0
	}
	return c.responseSum / float64(c.responseCount)
}

// ResetResponseTimes clears the response time accumulator
func (c *Counters) ResetResponseTimes() {
	c.mu.Lock()
	c.responseSum = 0
	c.responseCount = 0
	c.mu.Unlock()
}

// ErrorRate converts counts into a percentage, 0 when there were no requests
func ErrorRate(requests, errors int64) float64 {
	if requests <= 0 {
		return 0
	}
	return float64(errors) / float64(requests) * 100
}
