package observability

import (
	"sync"
	"time"
)

// Attempt is one recorded authentication outcome.
type Attempt struct {
	At            time.Time
	Success       bool
	Confidence    float32
	DetectionTime time.Duration
}

// Stats is an aggregate snapshot of attempt outcomes.
type Stats struct {
	TotalAttempts   int     `json:"total_attempts"`
	SuccessfulAuths int     `json:"successful_auths"`
	FailedAuths     int     `json:"failed_auths"`
	Accuracy        float64 `json:"accuracy"`
}

// Collector keeps a bounded in-memory history of attempt outcomes and
// mirrors them into the Prometheus collectors. It satisfies the
// engine's metrics sink contract: recording never blocks on I/O and
// never returns an error.
type Collector struct {
	mu         sync.Mutex
	maxSamples int
	attempts   []Attempt
	total      int
	successes  int
	failures   int
	now        func() time.Time
}

func NewCollector(maxSamples int) *Collector {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	return &Collector{maxSamples: maxSamples, now: time.Now}
}

// RecordAttempt logs one authentication attempt outcome.
func (c *Collector) RecordAttempt(success bool, confidence float32, detectionTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts = append(c.attempts, Attempt{
		At:            c.now(),
		Success:       success,
		Confidence:    confidence,
		DetectionTime: detectionTime,
	})
	if len(c.attempts) > c.maxSamples {
		c.attempts = c.attempts[len(c.attempts)-c.maxSamples:]
	}

	c.total++
	if success {
		c.successes++
		AuthAttempts.WithLabelValues("success").Inc()
		if detectionTime > 0 {
			VerificationDuration.Observe(detectionTime.Seconds())
		}
	} else {
		c.failures++
		AuthAttempts.WithLabelValues("failure").Inc()
	}
}

// CurrentStats returns overall counters and success ratio.
func (c *Collector) CurrentStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		TotalAttempts:   c.total,
		SuccessfulAuths: c.successes,
		FailedAuths:     c.failures,
	}
	if c.total > 0 {
		s.Accuracy = float64(c.successes) / float64(c.total) * 100
	}
	return s
}

// RecentConfidences returns confidence scores recorded within the window.
func (c *Collector) RecentConfidences(window time.Duration) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-window)
	var out []float32
	for _, a := range c.attempts {
		if a.At.After(cutoff) {
			out = append(out, a.Confidence)
		}
	}
	return out
}
