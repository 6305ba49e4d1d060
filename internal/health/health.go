package health

import (
	"context"
	"sync"
	"time"
)

// Status is the coarse health of one dependency
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check probes a single dependency
type Check interface {
	Name() string
	Check(ctx context.Context) Result
}

// Result is the outcome of one probe
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Checker runs registered checks in parallel
type Checker struct {
	mu     sync.RWMutex
	checks []Check
}

// NewChecker creates an empty checker
func NewChecker() *Checker {
	return &Checker{checks: make([]Check, 0)}
}

// Register adds a check
func (c *Checker) Register(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// Check runs all registered checks concurrently
func (c *Checker) Check(ctx context.Context) map[string]Result {
	c.mu.RLock()
	checks := make([]Check, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	results := make(map[string]Result)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, ch := range checks {
		wg.Add(1)
		go func(ch Check) {
			defer wg.Done()
			start := time.Now()
			res := ch.Check(ctx)
			res.Duration = time.Since(start)
			mu.Lock()
			results[ch.Name()] = res
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	return results
}

// Overall folds individual results into one status
func (c *Checker) Overall(results map[string]Result) Status {
	hasDegraded := false
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			hasDegraded = true
		}
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// Pinger is anything with a Ping method; most dependencies qualify
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes a dependency via Ping, marking slow responses degraded
type PingCheck struct {
	CheckName string
	Target    Pinger
	SlowAfter time.Duration
}

func (p *PingCheck) Name() string { return p.CheckName }

func (p *PingCheck) Check(ctx context.Context) Result {
	start := time.Now()
	err := p.Target.Ping(ctx)
	elapsed := time.Since(start)

	res := Result{Name: p.CheckName}
	switch {
	case err != nil:
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	case p.SlowAfter > 0 && elapsed > p.SlowAfter:
		res.Status = StatusDegraded
		res.Message = "responding slowly"
	default:
		res.Status = StatusHealthy
	}
	return res
}
