package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
)

const checkTimeout = 5 * time.Second

type Check interface {
	Name() string
	Check(ctx context.Context) error
}

type Status struct {
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	Error     string    `json:"error,omitempty"`
}

// Checker runs named checks periodically and keeps the latest result of each.
type Checker struct {
	mu       sync.RWMutex
	checks   map[string]Check
	status   map[string]Status
	interval time.Duration
}

func NewChecker(interval time.Duration) *Checker {
	return &Checker{
		checks:   make(map[string]Check),
		status:   make(map[string]Status),
		interval: interval,
	}
}

// Add registers a check. It counts as unhealthy until it first passes.
func (c *Checker) Add(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := check.Name()
	c.checks[name] = check
	c.status[name] = Status{Error: "not checked yet"}
	log.Debugf("added health check %s", name)
}

// Start runs all checks immediately and then on every tick until ctx ends.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.RunChecks(ctx)
	for {
		select {
		case <-ticker.C:
			c.RunChecks(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunChecks runs every check concurrently and waits for all of them.
func (c *Checker) RunChecks(ctx context.Context) {
	c.mu.RLock()
	checks := make([]Check, 0, len(c.checks))
	for _, check := range c.checks {
		checks = append(checks, check)
	}
	c.mu.RUnlock()

	var wg sync.WaitGroup
	for _, check := range checks {
		wg.Add(1)
		go func(check Check) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			err := check.Check(checkCtx)
			status := Status{Healthy: err == nil, LastCheck: time.Now()}
			if err != nil {
				status.Error = err.Error()
				log.Warnf("health check %s failed: %v", check.Name(), err)
			}

			c.mu.Lock()
			c.status[check.Name()] = status
			c.mu.Unlock()
		}(check)
	}
	wg.Wait()
}

func (c *Checker) Status() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Status, len(c.status))
	for name, status := range c.status {
		out[name] = status
	}

	return out
}

func (c *Checker) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, status := range c.status {
		if !status.Healthy {
			return false
		}
	}

	return true
}

type funcCheck struct {
	name string
	fn   func(ctx context.Context) error
}

func (f funcCheck) Name() string                    { return f.name }
func (f funcCheck) Check(ctx context.Context) error { return f.fn(ctx) }

func NewFunc(name string, fn func(ctx context.Context) error) Check {
	return funcCheck{name: name, fn: fn}
}

// Ledger passes while the node answers head queries.
func Ledger(head ledger.HeadReader) Check {
	return NewFunc("ledger", func(ctx context.Context) error {
		n, err := head.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to get head block: %w", err)
		}
		log.Debugf("ledger head at block %d", n)
		return nil
	})
}

// Registry passes once at least one oracle is registered.
func Registry(size func() int) Check {
	return NewFunc("registry", func(context.Context) error {
		if size() == 0 {
			return errors.New("no oracle registered")
		}
		return nil
	})
}
