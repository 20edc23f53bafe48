package health

import (
	"context"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/circuitbreaker"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/db"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/vectordb"
)

// slowThreshold marks a reachable dependency as degraded.
const slowThreshold = 250 * time.Millisecond

// pingChecker is the shared shape of every dependency check: an optional
// breaker probe followed by a ping.
type pingChecker struct {
	name        string
	critical    bool
	timeout     time.Duration
	breakerOpen func() bool
	ping        func(ctx context.Context) error
	details     func() map[string]interface{}
}

func (p *pingChecker) Name() string           { return p.name }
func (p *pingChecker) IsCritical() bool       { return p.critical }
func (p *pingChecker) Timeout() time.Duration { return p.timeout }

func (p *pingChecker) Check(ctx context.Context) CheckResult {
	startTime := time.Now()
	result := CheckResult{
		Component: p.name,
		Critical:  p.critical,
		Timestamp: startTime,
	}

	if p.breakerOpen != nil && p.breakerOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = p.name + " circuit breaker is open"
		result.Duration = time.Since(startTime)
		return result
	}

	err := p.ping(ctx)
	result.Duration = time.Since(startTime)
	result.Details = map[string]interface{}{"latency_ms": result.Duration.Milliseconds()}
	if p.details != nil {
		for k, v := range p.details() {
			result.Details[k] = v
		}
	}

	switch {
	case err != nil:
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = p.name + " ping failed"
	case result.Duration > slowThreshold:
		result.Status = StatusDegraded
		result.Message = p.name + " responding but with high latency"
	default:
		result.Status = StatusHealthy
		result.Message = p.name + " healthy"
	}
	return result
}

// NewDatabaseChecker checks the campaign store. Critical.
func NewDatabaseChecker(store *db.Client) Checker {
	w := store.Wrapper()
	return &pingChecker{
		name:        "database",
		critical:    true,
		timeout:     5 * time.Second,
		breakerOpen: w.IsCircuitBreakerOpen,
		ping:        store.Ping,
		details: func() map[string]interface{} {
			stats := w.GetDB().Stats()
			return map[string]interface{}{
				"open_connections":     stats.OpenConnections,
				"max_open_connections": stats.MaxOpenConnections,
				"in_use_connections":   stats.InUse,
			}
		},
	}
}

// NewEmbeddingCacheChecker checks the Redis embedding cache. A cache outage
// only costs recomputation, so it is not critical.
func NewEmbeddingCacheChecker(w *circuitbreaker.RedisWrapper) Checker {
	return &pingChecker{
		name:        "embedding_cache",
		timeout:     3 * time.Second,
		breakerOpen: w.IsCircuitBreakerOpen,
		ping:        func(ctx context.Context) error { return w.Ping(ctx).Err() },
	}
}

// NewStreamChecker checks the Redis instance that mirrors progress events.
func NewStreamChecker(rdb *redisv9.Client) Checker {
	return &pingChecker{
		name:    "event_stream",
		timeout: 3 * time.Second,
		ping:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
}

// NewVectorStoreChecker checks Qdrant. Retrieval degrades to empty context
// when it is down, so it is not critical.
func NewVectorStoreChecker(vc *vectordb.Client) Checker {
	return &pingChecker{
		name:        "vector_store",
		timeout:     5 * time.Second,
		breakerOpen: vc.IsCircuitBreakerOpen,
		ping:        vc.Ping,
	}
}

// NewTemporalChecker checks the Temporal frontend. Critical.
func NewTemporalChecker(c client.Client) Checker {
	return &pingChecker{
		name:     "temporal",
		critical: true,
		timeout:  5 * time.Second,
		ping: func(ctx context.Context) error {
			_, err := c.CheckHealth(ctx, &client.CheckHealthRequest{})
			return err
		},
	}
}

// CustomHealthChecker allows for custom health check logic
type CustomHealthChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	checkFn  func(ctx context.Context) CheckResult
}

// NewCustomHealthChecker creates a custom health checker
func NewCustomHealthChecker(name string, critical bool, timeout time.Duration, checkFn func(ctx context.Context) CheckResult) *CustomHealthChecker {
	return &CustomHealthChecker{
		name:     name,
		critical: critical,
		timeout:  timeout,
		checkFn:  checkFn,
	}
}

func (c *CustomHealthChecker) Name() string           { return c.name }
func (c *CustomHealthChecker) IsCritical() bool       { return c.critical }
func (c *CustomHealthChecker) Timeout() time.Duration { return c.timeout }

func (c *CustomHealthChecker) Check(ctx context.Context) CheckResult {
	return c.checkFn(ctx)
}
