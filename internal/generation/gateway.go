package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/circuitbreaker"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/metrics"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/tracing"
)

// Provider is a hosted model reachable through a single completion call.
type Provider interface {
	Name() string
	Complete(ctx context.Context, msgs Messages) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, msgs Messages) (string, error)

func (f ProviderFunc) Name() string { return "func" }

func (f ProviderFunc) Complete(ctx context.Context, msgs Messages) (string, error) {
	return f(ctx, msgs)
}

// Generator is the capability consumed by sub-agents and calendar windows.
type Generator interface {
	Generate(ctx context.Context, req Request, timeout time.Duration) Result
}

// Options tunes a Gateway.
type Options struct {
	// Structured requests the provider's JSON mode and parses replies as
	// JSON objects before handing them back.
	Structured bool
	// RequestsPerSecond limits call rate; zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// DefaultTimeout applies when Generate is called with a zero timeout.
	DefaultTimeout time.Duration
}

// Gateway runs each call on its own goroutine so the caller's deadline holds
// regardless of what the provider's I/O is doing.
type Gateway struct {
	provider Provider
	opts     Options
	limiter  *rate.Limiter
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewGateway wraps provider.
func NewGateway(provider Provider, opts Options, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 600 * time.Second
	}
	g := &Gateway{provider: provider, opts: opts, logger: logger}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	name := "llm-" + provider.Name()
	g.breaker = circuitbreaker.NewCircuitBreaker(name, circuitbreaker.GetHTTPConfig("llm").ToConfig(), logger)
	circuitbreaker.GlobalMetricsCollector.RegisterCircuitBreaker(name, "generation", g.breaker)
	return g
}

type reply struct {
	text string
	err  error
}

// Generate performs one call. It returns within timeout (or when ctx is done)
// even if the provider does not; in that case the in-flight call is left to
// finish against its own deadline and its reply is discarded.
func (g *Gateway) Generate(ctx context.Context, req Request, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = g.opts.DefaultTimeout
	}
	start := time.Now()
	provider := g.provider.Name()

	msgs, err := req.Render()
	if err != nil {
		metrics.RecordGenerationMetrics(provider, "failed", 0)
		return Failed(err)
	}
	msgs.JSON = g.opts.Structured

	ctx, span := tracing.StartSpan(ctx, "generation.generate", "prompt", req.Name, "provider", provider)
	defer span.End()

	// The worker context keeps request-scoped values but not the caller's
	// cancellation; only the deadline stops it.
	workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	done := make(chan reply, 1)
	go func() {
		defer cancel()
		text, err := g.call(workCtx, msgs)
		done <- reply{text: text, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res Result
	select {
	case r := <-done:
		res = g.classify(r)
	case <-timer.C:
		res = Failed(ErrTimeout)
	case <-ctx.Done():
		res = Failed(ctx.Err())
	}

	elapsed := time.Since(start)
	outcome := res.Kind.String()
	if res.TimedOut() {
		outcome = "timeout"
	}
	metrics.RecordGenerationMetrics(provider, outcome, elapsed.Seconds())

	fields := []zap.Field{
		zap.String("prompt", req.Name),
		zap.String("provider", provider),
		zap.String("result", outcome),
		zap.Duration("duration", elapsed),
	}
	if res.Kind == KindFailed {
		g.logger.Warn("Generation call failed", append(fields, zap.Error(res.Err))...)
	} else {
		g.logger.Debug("Generation call completed", fields...)
	}
	return res
}

func (g *Gateway) call(ctx context.Context, msgs Messages) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}
	var text string
	err := g.breaker.Execute(ctx, func() error {
		var err error
		text, err = g.provider.Complete(ctx, msgs)
		return err
	})
	return text, err
}

func (g *Gateway) classify(r reply) Result {
	if r.err != nil {
		if errors.Is(r.err, context.DeadlineExceeded) {
			return Failed(fmt.Errorf("%w: %v", ErrTimeout, r.err))
		}
		return Failed(r.err)
	}
	text := strings.TrimSpace(r.text)
	if text == "" {
		return Failed(ErrEmptyResponse)
	}
	if !g.opts.Structured {
		return RawText(r.text)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(text), &record); err != nil || record == nil {
		return RawText(r.text)
	}
	return Structured(record)
}
