package opts

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// DefaultGenerationTimeout bounds an analysis or calendar activity started
// without an explicit timeout. It covers the default calendar of six
// sequential windows at ten minutes each.
const DefaultGenerationTimeout = 2 * time.Hour

// StoreActivityOptions returns activity options for campaign store writes
func StoreActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}
}

// GenerationActivityOptions returns activity options for LLM-backed work.
// The coordinators already absorb per-stage and per-window failures, so a
// retry only covers worker loss.
func GenerationActivityOptions(timeout time.Duration) workflow.ActivityOptions {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	}
}

// PublishActivityOptions returns activity options for Telegram delivery
func PublishActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	}
}

// EventActivityOptions returns activity options for best-effort progress events
func EventActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
}

// WithStoreOptions applies StoreActivityOptions to a context
func WithStoreOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, StoreActivityOptions())
}

// WithGenerationOptions applies GenerationActivityOptions to a context
func WithGenerationOptions(ctx workflow.Context, timeout time.Duration) workflow.Context {
	return workflow.WithActivityOptions(ctx, GenerationActivityOptions(timeout))
}

// WithPublishOptions applies PublishActivityOptions to a context
func WithPublishOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, PublishActivityOptions())
}

// WithEventOptions applies EventActivityOptions to a context
func WithEventOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, EventActivityOptions())
}
