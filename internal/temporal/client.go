package temporal

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

// Config locates the Temporal frontend.
type Config struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`

	// Worker concurrency
	ActivityWorkers int `mapstructure:"activity_workers"`
	WorkflowWorkers int `mapstructure:"workflow_workers"`
}

// dialFunc is replaced in tests.
var dialFunc = client.Dial

// Dial waits for the frontend TCP endpoint, then dials the SDK client,
// backing off linearly up to 15s between attempts until ctx ends.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (client.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	waitForTCP(ctx, cfg.HostPort, logger)

	opts := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    NewZapAdapter(logger),
	}
	for attempt := 1; ; attempt++ {
		c, err := dialFunc(opts)
		if err == nil {
			logger.Info("Connected to Temporal", zap.String("host", cfg.HostPort), zap.Int("attempt", attempt))
			return c, nil
		}
		delay := time.Duration(attempt) * time.Second
		if delay > 15*time.Second {
			delay = 15 * time.Second
		}
		logger.Warn("Temporal not ready, retrying",
			zap.Int("attempt", attempt),
			zap.String("host", cfg.HostPort),
			zap.Duration("sleep", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial temporal %s: %w", cfg.HostPort, ctx.Err())
		case <-time.After(delay):
		}
	}
}

func waitForTCP(ctx context.Context, host string, logger *zap.Logger) {
	for i := 1; i <= 60; i++ {
		c, err := net.DialTimeout("tcp", host, 2*time.Second)
		if err == nil {
			_ = c.Close()
			return
		}
		logger.Warn("Waiting for Temporal TCP endpoint", zap.String("host", host), zap.Int("attempt", i))
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
