package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CheckConfig overrides a registered checker by name.
type CheckConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Critical bool          `mapstructure:"critical"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Config contains health check configuration
type Config struct {
	CheckInterval time.Duration          `mapstructure:"check_interval"`
	Checks        map[string]CheckConfig `mapstructure:"checks"`
}

type checkerState struct {
	checker  Checker
	enabled  bool
	timeout  time.Duration
	critical bool
}

// Manager runs registered checkers on demand and in the background.
type Manager struct {
	mu          sync.RWMutex
	checkers    map[string]*checkerState
	lastResults map[string]CheckResult
	config      Config
	started     bool
	stopCh      chan struct{}
	logger      *zap.Logger
}

// NewManager creates a new health manager
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		checkers:    make(map[string]*checkerState),
		lastResults: make(map[string]CheckResult),
		config:      cfg,
		stopCh:      make(chan struct{}),
		logger:      logger,
	}
}

// RegisterChecker registers a health check
func (m *Manager) RegisterChecker(checker Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := checker.Name()
	if name == "" {
		return fmt.Errorf("checker name cannot be empty")
	}
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("checker %s already registered", name)
	}

	state := &checkerState{
		checker:  checker,
		enabled:  true,
		timeout:  checker.Timeout(),
		critical: checker.IsCritical(),
	}
	if override, ok := m.config.Checks[name]; ok {
		state.enabled = override.Enabled
		state.critical = override.Critical
		if override.Timeout > 0 {
			state.timeout = override.Timeout
		}
	}

	m.checkers[name] = state
	m.logger.Info("Health checker registered",
		zap.String("checker", name),
		zap.Bool("enabled", state.enabled),
		zap.Bool("critical", state.critical),
		zap.Duration("timeout", state.timeout),
	)
	return nil
}

// GetDetailedHealth runs every enabled checker concurrently.
func (m *Manager) GetDetailedHealth(ctx context.Context) DetailedHealth {
	m.mu.RLock()
	states := make([]*checkerState, 0, len(m.checkers))
	for _, state := range m.checkers {
		if state.enabled {
			states = append(states, state)
		}
	}
	m.mu.RUnlock()

	results := make([]CheckResult, len(states))
	var g errgroup.Group
	for i, state := range states {
		g.Go(func() error {
			results[i] = runCheck(ctx, state)
			return nil
		})
	}
	_ = g.Wait()

	components := make(map[string]CheckResult, len(results))
	for _, r := range results {
		components[r.Component] = r
	}

	m.mu.Lock()
	for name, result := range components {
		m.lastResults[name] = result
	}
	m.mu.Unlock()

	return report(components)
}

// GetOverallHealth returns the overall health status
func (m *Manager) GetOverallHealth(ctx context.Context) OverallHealth {
	start := time.Now()
	overall := m.GetDetailedHealth(ctx).Overall
	overall.Duration = time.Since(start)
	return overall
}

// IsReady returns true if the service is ready to serve requests
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallHealth(ctx).Ready
}

// GetLastResults returns the most recent health check results without running new checks
func (m *Manager) GetLastResults() map[string]CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]CheckResult, len(m.lastResults))
	for name, result := range m.lastResults {
		results[name] = result
	}
	return results
}

// Start begins background health checking
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go m.backgroundChecker(ctx)

	m.logger.Info("Health manager started",
		zap.Duration("check_interval", m.config.CheckInterval),
		zap.Int("registered_checkers", len(m.checkers)),
	)
}

// Stop stops background health checking
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	close(m.stopCh)
	m.started = false
	m.logger.Info("Health manager stopped")
}

func (m *Manager) backgroundChecker(ctx context.Context) {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			detailed := m.GetDetailedHealth(checkCtx)
			cancel()
			if detailed.Overall.Status != StatusHealthy {
				m.logger.Warn("Background health check",
					zap.String("status", detailed.Overall.Status.String()),
					zap.String("message", detailed.Overall.Message),
				)
			}
		}
	}
}

func runCheck(ctx context.Context, state *checkerState) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, state.timeout)
	defer cancel()

	startTime := time.Now()
	result := state.checker.Check(checkCtx)
	result.Component = state.checker.Name()
	result.Critical = state.critical
	result.Duration = time.Since(startTime)
	result.Timestamp = startTime
	return result
}

// report derives the overall status from component results.
func report(components map[string]CheckResult) DetailedHealth {
	summary := summarize(components)
	return DetailedHealth{
		Overall:    overallStatus(components, summary),
		Components: components,
		Summary:    summary,
		Timestamp:  time.Now(),
	}
}

func overallStatus(components map[string]CheckResult, summary HealthSummary) OverallHealth {
	now := time.Now()
	if summary.Total == 0 {
		return OverallHealth{
			Status:    StatusUnknown,
			Message:   "No health checks registered",
			Timestamp: now,
			Ready:     true,
			Live:      true,
		}
	}

	criticalFailures := 0
	nonCriticalFailures := 0
	degradedComponents := 0
	for _, result := range components {
		switch {
		case result.Status == StatusDegraded:
			degradedComponents++
		case result.Status == StatusUnhealthy && result.Critical:
			criticalFailures++
		case result.Status == StatusUnhealthy:
			nonCriticalFailures++
		}
	}

	// Liveness never depends on dependencies.
	overall := OverallHealth{Timestamp: now, Live: true, Ready: true}
	switch {
	case criticalFailures > 0:
		overall.Status = StatusUnhealthy
		overall.Message = fmt.Sprintf("%d critical component(s) failing", criticalFailures)
		overall.Ready = false
	case degradedComponents > 0:
		overall.Status = StatusDegraded
		overall.Message = fmt.Sprintf("%d component(s) degraded", degradedComponents)
	case nonCriticalFailures > 0:
		overall.Status = StatusDegraded
		overall.Message = fmt.Sprintf("%d non-critical component(s) failing", nonCriticalFailures)
	default:
		overall.Status = StatusHealthy
		overall.Message = fmt.Sprintf("All %d components healthy", summary.Total)
	}
	overall.Degraded = overall.Status == StatusDegraded
	return overall
}
