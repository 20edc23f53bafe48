package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DatabaseWrapper wraps the campaign store's sqlx handle with a circuit breaker.
// sql.ErrNoRows is a lookup result and never trips the breaker.
type DatabaseWrapper struct {
	db     *sqlx.DB
	cb     *CircuitBreaker
	name   string
	logger *zap.Logger
}

// NewDatabaseWrapper creates a database wrapper with circuit breaker
func NewDatabaseWrapper(db *sqlx.DB, logger *zap.Logger) *DatabaseWrapper {
	name := db.DriverName()
	cb := NewCircuitBreaker(name, GetDatabaseConfig().ToConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(name, "campaign-store", cb)
	return &DatabaseWrapper{db: db, cb: cb, name: name, logger: logger}
}

func (dw *DatabaseWrapper) guard(ctx context.Context, fn func() error) error {
	var opErr error
	cbErr := dw.cb.Execute(ctx, func() error {
		opErr = fn()
		if errors.Is(opErr, sql.ErrNoRows) {
			return nil
		}
		return opErr
	})
	GlobalMetricsCollector.RecordRequest(dw.name, "campaign-store", dw.cb.State(), cbErr == nil)
	if cbErr != nil && opErr == nil {
		return cbErr
	}
	return opErr
}

// PingContext wraps database ping with circuit breaker
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	return dw.guard(ctx, func() error { return dw.db.PingContext(ctx) })
}

// ExecContext wraps database exec with circuit breaker
func (dw *DatabaseWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	err := dw.guard(ctx, func() error {
		var err error
		res, err = dw.db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// NamedExecContext wraps sqlx named exec with circuit breaker
func (dw *DatabaseWrapper) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	var res sql.Result
	err := dw.guard(ctx, func() error {
		var err error
		res, err = dw.db.NamedExecContext(ctx, query, arg)
		return err
	})
	return res, err
}

// GetContext wraps sqlx single-row scan with circuit breaker
func (dw *DatabaseWrapper) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return dw.guard(ctx, func() error { return dw.db.GetContext(ctx, dest, query, args...) })
}

// SelectContext wraps sqlx multi-row scan with circuit breaker
func (dw *DatabaseWrapper) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return dw.guard(ctx, func() error { return dw.db.SelectContext(ctx, dest, query, args...) })
}

// Rebind converts ? placeholders to the driver's bindvar type
func (dw *DatabaseWrapper) Rebind(query string) string {
	return dw.db.Rebind(query)
}

// Close closes the underlying handle
func (dw *DatabaseWrapper) Close() error {
	return dw.db.Close()
}

// GetDB returns the underlying database handle
func (dw *DatabaseWrapper) GetDB() *sqlx.DB {
	return dw.db
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (dw *DatabaseWrapper) IsCircuitBreakerOpen() bool {
	return dw.cb.State() == StateOpen
}
