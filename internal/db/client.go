// Package db is the campaign store: campaigns with their analysis and
// calendar documents, plus an append-only progress event log.
package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/circuitbreaker"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds database configuration
type Config struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	MaxConnections  int           `mapstructure:"max_connections"`
	IdleConnections int           `mapstructure:"idle_connections"`
	MaxLifetime     time.Duration `mapstructure:"max_lifetime"`
	EventWorkers    int           `mapstructure:"event_workers"`
	EventQueue      int           `mapstructure:"event_queue"`
}

// DSN returns the driver-specific connection string.
func (c *Config) DSN() string {
	if c.Driver == DriverSQLite {
		return c.Path + "?_foreign_keys=on&_busy_timeout=5000"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *Config) applyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 25
	}
	if c.IdleConnections == 0 {
		c.IdleConnections = 5
	}
	if c.MaxLifetime == 0 {
		c.MaxLifetime = 5 * time.Minute
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.Path == "" {
		c.Path = "brandcast.db"
	}
	if c.EventWorkers <= 0 {
		c.EventWorkers = 2
	}
	if c.EventQueue <= 0 {
		c.EventQueue = 256
	}
	if c.Driver == DriverSQLite {
		// One writer at a time.
		c.MaxConnections = 1
	}
}

// Client manages database connections and operations
type Client struct {
	db     *circuitbreaker.DatabaseWrapper
	logger *zap.Logger
	driver string

	// Event log writes are asynchronous.
	eventQueue chan *EventLog
	workers    int
	stopCh     chan struct{}
	workerWg   sync.WaitGroup
	closeOnce  sync.Once
}

// NewClient opens, pings and wraps the configured database.
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	config.applyDefaults()
	switch config.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}

	raw, err := sqlx.Open(config.Driver, config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	raw.SetMaxOpenConns(config.MaxConnections)
	raw.SetMaxIdleConns(config.IdleConnections)
	raw.SetConnMaxLifetime(config.MaxLifetime)

	client := NewClientFromDB(raw, config, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.db.PingContext(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database client initialized",
		zap.String("driver", config.Driver),
		zap.String("host", config.Host),
		zap.Int("max_connections", config.MaxConnections),
		zap.Int("event_workers", client.workers),
	)
	return client, nil
}

// NewClientFromDB wraps an open handle. Used directly by tests.
func NewClientFromDB(raw *sqlx.DB, config *Config, logger *zap.Logger) *Client {
	if config == nil {
		config = &Config{Driver: raw.DriverName()}
	}
	config.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		db:         circuitbreaker.NewDatabaseWrapper(raw, logger),
		logger:     logger,
		driver:     raw.DriverName(),
		eventQueue: make(chan *EventLog, config.EventQueue),
		workers:    config.EventWorkers,
		stopCh:     make(chan struct{}),
	}
	for i := 0; i < c.workers; i++ {
		c.workerWg.Add(1)
		go c.eventWorker(i)
	}
	return c
}

func (c *Client) eventWorker(id int) {
	defer c.workerWg.Done()
	for {
		select {
		case <-c.stopCh:
			c.drainQueue()
			c.logger.Debug("Event worker stopped", zap.Int("worker_id", id))
			return
		case e := <-c.eventQueue:
			c.writeEvent(e)
		}
	}
}

func (c *Client) writeEvent(e *EventLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.SaveEventLog(ctx, e); err != nil {
		c.logger.Warn("Failed to persist progress event",
			zap.String("campaign_id", e.CampaignID),
			zap.String("type", e.Type),
			zap.Error(err),
		)
	}
}

// drainQueue writes what is left during shutdown.
func (c *Client) drainQueue() {
	timeout := time.After(10 * time.Second)
	for {
		select {
		case e := <-c.eventQueue:
			c.writeEvent(e)
		case <-timeout:
			c.logger.Warn("Timeout draining event queue")
			return
		default:
			return
		}
	}
}

// QueueEvent adds an event to the async queue, writing synchronously when
// the queue is full.
func (c *Client) QueueEvent(e *EventLog) {
	select {
	case <-c.stopCh:
		return
	default:
	}
	select {
	case c.eventQueue <- e:
	default:
		c.logger.Warn("Event queue is full, falling back to synchronous write")
		c.writeEvent(e)
	}
}

// Ping checks connectivity through the breaker.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close stops the event workers and closes the handle.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stopCh)
		c.workerWg.Wait()
		if cerr := c.db.Close(); cerr != nil {
			err = fmt.Errorf("failed to close database: %w", cerr)
		}
		c.logger.Info("Database client closed")
	})
	return err
}

// Wrapper returns the underlying DatabaseWrapper for health checks and monitoring
func (c *Client) Wrapper() *circuitbreaker.DatabaseWrapper {
	return c.db
}
