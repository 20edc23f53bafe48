package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeKind says which watched resource changed.
type ChangeKind string

const (
	ChangeConfig    ChangeKind = "config"
	ChangeTemplates ChangeKind = "templates"
	ChangePolicies  ChangeKind = "policies"
)

// ChangeEvent represents a configuration change event
type ChangeEvent struct {
	Kind      ChangeKind
	File      string
	Action    string
	Timestamp time.Time

	// Config is the reloaded and validated config for ChangeConfig events.
	Config *Config
}

// ChangeHandler is called when a watched resource changes
type ChangeHandler func(event ChangeEvent) error

// Watcher reloads the config file, the prompt-template directory and the
// policy directory when they change on disk and notifies handlers. Events
// arriving within the debounce window are coalesced per kind.
type Watcher struct {
	configPath   string
	templatesDir string
	policiesDir  string
	debounce     time.Duration

	watcher  *fsnotify.Watcher
	handlers map[ChangeKind][]ChangeHandler
	pending  map[ChangeKind]*time.Timer
	logger   *zap.Logger
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// NewWatcher watches the directory holding cfg's file plus the template and
// policy directories named in cfg. Empty paths are skipped.
func NewWatcher(cfg *Config, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		configPath:   cfg.Path(),
		templatesDir: cfg.Templates.Dir,
		policiesDir:  cfg.Policy.Path,
		debounce:     250 * time.Millisecond,
		watcher:      fw,
		handlers:     make(map[ChangeKind][]ChangeHandler),
		pending:      make(map[ChangeKind]*time.Timer),
		logger:       logger,
	}

	dirs := map[string]bool{}
	if w.configPath != "" {
		dirs[filepath.Dir(w.configPath)] = true
	}
	if w.templatesDir != "" {
		dirs[filepath.Clean(w.templatesDir)] = true
	}
	if w.policiesDir != "" {
		dirs[filepath.Clean(w.policiesDir)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// OnChange registers a handler for one kind of change.
func (w *Watcher) OnChange(kind ChangeKind, handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = append(w.handlers[kind], handler)
}

// Run processes file events until ctx ends, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		for _, t := range w.pending {
			if t.Stop() {
				w.wg.Done()
			}
		}
		w.mu.Unlock()
		w.wg.Wait()
		_ = w.watcher.Close()
	}()

	w.logger.Info("Configuration watcher started",
		zap.String("config", w.configPath),
		zap.String("templates", w.templatesDir),
		zap.String("policies", w.policiesDir),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleWatchEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

// classify maps a path to the kind of resource it belongs to.
func (w *Watcher) classify(name string) (ChangeKind, bool) {
	clean := filepath.Clean(name)
	dir := filepath.Dir(clean)
	ext := filepath.Ext(clean)
	switch {
	case w.configPath != "" && clean == filepath.Clean(w.configPath):
		return ChangeConfig, true
	case w.templatesDir != "" && dir == filepath.Clean(w.templatesDir) && (ext == ".yaml" || ext == ".yml"):
		return ChangeTemplates, true
	case w.policiesDir != "" && dir == filepath.Clean(w.policiesDir) && ext == ".rego":
		return ChangePolicies, true
	}
	return "", false
}

func (w *Watcher) handleWatchEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	kind, ok := w.classify(event.Name)
	if !ok {
		return
	}

	action := "modify"
	switch {
	case event.Op.Has(fsnotify.Create):
		action = "create"
	case event.Op.Has(fsnotify.Remove):
		action = "delete"
	case event.Op.Has(fsnotify.Rename):
		action = "rename"
	}
	w.logger.Debug("File system event",
		zap.String("file", filepath.Base(event.Name)),
		zap.String("kind", string(kind)),
		zap.String("action", action),
	)

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[kind]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	w.pending[kind] = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.fire(kind, event.Name, action)
	})
}

// fire reloads the config when needed and runs the kind's handlers.
func (w *Watcher) fire(kind ChangeKind, file, action string) {
	evt := ChangeEvent{Kind: kind, File: file, Action: action, Timestamp: time.Now()}
	if kind == ChangeConfig {
		if action == "delete" || action == "rename" {
			w.logger.Warn("Configuration file removed; keeping the running config", zap.String("file", file))
			return
		}
		cfg, err := Load(w.configPath)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			w.logger.Error("Configuration reload rejected", zap.String("file", file), zap.Error(err))
			return
		}
		evt.Config = cfg
	}

	w.mu.Lock()
	handlers := append([]ChangeHandler(nil), w.handlers[kind]...)
	w.mu.Unlock()

	for _, h := range handlers {
		if err := h(evt); err != nil {
			w.logger.Error("Configuration handler error",
				zap.String("kind", string(kind)),
				zap.String("file", filepath.Base(file)),
				zap.Error(err),
			)
		}
	}
	w.logger.Info("Configuration change applied",
		zap.String("kind", string(kind)),
		zap.String("file", filepath.Base(file)),
		zap.String("action", action),
		zap.Int("handlers", len(handlers)),
	)
}
