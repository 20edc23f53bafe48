package templates

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Registry maintains the prompt templates in memory. Builtin templates are
// loaded first; an override directory may replace them by name.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Entry
}

// Entry captures a loaded template alongside bookkeeping data.
type Entry struct {
	Template    *Template
	SourcePath  string
	ContentHash string
	LoadedAt    time.Time
}

// TemplateSummary exposes lightweight information about a registered template.
type TemplateSummary struct {
	Name        string
	Kind        Kind
	Version     string
	ContentHash string
	SourcePath  string
}

// ErrNotFound is returned for unknown template names.
var ErrNotFound = errors.New("template not found")

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]Entry)}
}

// Builtin returns a registry holding the embedded templates.
func Builtin() (*Registry, error) {
	r := NewRegistry()
	if err := r.LoadFS(builtinFS, "builtin"); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadFS loads every YAML template under root in fsys.
func (r *Registry) LoadFS(fsys fs.FS, root string) error {
	var failures []string
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", p, walkErr))
			return nil
		}
		if d.IsDir() || !isYAML(p) {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", p, err))
			return nil
		}
		if err := r.add(p, data); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", p, err))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk templates %s: %w", root, err)
	}
	if len(failures) > 0 {
		return &LoadError{Failures: failures}
	}
	return nil
}

// LoadDirectory loads every YAML template under the provided directory.
func (r *Registry) LoadDirectory(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat template directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("template path %s is not a directory", root)
	}
	return r.LoadFS(os.DirFS(root), ".")
}

// ParseTemplate decodes and validates one YAML template. Unknown keys are
// rejected.
func ParseTemplate(data []byte) (*Template, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var tpl Template
	if err := dec.Decode(&tpl); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	if err := ValidateTemplate(&tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (r *Registry) add(source string, data []byte) error {
	tpl, err := ParseTemplate(data)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[tpl.Name] = Entry{
		Template:    tpl,
		SourcePath:  source,
		ContentHash: hex.EncodeToString(sum[:]),
		LoadedAt:    time.Now(),
	}
	return nil
}

// Get returns the template entry registered under name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.templates[name]
	return entry, ok
}

// Template returns the named template or ErrNotFound.
func (r *Registry) Template(name string) (*Template, error) {
	entry, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return entry.Template, nil
}

// List summaries of all currently loaded templates.
func (r *Registry) List() []TemplateSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]TemplateSummary, 0, len(r.templates))
	for _, entry := range r.templates {
		summaries = append(summaries, TemplateSummary{
			Name:        entry.Template.Name,
			Kind:        entry.Template.Kind,
			Version:     entry.Template.Version,
			ContentHash: entry.ContentHash,
			SourcePath:  entry.SourcePath,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries
}

func isYAML(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return ext == ".yaml" || ext == ".yml"
}

// LoadError aggregates template loading failures.
type LoadError struct {
	Failures []string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %d template(s): %s", len(e.Failures), strings.Join(e.Failures, "; "))
}
