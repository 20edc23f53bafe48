// Package policy gates publishing with OPA rego policies.
package policy

import (
	"container/list"
	"context"
	"crypto/sha1"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"
)

//go:embed policies/*.rego
var builtinPolicies embed.FS

const decisionQuery = "data.brandcast.publish.decision"

// Engine defines the policy evaluation interface
type Engine interface {
	Evaluate(ctx context.Context, input *PublishInput) (*Decision, error)
	IsEnabled() bool
	// Mode returns the current enforcement mode (off|dry-run|enforce)
	Mode() Mode
}

// PublishInput is the document a publish policy decides on.
type PublishInput struct {
	CampaignID  string   `json:"campaign_id"`
	Tenant      string   `json:"tenant"`
	Channel     string   `json:"channel"`
	Day         int      `json:"day"`
	TotalDays   int      `json:"total_days,omitempty"`
	ContentType string   `json:"content_type"`
	Body        string   `json:"body"`
	Tags        []string `json:"tags,omitempty"`
	Environment string   `json:"environment"`
}

// Decision represents the policy evaluation result
type Decision struct {
	Allow   bool     `json:"allow"`
	Reasons []string `json:"reasons,omitempty"`
	// DryRun is set when a deny was overridden by dry-run mode.
	DryRun bool `json:"dry_run,omitempty"`
}

// Reason joins the deny reasons.
func (d *Decision) Reason() string {
	return strings.Join(d.Reasons, "; ")
}

// OPAEngine implements the Engine interface using OPA rego
type OPAEngine struct {
	config   *Config
	logger   *zap.Logger
	compiled *rego.PreparedEvalQuery
	enabled  bool
	cache    *decisionCache
}

// NewOPAEngine creates a new OPA-based policy engine
func NewOPAEngine(config *Config, logger *zap.Logger) (*OPAEngine, error) {
	config.Normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := &OPAEngine{
		config:  config,
		logger:  logger,
		enabled: config.Enabled,
		cache:   newDecisionCache(1000, 5*time.Minute),
	}

	if engine.enabled {
		if err := engine.LoadPolicies(); err != nil {
			if config.FailClosed {
				return nil, fmt.Errorf("failed to load policies in fail-closed mode: %w", err)
			}
			logger.Warn("Failed to load policies, running in fail-open mode", zap.Error(err))
			engine.enabled = false
		}
	}

	return engine, nil
}

// LoadPolicies loads and compiles the configured policy directory, or the
// built-in policy when no path is set.
func (e *OPAEngine) LoadPolicies() error {
	var (
		policies map[string]string
		source   = "builtin"
		err      error
	)
	if e.config.Path == "" {
		policies, err = readPolicies(builtinPolicies, "policies")
	} else {
		source = e.config.Path
		policies, err = readPolicies(os.DirFS(e.config.Path), ".")
	}
	if err != nil {
		return fmt.Errorf("failed to read policies from %s: %w", source, err)
	}
	if len(policies) == 0 {
		return fmt.Errorf("no policy files found in %s", source)
	}

	regoOptions := []func(*rego.Rego){
		rego.Query(decisionQuery),
	}
	for moduleName, content := range policies {
		regoOptions = append(regoOptions, rego.Module(moduleName, content))
	}

	compiled, err := rego.New(regoOptions...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("failed to compile policies: %w", err)
	}
	e.compiled = &compiled
	e.cache.Clear()

	e.logger.Info("Policies loaded and compiled successfully",
		zap.Int("policy_count", len(policies)),
		zap.String("source", source),
		zap.String("version", policyVersion(policies)),
	)
	RecordPolicyLoad(source, len(policies), float64(time.Now().Unix()))
	return nil
}

func readPolicies(fsys fs.FS, root string) (map[string]string, error) {
	policies := make(map[string]string)
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".rego") {
			return nil
		}
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read policy file %s: %w", path, err)
		}
		rel, _ := filepath.Rel(root, path)
		policies[strings.TrimSuffix(rel, ".rego")] = string(content)
		return nil
	})
	return policies, err
}

// Evaluate evaluates the policy against the given input
func (e *OPAEngine) Evaluate(ctx context.Context, input *PublishInput) (*Decision, error) {
	start := time.Now()
	mode := string(e.config.Mode)
	if input.Environment == "" {
		input.Environment = e.config.Environment
	}

	if !e.enabled || e.compiled == nil {
		if e.config.FailClosed && e.config.Enabled {
			return &Decision{Allow: false, Reasons: []string{"policy engine unavailable"}}, nil
		}
		return &Decision{Allow: true}, nil
	}

	key, err := cacheKey(input)
	if err == nil {
		if d, ok := e.cache.Get(key); ok {
			RecordCache(true)
			return d, nil
		}
		RecordCache(false)
	}

	inputMap, err := toMap(input)
	if err != nil {
		RecordError("input_conversion", mode)
		if e.config.FailClosed {
			return &Decision{Allow: false, Reasons: []string{"input conversion failed"}}, err
		}
		return &Decision{Allow: true}, nil
	}

	results, err := e.compiled.Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		e.logger.Error("Policy evaluation failed", zap.Error(err))
		RecordError("policy_evaluation", mode)
		if e.config.FailClosed {
			return &Decision{Allow: false, Reasons: []string{"policy evaluation error"}}, err
		}
		return &Decision{Allow: true}, nil
	}

	decision := parseResults(results)
	for _, r := range decision.Reasons {
		RecordDenyReason(r, mode)
	}
	if !decision.Allow && e.config.Mode == ModeDryRun {
		e.logger.Info("Dry-run policy evaluation would deny publish",
			zap.String("campaign_id", input.CampaignID),
			zap.Int("day", input.Day),
			zap.Strings("reasons", decision.Reasons),
		)
		decision.Allow = true
		decision.DryRun = true
	}

	label := "allow"
	if !decision.Allow {
		label = "deny"
	}
	RecordEvaluation(label, mode, time.Since(start).Seconds())
	e.logger.Debug("Policy evaluated",
		zap.Bool("allow", decision.Allow),
		zap.Strings("reasons", decision.Reasons),
		zap.String("campaign_id", input.CampaignID),
		zap.Int("day", input.Day),
	)

	if key != "" {
		e.cache.Set(key, decision)
	}
	return decision, nil
}

// IsEnabled returns whether the policy engine is enabled and ready
func (e *OPAEngine) IsEnabled() bool {
	return e.enabled && e.compiled != nil
}

// Mode returns the configured enforcement mode for the engine
func (e *OPAEngine) Mode() Mode { return e.config.Mode }

func toMap(input *PublishInput) (map[string]interface{}, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// parseResults reads {"allow": bool, "reasons": [...]}; anything else denies.
func parseResults(results rego.ResultSet) *Decision {
	decision := &Decision{Allow: false, Reasons: []string{"no matching policy rules"}}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return decision
	}

	switch value := results[0].Expressions[0].Value.(type) {
	case map[string]interface{}:
		allow, _ := value["allow"].(bool)
		decision.Allow = allow
		decision.Reasons = nil
		if reasons, ok := value["reasons"].([]interface{}); ok {
			for _, r := range reasons {
				if s, ok := r.(string); ok {
					decision.Reasons = append(decision.Reasons, s)
				}
			}
		}
		if !allow && len(decision.Reasons) == 0 {
			decision.Reasons = []string{"denied by policy"}
		}
	case bool:
		decision.Allow = value
		decision.Reasons = nil
		if !value {
			decision.Reasons = []string{"denied by policy"}
		}
	}
	return decision
}

func cacheKey(input *PublishInput) (string, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// policyVersion hashes all policy sources in name order.
func policyVersion(policies map[string]string) string {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)
	h := sha1.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte(policies[name]))
	}
	return hex.EncodeToString(h.Sum(nil)[:4])
}

// --- internal decision cache (simple LRU with TTL) ---

type decisionCache struct {
	cap  int
	ttl  time.Duration
	mu   sync.Mutex
	list *list.List               // MRU at front
	m    map[string]*list.Element // key -> element
}

type cacheEntry struct {
	key       string
	expiresAt time.Time
	decision  *Decision
}

func newDecisionCache(cap int, ttl time.Duration) *decisionCache {
	if cap <= 0 {
		cap = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &decisionCache{
		cap:  cap,
		ttl:  ttl,
		list: list.New(),
		m:    make(map[string]*list.Element),
	}
}

func (c *decisionCache) Get(key string) (*Decision, bool) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.m[key]; ok {
		ce := el.Value.(cacheEntry)
		if ce.expiresAt.After(now) {
			c.list.MoveToFront(el)
			return ce.decision, true
		}
		// expired
		c.list.Remove(el)
		delete(c.m, key)
	}
	return nil, false
}

func (c *decisionCache) Set(key string, d *Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.m[key]; ok {
		el.Value = cacheEntry{key: key, expiresAt: time.Now().Add(c.ttl), decision: d}
		c.list.MoveToFront(el)
		return
	}
	el := c.list.PushFront(cacheEntry{key: key, expiresAt: time.Now().Add(c.ttl), decision: d})
	c.m[key] = el
	if c.list.Len() > c.cap {
		if lru := c.list.Back(); lru != nil {
			delete(c.m, lru.Value.(cacheEntry).key)
			c.list.Remove(lru)
		}
	}
}

func (c *decisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}

func (c *decisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.Init()
	c.m = make(map[string]*list.Element)
}
