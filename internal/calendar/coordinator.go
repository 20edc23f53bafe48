package calendar

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/generation"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/metrics"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/normalize"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/retrieval"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/templates"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/tracing"
)

// WindowTemplate is the registry name of the window prompt.
const WindowTemplate = "calendar_window"

// Retriever looks up brand voice examples.
type Retriever interface {
	Retrieve(ctx context.Context, tenant, query string, topK int) retrieval.Context
}

// Options tunes a Coordinator.
type Options struct {
	TotalDays   int           `mapstructure:"total_days"`
	BatchSize   int           `mapstructure:"batch_size"`
	Concurrency int           `mapstructure:"concurrency"`
	ContentTopK int           `mapstructure:"content_top_k"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (o Options) withDefaults() Options {
	if o.TotalDays <= 0 {
		o.TotalDays = 30
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.ContentTopK <= 0 {
		o.ContentTopK = 5
	}
	if o.Timeout <= 0 {
		o.Timeout = 600 * time.Second
	}
	return o
}

// Request describes one calendar.
type Request struct {
	CampaignID   string   `json:"campaign_id"`
	Company      string   `json:"company"`
	ICP          string   `json:"icp"`
	Tone         string   `json:"tone"`
	Description  string   `json:"description"`
	ContentTypes []string `json:"content_types"`
	TemplateType string   `json:"template_type"`
}

// ContentQuery is the semantic query for brand voice examples.
func (r Request) ContentQuery() string {
	return fmt.Sprintf("%s. Target audience: %s. Tone: %s. Content style: %s.",
		r.Description, r.ICP, r.Tone, strings.ReplaceAll(r.TemplateType, "_", " "))
}

// Coordinator generates calendars window by window.
type Coordinator struct {
	tpl       *templates.Template
	gen       generation.Generator
	retriever Retriever
	sink      streaming.Sink
	opts      Options
	logger    *zap.Logger
}

// NewCoordinator looks up the window template in reg. sink may be nil.
func NewCoordinator(reg *templates.Registry, gen generation.Generator, retriever Retriever, sink streaming.Sink, opts Options, logger *zap.Logger) (*Coordinator, error) {
	tpl, err := reg.Template(WindowTemplate)
	if err != nil {
		return nil, err
	}
	if tpl.Kind != templates.KindCalendar {
		return nil, fmt.Errorf("template %s is %s, not %s", WindowTemplate, tpl.Kind, templates.KindCalendar)
	}
	if gen == nil || retriever == nil {
		return nil, fmt.Errorf("generator and retriever are required")
	}
	if sink == nil {
		sink = streaming.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		tpl:       tpl,
		gen:       gen,
		retriever: retriever,
		sink:      sink,
		opts:      opts.withDefaults(),
		logger:    logger,
	}, nil
}

// TemplateTypes lists the accepted template types.
func (c *Coordinator) TemplateTypes() []string {
	out := make([]string, 0, len(c.tpl.Strategies))
	for k := range c.tpl.Strategies {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type windowResult struct {
	days    []Day
	outcome string
	errors  int
}

// Generate produces a calendar of exactly TotalDays entries. Window failures
// become error days. An error is returned for an unknown template type or
// content type before any generation, or when ctx ends mid-run together with
// the calendar assembled so far.
func (c *Coordinator) Generate(ctx context.Context, req Request) (*Calendar, error) {
	strategy, ok := c.tpl.Strategy(req.TemplateType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, req.TemplateType)
	}
	types, err := ParseContentTypes(req.ContentTypes)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "calendar.generate", "campaign_id", req.CampaignID, "template_type", req.TemplateType)
	defer span.End()

	logger := c.logger.With(
		zap.String("campaign_id", req.CampaignID),
		zap.String("tenant", req.Company),
		zap.String("template_type", req.TemplateType),
	)

	rc := c.retriever.Retrieve(ctx, req.Company, req.ContentQuery(), c.opts.ContentTopK)
	base := map[string]string{
		"brand":       req.Company,
		"icp":         req.ICP,
		"tone":        req.Tone,
		"description": req.Description,
		"context":     rc.String(),
		"strategy":    strategy,
		"total_days":  strconv.Itoa(c.opts.TotalDays),
	}

	windows := PlanWindows(c.opts.TotalDays, c.opts.BatchSize, types)
	logger.Info("Generating content calendar",
		zap.Int("total_days", c.opts.TotalDays),
		zap.Int("windows", len(windows)),
		zap.Int("concurrency", c.opts.Concurrency),
	)

	// Each goroutine writes only its own slot.
	results := make([]windowResult, len(windows))
	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, w := range windows {
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = windowResult{days: ErrorDays(w, ctx.Err().Error()), outcome: "cancelled", errors: w.Len()}
				return nil
			}
			results[i] = c.window(ctx, logger, req, w, base)
			return nil
		})
	}
	_ = g.Wait()

	parts := make([][]Day, 0, len(results))
	for i, r := range results {
		parts = append(parts, r.days)
		metrics.RecordWindowMetrics(req.TemplateType, r.outcome, r.errors)
		evt := streaming.Event{Type: streaming.EventWindowCompleted, Window: i + 1, DayStart: windows[i].Start, DayEnd: windows[i].End, Message: r.outcome}
		if r.errors == windows[i].Len() {
			evt.Type = streaming.EventWindowFailed
		}
		c.sink.Publish(req.CampaignID, evt)
	}

	cal := &Calendar{
		TemplateType: req.TemplateType,
		TotalDays:    c.opts.TotalDays,
		Days:         Merge(c.opts.TotalDays, parts...),
	}
	logger.Info("Content calendar assembled", zap.Int("error_days", cal.ErrorCount()))
	if err := ctx.Err(); err != nil {
		return cal, fmt.Errorf("calendar generation interrupted: %w", err)
	}
	return cal, nil
}

// window makes exactly one generation call for w.
func (c *Coordinator) window(ctx context.Context, logger *zap.Logger, req Request, w Window, base map[string]string) windowResult {
	vars := make(map[string]string, len(base)+3)
	for k, v := range base {
		vars[k] = v
	}
	vars["day_start"] = strconv.Itoa(w.Start)
	vars["day_end"] = strconv.Itoa(w.End)
	vars["assignments"] = AssignmentList(w)

	name := fmt.Sprintf("%s_%d", WindowTemplate, w.Index+1)
	res := c.gen.Generate(ctx, generation.NewRequest(name, c.tpl.Role, c.tpl.Prompt, SchemaFor(w), vars), c.opts.Timeout)

	wl := logger.With(zap.Int("day_start", w.Start), zap.Int("day_end", w.End))
	var (
		value   any
		outcome string
	)
	switch res.Kind {
	case generation.KindStructured:
		value, outcome = res.Record, "structured"
	case generation.KindRawText:
		v, err := normalize.Parse(res.Text)
		if err != nil {
			wl.Warn("Calendar window output could not be parsed", zap.Error(err))
			return windowResult{days: ErrorDays(w, err.Error()), outcome: "failed", errors: w.Len()}
		}
		value, outcome = v, "normalized"
	default:
		wl.Warn("Calendar window generation failed", zap.String("reason", res.Reason()), zap.Bool("timed_out", res.TimedOut()))
		return windowResult{days: ErrorDays(w, res.Reason()), outcome: "failed", errors: w.Len()}
	}

	entries, err := ExtractDays(value)
	if err != nil {
		wl.Warn("Calendar window output has no days", zap.Error(err))
		return windowResult{days: ErrorDays(w, err.Error()), outcome: "failed", errors: w.Len()}
	}
	days, missing := Resolve(w, entries)
	if missing > 0 {
		wl.Warn("Calendar window is missing days", zap.Int("missing", missing))
	}
	return windowResult{days: days, outcome: outcome, errors: missing}
}
