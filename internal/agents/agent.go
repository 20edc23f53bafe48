package agents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/generation"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/metrics"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/normalize"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/templates"
)

// Input carries the campaign fields a stage may reference. Prior maps earlier
// stages to their serialized output.
type Input struct {
	Company        string
	Product        string
	Description    string
	ICP            string
	Tone           string
	ScrapedContext string
	Prior          map[Stage]string
}

// Bindings returns the template variables for in.
func (in Input) Bindings() map[string]string {
	vars := map[string]string{
		"company":         in.Company,
		"product":         in.Product,
		"description":     in.Description,
		"icp":             in.ICP,
		"tone":            in.Tone,
		"scraped_context": in.ScrapedContext,
	}
	for stage, out := range in.Prior {
		vars[string(stage)] = out
	}
	return vars
}

// Outcome describes how a stage resolved.
type Outcome string

const (
	OutcomeStructured Outcome = "structured"
	OutcomeNormalized Outcome = "normalized"
	OutcomeDefaulted  Outcome = "defaulted"
)

// Report is a stage output with the path that produced it.
type Report struct {
	Stage    Stage
	Output   StageOutput
	Outcome  Outcome
	Reason   string
	Duration time.Duration
}

// SubAgent runs one analysis stage.
type SubAgent struct {
	stage   Stage
	tpl     *templates.Template
	gen     generation.Generator
	timeout time.Duration
	logger  *zap.Logger
}

// NewSubAgent binds stage to its template. It fails when the template is
// missing or belongs to another kind, since that is a configuration error.
func NewSubAgent(stage Stage, reg *templates.Registry, gen generation.Generator, timeout time.Duration, logger *zap.Logger) (*SubAgent, error) {
	if !Known(stage) {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	tpl, err := reg.Template(string(stage))
	if err != nil {
		return nil, err
	}
	if tpl.Kind != templates.KindStage {
		return nil, fmt.Errorf("template %q is a %s template, not a stage", tpl.Name, tpl.Kind)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubAgent{stage: stage, tpl: tpl, gen: gen, timeout: timeout, logger: logger}, nil
}

// NewSubAgents builds all five stages.
func NewSubAgents(reg *templates.Registry, gen generation.Generator, timeout time.Duration, logger *zap.Logger) (map[Stage]*SubAgent, error) {
	out := make(map[Stage]*SubAgent, len(AllStages))
	for _, s := range AllStages {
		a, err := NewSubAgent(s, reg, gen, timeout, logger)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s, err)
		}
		out[s] = a
	}
	return out, nil
}

// Stage returns the stage this agent runs.
func (a *SubAgent) Stage() Stage { return a.stage }

// Run returns the stage output, or the stage defaults on any failure.
func (a *SubAgent) Run(ctx context.Context, in Input) StageOutput {
	return a.Execute(ctx, in).Output
}

// Execute is Run with outcome details. It makes exactly one generation call.
func (a *SubAgent) Execute(ctx context.Context, in Input) (rep Report) {
	start := time.Now()
	rep = Report{Stage: a.stage}
	defer func() {
		if r := recover(); r != nil {
			rep.Output = Defaults(a.stage)
			rep.Outcome = OutcomeDefaulted
			rep.Reason = fmt.Sprintf("panic: %v", r)
			a.logger.Error("Sub-agent panicked", zap.String("stage", string(a.stage)), zap.Any("panic", r))
		}
		rep.Duration = time.Since(start)
		metrics.RecordStageMetrics(string(a.stage), string(rep.Outcome), rep.Duration.Seconds())
	}()

	req := generation.NewRequest(string(a.stage), a.tpl.Role, a.tpl.Prompt, a.tpl.Schema, in.Bindings())
	res := a.gen.Generate(ctx, req, a.timeout)

	var record map[string]any
	switch res.Kind {
	case generation.KindStructured:
		record = res.Record
		rep.Outcome = OutcomeStructured
	case generation.KindRawText:
		parsed, err := normalize.ParseRecord(res.Text)
		if err != nil {
			return a.defaulted(rep, err.Error())
		}
		record = parsed
		rep.Outcome = OutcomeNormalized
	default:
		return a.defaulted(rep, res.Reason())
	}

	out, replaced := Conform(a.stage, record)
	if len(replaced) > 0 {
		a.logger.Warn("Stage output missing required keys",
			zap.String("stage", string(a.stage)),
			zap.Strings("keys", replaced),
		)
	}
	rep.Output = out
	return rep
}

func (a *SubAgent) defaulted(rep Report, reason string) Report {
	a.logger.Warn("Stage failed, using defaults",
		zap.String("stage", string(a.stage)),
		zap.String("reason", reason),
	)
	rep.Output = Defaults(a.stage)
	rep.Outcome = OutcomeDefaulted
	rep.Reason = reason
	return rep
}
