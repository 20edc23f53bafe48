// Package pipeline runs the campaign analysis: one retrieval, then the stage
// plan in order, threading each stage's output into the stages that need it.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/agents"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/metrics"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/retrieval"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/tracing"
)

// Retriever looks up brand context.
type Retriever interface {
	Retrieve(ctx context.Context, tenant, query string, topK int) retrieval.Context
}

// Persister writes a stage output back into the brand's memory.
type Persister interface {
	Persist(ctx context.Context, tenant, text string, tags map[string]string) error
}

// StageRunner executes one stage. *agents.SubAgent implements it.
type StageRunner interface {
	Execute(ctx context.Context, in agents.Input) agents.Report
}

// FromSubAgents adapts a sub-agent set to runners.
func FromSubAgents(subs map[agents.Stage]*agents.SubAgent) map[agents.Stage]StageRunner {
	out := make(map[agents.Stage]StageRunner, len(subs))
	for s, a := range subs {
		out[s] = a
	}
	return out
}

// CampaignInput identifies the brand and campaign being analysed.
type CampaignInput struct {
	CampaignID  string `json:"campaign_id"`
	Company     string `json:"company"`
	Product     string `json:"product"`
	ICP         string `json:"icp"`
	Tone        string `json:"tone"`
	Description string `json:"description"`
}

// RetrievalQuery is the broad query used to fetch shared brand context.
func (in CampaignInput) RetrievalQuery() string {
	return fmt.Sprintf("%s brand context, %s, %s", in.Company, in.Product, in.Description)
}

// StageResult is one accumulated stage.
type StageResult struct {
	Stage    agents.Stage       `json:"stage"`
	Output   agents.StageOutput `json:"output"`
	Outcome  agents.Outcome     `json:"outcome"`
	Reason   string             `json:"reason,omitempty"`
	Duration time.Duration      `json:"duration"`
}

// Result is the accumulated analysis. Stages only grows during a run.
type Result struct {
	CampaignID     string         `json:"campaign_id"`
	ScrapedContext string         `json:"-"`
	ContextFailed  bool           `json:"context_failed"`
	Stages         []StageResult  `json:"stages"`
	Record         map[string]any `json:"record"`
}

// Failed counts stages that fell back to defaults.
func (r *Result) Failed() int {
	n := 0
	for _, s := range r.Stages {
		if s.Outcome == agents.OutcomeDefaulted {
			n++
		}
	}
	return n
}

// Options tunes a Coordinator.
type Options struct {
	Plan          []StageSpec
	RetrievalTopK int
}

// Coordinator sequences the analysis stages.
type Coordinator struct {
	runners   map[agents.Stage]StageRunner
	retriever Retriever
	persister Persister
	sink      streaming.Sink
	plan      []StageSpec
	topK      int
	logger    *zap.Logger
}

// NewCoordinator validates the plan and checks that every planned stage has
// a runner. persister and sink may be nil.
func NewCoordinator(runners map[agents.Stage]StageRunner, retriever Retriever, persister Persister, sink streaming.Sink, opts Options, logger *zap.Logger) (*Coordinator, error) {
	plan := opts.Plan
	if plan == nil {
		plan = DefaultPlan()
	}
	if err := ValidatePlan(plan); err != nil {
		return nil, fmt.Errorf("invalid stage plan: %w", err)
	}
	for _, step := range plan {
		if runners[step.Stage] == nil {
			return nil, fmt.Errorf("no runner for stage %s", step.Stage)
		}
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if opts.RetrievalTopK <= 0 {
		opts.RetrievalTopK = 15
	}
	if sink == nil {
		sink = streaming.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		runners:   runners,
		retriever: retriever,
		persister: persister,
		sink:      sink,
		plan:      plan,
		topK:      opts.RetrievalTopK,
		logger:    logger,
	}, nil
}

// Run executes the plan. Stage failures never abort the run; the returned
// record always carries every merged key. An error is returned only when
// ctx ends before all stages ran, together with the partial result.
func (c *Coordinator) Run(ctx context.Context, in CampaignInput) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.run", "campaign_id", in.CampaignID, "tenant", in.Company)
	defer span.End()

	logger := c.logger.With(zap.String("campaign_id", in.CampaignID), zap.String("tenant", in.Company))
	logger.Info("Starting campaign analysis", zap.Int("stages", len(c.plan)))

	rc := c.retriever.Retrieve(ctx, in.Company, in.RetrievalQuery(), c.topK)
	res := &Result{
		CampaignID:     in.CampaignID,
		ScrapedContext: rc.String(),
		ContextFailed:  rc.Failed(),
	}

	serialized := make(map[agents.Stage]string, len(c.plan))
	for _, step := range c.plan {
		if err := ctx.Err(); err != nil {
			res.Record = Merge(res.Stages)
			return res, fmt.Errorf("analysis interrupted before %s: %w", step.Stage, err)
		}

		c.emit(in.CampaignID, streaming.Event{Type: streaming.EventStageStarted, Stage: string(step.Stage)})
		rep := c.runners[step.Stage].Execute(ctx, c.stageInput(step, in, res.ScrapedContext, serialized))

		res.Stages = append(res.Stages, StageResult{
			Stage:    step.Stage,
			Output:   rep.Output,
			Outcome:  rep.Outcome,
			Reason:   rep.Reason,
			Duration: rep.Duration,
		})
		serialized[step.Stage] = rep.Output.String()

		evt := streaming.Event{Type: streaming.EventStageCompleted, Stage: string(step.Stage), Message: string(rep.Outcome)}
		if rep.Outcome == agents.OutcomeDefaulted {
			evt.Type = streaming.EventStageFailed
			evt.Message = rep.Reason
		}
		c.emit(in.CampaignID, evt)

		c.persist(ctx, logger, in, step.Stage, serialized[step.Stage])
	}

	res.Record = Merge(res.Stages)
	failed := res.Failed()
	metrics.PipelineRuns.WithLabelValues(strconv.Itoa(failed)).Inc()
	logger.Info("Campaign analysis finished",
		zap.Int("failed_stages", failed),
		zap.Bool("context_failed", res.ContextFailed),
	)
	return res, nil
}

// stageInput binds only the fields and prior outputs step declares.
func (c *Coordinator) stageInput(step StageSpec, in CampaignInput, scraped string, serialized map[agents.Stage]string) agents.Input {
	var si agents.Input
	for _, f := range step.Fields {
		switch f {
		case FieldCompany:
			si.Company = in.Company
		case FieldProduct:
			si.Product = in.Product
		case FieldDescription:
			si.Description = in.Description
		case FieldICP:
			si.ICP = in.ICP
		case FieldTone:
			si.Tone = in.Tone
		case FieldScrapedContext:
			si.ScrapedContext = scraped
		}
	}
	if len(step.Requires) > 0 {
		si.Prior = make(map[agents.Stage]string, len(step.Requires))
		for _, r := range step.Requires {
			si.Prior[r] = serialized[r]
		}
	}
	return si
}

func (c *Coordinator) persist(ctx context.Context, logger *zap.Logger, in CampaignInput, stage agents.Stage, text string) {
	if c.persister == nil {
		return
	}
	tags := map[string]string{
		"type":        "agent_insight",
		"campaign_id": in.CampaignID,
		"agent":       string(stage),
	}
	if err := c.persister.Persist(ctx, in.Company, text, tags); err != nil {
		logger.Warn("Failed to persist stage output", zap.String("stage", string(stage)), zap.Error(err))
	}
}

func (c *Coordinator) emit(campaignID string, evt streaming.Event) {
	if campaignID == "" {
		return
	}
	c.sink.Publish(campaignID, evt)
}
