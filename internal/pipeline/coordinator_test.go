package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/agents"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/generation"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/retrieval"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/templates"
)

type fakeRetriever struct {
	ctx     retrieval.Context
	queries []string
	topK    int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, query string, topK int) retrieval.Context {
	f.queries = append(f.queries, query)
	f.topK = topK
	return f.ctx
}

type persisted struct {
	tenant string
	text   string
	tags   map[string]string
}

type fakePersister struct {
	mu    sync.Mutex
	saved []persisted
	err   error
}

func (f *fakePersister) Persist(_ context.Context, tenant, text string, tags map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, persisted{tenant, text, tags})
	return f.err
}

// scriptedGenerator answers per stage and records every request.
type scriptedGenerator struct {
	mu       sync.Mutex
	replies  map[string]generation.Result
	requests map[string]generation.Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req generation.Request, _ time.Duration) generation.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.requests == nil {
		g.requests = map[string]generation.Request{}
	}
	g.requests[req.Name] = req
	if r, ok := g.replies[req.Name]; ok {
		return r
	}
	return generation.Failed(generation.ErrTimeout)
}

var input = CampaignInput{
	CampaignID:  "c-1",
	Company:     "Acme",
	Product:     "Rockets",
	ICP:         "space startups",
	Tone:        "bold",
	Description: "reusable rockets",
}

func newCoordinator(t *testing.T, gen generation.Generator, ret Retriever, per Persister, sink streaming.Sink) *Coordinator {
	t.Helper()
	reg, err := templates.Builtin()
	require.NoError(t, err)
	subs, err := agents.NewSubAgents(reg, gen, time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	c, err := NewCoordinator(FromSubAgents(subs), ret, per, sink, Options{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestDefaultPlanIsValid(t *testing.T) {
	require.NoError(t, ValidatePlan(DefaultPlan()))
}

func TestValidatePlanRejects(t *testing.T) {
	assert.Error(t, ValidatePlan(nil))
	assert.Error(t, ValidatePlan([]StageSpec{{Stage: "branding"}}))
	assert.Error(t, ValidatePlan([]StageSpec{{Stage: agents.StageCompetition, Fields: []string{"budget"}}}))
	assert.Error(t, ValidatePlan([]StageSpec{
		{Stage: agents.StageUsecase, Requires: []agents.Stage{agents.StageCompetition}},
		{Stage: agents.StageCompetition},
	}))
}

func TestRunAllStagesFailStillReturnsRecord(t *testing.T) {
	ret := &fakeRetriever{ctx: retrieval.Context{Placeholder: retrieval.FailurePlaceholder, Err: errors.New("down")}}
	per := &fakePersister{err: errors.New("store down")}
	c := newCoordinator(t, &scriptedGenerator{}, ret, per, nil)

	res, err := c.Run(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, res.ContextFailed)
	assert.Equal(t, 5, res.Failed())
	require.Len(t, res.Stages, 5)

	for _, k := range RecordKeys() {
		assert.Contains(t, res.Record, k)
	}
	assert.Equal(t, []any{}, res.Record["competitors"])
	assert.Equal(t, "", res.Record["alternative_product"])
	assert.Equal(t, "", res.Record["advantages"])
	assert.Equal(t, []any{}, res.Record["use_cases"])
	assert.Equal(t, []any{}, res.Record["objectives"])
	assert.Equal(t, map[string]any{}, res.Record["target_users"])
	assert.Equal(t, map[string]any{}, res.Record["positioning"])
	assert.Len(t, per.saved, 5)
}

func TestRunThreadsPriorOutputs(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string]generation.Result{
		"competition": generation.Structured(map[string]any{"competitors": []any{"Globex"}, "alternative_product": "Balloons", "advantages": "reusable"}),
		"usecase":     generation.RawText("Here you go: {\"use_cases\": [{\"title\": \"Launch\"}]} enjoy"),
		"objectives":  generation.Structured(map[string]any{"objectives": []any{"grow"}}),
		"audience":    generation.Structured(map[string]any{"target_users": map[string]any{"primary": map[string]any{"profile": "CTOs"}}}),
		"positioning": generation.Structured(map[string]any{"positioning": map[string]any{"statement": "Up"}}),
	}}
	ret := &fakeRetriever{ctx: retrieval.Context{Snippets: []retrieval.Snippet{{Text: "We fly", Platform: "twitter", Rank: 1}}}}
	per := &fakePersister{}
	c := newCoordinator(t, gen, ret, per, nil)

	res, err := c.Run(context.Background(), input)
	require.NoError(t, err)
	assert.Zero(t, res.Failed())

	require.Equal(t, []string{"Acme brand context, Rockets, reusable rockets"}, ret.queries)
	assert.Equal(t, 15, ret.topK)

	competition := `{"advantages":"reusable","alternative_product":"Balloons","competitors":["Globex"]}`
	usecase := `{"use_cases":[{"title":"Launch"}]}`

	comp := gen.requests["competition"]
	assert.Equal(t, "[Post 1 — twitter]\nWe fly", comp.Variable("scraped_context"))
	assert.Empty(t, comp.Variable("usecase"))

	uc := gen.requests["usecase"]
	assert.Equal(t, competition, uc.Variable("competition"))
	assert.NotEmpty(t, uc.Variable("scraped_context"))

	obj := gen.requests["objectives"]
	assert.Equal(t, usecase, obj.Variable("usecase"))
	assert.Empty(t, obj.Variable("scraped_context"))

	aud := gen.requests["audience"]
	assert.Equal(t, "space startups", aud.Variable("icp"))
	assert.Empty(t, aud.Variable("objectives"))

	pos := gen.requests["positioning"]
	assert.Equal(t, "bold", pos.Variable("tone"))
	assert.Contains(t, pos.Variable("audience"), "CTOs")
	assert.Empty(t, pos.Variable("icp"))

	assert.Equal(t, []any{"Globex"}, res.Record["competitors"])
	assert.Equal(t, []any{map[string]any{"title": "Launch"}}, res.Record["use_cases"])

	require.Len(t, per.saved, 5)
	first := per.saved[0]
	assert.Equal(t, "Acme", first.tenant)
	assert.Equal(t, competition, first.text)
	assert.Equal(t, map[string]string{"type": "agent_insight", "campaign_id": "c-1", "agent": "competition"}, first.tags)
}

func TestRunEmitsProgressEvents(t *testing.T) {
	mgr := streaming.NewManager(streaming.Options{}, nil, nil)
	gen := &scriptedGenerator{replies: map[string]generation.Result{
		"competition": generation.Structured(map[string]any{"competitors": []any{}}),
	}}
	c := newCoordinator(t, gen, &fakeRetriever{}, nil, mgr)

	_, err := c.Run(context.Background(), input)
	require.NoError(t, err)

	evs := mgr.ReplaySince("c-1", 0)
	require.Len(t, evs, 10)
	assert.Equal(t, streaming.EventStageStarted, evs[0].Type)
	assert.Equal(t, streaming.EventStageCompleted, evs[1].Type)
	assert.Equal(t, "competition", evs[1].Stage)
	assert.Equal(t, streaming.EventStageFailed, evs[3].Type)
	assert.Equal(t, "usecase", evs[3].Stage)
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runners := map[agents.Stage]StageRunner{}
	for _, s := range agents.AllStages {
		runners[s] = runnerFunc(func(context.Context, agents.Input) agents.Report {
			if s == agents.StageUsecase {
				cancel()
			}
			return agents.Report{Stage: s, Output: agents.Defaults(s), Outcome: agents.OutcomeDefaulted}
		})
	}
	c, err := NewCoordinator(runners, &fakeRetriever{}, nil, nil, Options{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := c.Run(ctx, input)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res.Stages, 2)
	assert.Len(t, res.Record, 7)
}

type runnerFunc func(context.Context, agents.Input) agents.Report

func (f runnerFunc) Execute(ctx context.Context, in agents.Input) agents.Report { return f(ctx, in) }

func TestNewCoordinatorRequiresRunners(t *testing.T) {
	_, err := NewCoordinator(map[agents.Stage]StageRunner{}, &fakeRetriever{}, nil, nil, Options{}, nil)
	assert.Error(t, err)

	runners := map[agents.Stage]StageRunner{}
	for _, s := range agents.AllStages {
		runners[s] = runnerFunc(func(context.Context, agents.Input) agents.Report { return agents.Report{} })
	}
	_, err = NewCoordinator(runners, nil, nil, nil, Options{}, nil)
	assert.Error(t, err)
}

func TestMergeFillsMissingStages(t *testing.T) {
	record := Merge([]StageResult{{Stage: agents.StageObjectives, Output: agents.StageOutput{"objectives": []any{"a"}}}})
	assert.Len(t, record, 7)
	assert.Equal(t, []any{"a"}, record["objectives"])
	assert.Equal(t, []any{}, record["competitors"])
}
