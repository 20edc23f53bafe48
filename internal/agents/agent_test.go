package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/generation"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/templates"
)

type generatorFunc func(ctx context.Context, req generation.Request, timeout time.Duration) generation.Result

func (f generatorFunc) Generate(ctx context.Context, req generation.Request, timeout time.Duration) generation.Result {
	return f(ctx, req, timeout)
}

func builtin(t *testing.T) *templates.Registry {
	t.Helper()
	reg, err := templates.Builtin()
	require.NoError(t, err)
	return reg
}

func newAgent(t *testing.T, stage Stage, gen generation.Generator) *SubAgent {
	t.Helper()
	a, err := NewSubAgent(stage, builtin(t), gen, time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	return a
}

func TestDefaultsCarryRequiredKeys(t *testing.T) {
	for _, s := range AllStages {
		d := Defaults(s)
		for _, k := range RequiredKeys(s) {
			assert.Contains(t, d, k, "stage %s", s)
		}
	}
	d := Defaults(StageCompetition)
	assert.Equal(t, []any{}, d["competitors"])
	assert.Equal(t, "", d["alternative_product"])
	assert.Equal(t, map[string]any{}, Defaults(StageAudience)["target_users"])

	// Defaults are fresh copies.
	d["competitors"] = []any{"x"}
	assert.Equal(t, []any{}, Defaults(StageCompetition)["competitors"])
}

func TestRunStructured(t *testing.T) {
	var calls int
	gen := generatorFunc(func(_ context.Context, req generation.Request, timeout time.Duration) generation.Result {
		calls++
		assert.Equal(t, "competition", req.Name)
		assert.Equal(t, "Acme", req.Variable("company"))
		assert.Equal(t, time.Second, timeout)
		return generation.Structured(map[string]any{
			"competitors":         []any{"Globex"},
			"alternative_product": "Initech",
			"advantages":          "faster",
		})
	})

	rep := newAgent(t, StageCompetition, gen).Execute(context.Background(), Input{Company: "Acme"})
	assert.Equal(t, 1, calls)
	assert.Equal(t, OutcomeStructured, rep.Outcome)
	assert.Equal(t, []any{"Globex"}, rep.Output["competitors"])
	assert.Equal(t, "Initech", rep.Output["alternative_product"])
}

func TestRunNormalizesRawText(t *testing.T) {
	gen := generatorFunc(func(context.Context, generation.Request, time.Duration) generation.Result {
		return generation.RawText("Sure!\n```json\n{\"use_cases\": [\"onboarding\"]}\n```")
	})
	rep := newAgent(t, StageUsecase, gen).Execute(context.Background(), Input{})
	assert.Equal(t, OutcomeNormalized, rep.Outcome)
	assert.Equal(t, []any{"onboarding"}, rep.Output["use_cases"])
}

func TestRunFallsBackToDefaults(t *testing.T) {
	cases := map[string]generation.Result{
		"timeout":     generation.Failed(generation.ErrTimeout),
		"error":       generation.Failed(errors.New("provider down")),
		"unparseable": generation.RawText("I cannot help with that."),
	}
	for name, res := range cases {
		t.Run(name, func(t *testing.T) {
			gen := generatorFunc(func(context.Context, generation.Request, time.Duration) generation.Result { return res })
			rep := newAgent(t, StageObjectives, gen).Execute(context.Background(), Input{})
			assert.Equal(t, OutcomeDefaulted, rep.Outcome)
			assert.NotEmpty(t, rep.Reason)
			assert.Equal(t, Defaults(StageObjectives), rep.Output)
		})
	}
}

func TestRunRecoversFromPanic(t *testing.T) {
	gen := generatorFunc(func(context.Context, generation.Request, time.Duration) generation.Result {
		panic("boom")
	})
	out := newAgent(t, StagePositioning, gen).Run(context.Background(), Input{})
	assert.Equal(t, Defaults(StagePositioning), out)
}

func TestRunFillsMissingAndMistypedKeys(t *testing.T) {
	gen := generatorFunc(func(context.Context, generation.Request, time.Duration) generation.Result {
		return generation.Structured(map[string]any{
			"competitors": "Globex",
			"extra":       true,
		})
	})
	out := newAgent(t, StageCompetition, gen).Run(context.Background(), Input{})
	assert.Equal(t, []any{}, out["competitors"])
	assert.Equal(t, "", out["advantages"])
	assert.Equal(t, true, out["extra"])
}

func TestInputBindingsIncludePriorStages(t *testing.T) {
	in := Input{
		Company: "Acme",
		Tone:    "bold",
		Prior:   map[Stage]string{StageCompetition: `{"competitors":[]}`},
	}
	vars := in.Bindings()
	assert.Equal(t, "Acme", vars["company"])
	assert.Equal(t, "bold", vars["tone"])
	assert.Equal(t, `{"competitors":[]}`, vars["competition"])
	assert.Equal(t, "", vars["icp"])
}

func TestNewSubAgentRejectsCalendarTemplate(t *testing.T) {
	_, err := NewSubAgent(Stage("calendar_window"), builtin(t), nil, time.Second, nil)
	require.Error(t, err)
}

func TestStageOutputString(t *testing.T) {
	out := StageOutput{"b": 1, "a": []any{"x"}}
	assert.Equal(t, `{"a":["x"],"b":1}`, out.String())
}
