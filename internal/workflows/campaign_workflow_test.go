package workflows

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/activities"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/constants"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/db"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/pipeline"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/publish"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/workflows/opts"
)

// recorder stubs every campaign activity and records what the workflow asked for.
type recorder struct {
	mu          sync.Mutex
	created     []activities.CreateCampaignInput
	statuses    []db.Status
	events      []string
	published   []int
	savedCal    bool
	analysisErr error
	publishErr  error

	// Time left before each generation activity's deadline when it started.
	analysisBudget time.Duration
	calendarBudget time.Duration
}

func budget(ctx context.Context) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(dl)
}

func (r *recorder) register(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivityWithOptions(func(_ context.Context, in activities.CreateCampaignInput) (string, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.created = append(r.created, in)
		return in.CampaignID, nil
	}, activity.RegisterOptions{Name: constants.CreateCampaignActivity})

	env.RegisterActivityWithOptions(func(ctx context.Context, in pipeline.CampaignInput) (*pipeline.Result, error) {
		r.mu.Lock()
		r.analysisBudget = budget(ctx)
		r.mu.Unlock()
		if r.analysisErr != nil {
			return nil, r.analysisErr
		}
		return &pipeline.Result{
			CampaignID: in.CampaignID,
			Record:     map[string]any{"competitors": []any{"Globex"}},
		}, nil
	}, activity.RegisterOptions{Name: constants.RunAnalysisActivity})

	env.RegisterActivityWithOptions(func(ctx context.Context, req calendar.Request) (*calendar.Calendar, error) {
		r.mu.Lock()
		r.calendarBudget = budget(ctx)
		r.mu.Unlock()
		return &calendar.Calendar{
			TemplateType: req.TemplateType,
			TotalDays:    2,
			Days: []calendar.Day{
				{Day: 1, ContentType: calendar.CanonicalPost, Payload: map[string]any{"text": "hi"}},
				{Day: 2, ContentType: calendar.ErrorDay, Error: "timeout"},
			},
		}, nil
	}, activity.RegisterOptions{Name: constants.GenerateCalendarActivity})

	env.RegisterActivityWithOptions(func(_ context.Context, _ activities.SaveAnalysisInput) error {
		return nil
	}, activity.RegisterOptions{Name: constants.SaveAnalysisActivity})

	env.RegisterActivityWithOptions(func(_ context.Context, in activities.SaveCalendarInput) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.savedCal = in.Calendar != nil && len(in.Calendar.Days) == 2
		return nil
	}, activity.RegisterOptions{Name: constants.SaveCalendarActivity})

	env.RegisterActivityWithOptions(func(_ context.Context, in activities.UpdateStatusInput) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.statuses = append(r.statuses, in.Status)
		return nil
	}, activity.RegisterOptions{Name: constants.UpdateCampaignStatusActivity})

	env.RegisterActivityWithOptions(func(_ context.Context, in activities.PublishDayInput) (*publish.Receipt, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.published = append(r.published, in.Day)
		if r.publishErr != nil {
			return nil, r.publishErr
		}
		return &publish.Receipt{Day: in.Day, ContentType: calendar.CanonicalPost, Method: "sendMessage", MessageIDs: []int64{7}}, nil
	}, activity.RegisterOptions{Name: constants.PublishDayActivity})

	env.RegisterActivityWithOptions(func(_ context.Context, in activities.CampaignEventInput) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, in.Type)
		return nil
	}, activity.RegisterOptions{Name: constants.EmitCampaignEventActivity})
}

func newEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *recorder) {
	t.Helper()
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	rec := &recorder{}
	rec.register(env)
	env.RegisterWorkflow(CampaignWorkflow)
	return env, rec
}

func campaignInput() CampaignInput {
	return CampaignInput{
		CampaignID:   "6f1c3a52-7a59-4d8f-9d1e-7a0b7f3f2d10",
		Tenant:       "Acme",
		Product:      "Rockets",
		ICP:          "founders",
		Tone:         "bold",
		Description:  "reusable rockets",
		TemplateType: "educational",
		ContentTypes: []string{"canonical_post", "carousel"},
	}
}

func campaignResult(t *testing.T, env *testsuite.TestWorkflowEnvironment) CampaignResult {
	t.Helper()
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var res CampaignResult
	require.NoError(t, env.GetWorkflowResult(&res))
	return res
}

func TestCampaignWorkflowApprovedPublishesRequestedDay(t *testing.T) {
	env, rec := newEnv(t)

	var queried CampaignState
	env.RegisterDelayedCallback(func() {
		val, err := env.QueryWorkflow(constants.CampaignStateQuery)
		require.NoError(t, err)
		require.NoError(t, val.Get(&queried))
		env.SignalWorkflow(constants.CampaignApprovalSignal, ApprovalDecision{Approved: true, Day: 3, DecidedBy: "ops"})
	}, time.Minute)

	env.ExecuteWorkflow(CampaignWorkflow, campaignInput())
	res := campaignResult(t, env)

	assert.True(t, queried.AwaitingApproval)
	assert.Equal(t, PhaseApproval, queried.Phase)
	assert.Equal(t, db.StatusCompleted, queried.Status)
	assert.Equal(t, 1, queried.ErrorDays)

	assert.Equal(t, db.StatusPublished, res.Status)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, 3, res.Receipt.Day)
	assert.Equal(t, []int{3}, rec.published)
	assert.Equal(t, []db.Status{db.StatusCompleted, db.StatusPublished}, rec.statuses)
	assert.True(t, rec.savedCal)
	assert.Equal(t, []string{
		streaming.EventCampaignCompleted,
		streaming.EventApprovalRequested,
		streaming.EventApprovalDecision,
	}, rec.events)

	require.Len(t, rec.created, 1)
	assert.Equal(t, "Acme", rec.created[0].Tenant)
	assert.Equal(t, []string{"canonical_post", "carousel"}, rec.created[0].ContentTypes)
	assert.Equal(t, []any{"Globex"}, res.Analysis["competitors"])
}

func TestCampaignWorkflowRejectedStaysCompleted(t *testing.T) {
	env, rec := newEnv(t)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(constants.CampaignApprovalSignal, ApprovalDecision{Approved: false, Feedback: "tone is off"})
	}, time.Minute)

	env.ExecuteWorkflow(CampaignWorkflow, campaignInput())
	res := campaignResult(t, env)

	assert.Equal(t, db.StatusCompleted, res.Status)
	require.NotNil(t, res.Approval)
	assert.Equal(t, "tone is off", res.Approval.Feedback)
	assert.Empty(t, rec.published)
	assert.Equal(t, []db.Status{db.StatusCompleted}, rec.statuses)
}

func TestCampaignWorkflowApprovalTimeout(t *testing.T) {
	env, rec := newEnv(t)
	in := campaignInput()
	in.ApprovalTimeout = 60

	env.ExecuteWorkflow(CampaignWorkflow, in)
	res := campaignResult(t, env)

	assert.Equal(t, db.StatusCompleted, res.Status)
	require.NotNil(t, res.Approval)
	assert.False(t, res.Approval.Approved)
	assert.Equal(t, "approval timeout", res.Approval.Feedback)
	assert.Empty(t, rec.published)
}

func TestCampaignWorkflowAutoApproveUsesPublishDay(t *testing.T) {
	env, rec := newEnv(t)
	in := campaignInput()
	in.AutoApprove = true
	in.PublishDay = 2

	env.ExecuteWorkflow(CampaignWorkflow, in)
	res := campaignResult(t, env)

	assert.Equal(t, db.StatusPublished, res.Status)
	assert.Equal(t, []int{2}, rec.published)
	assert.NotContains(t, rec.events, streaming.EventApprovalRequested)
}

func TestCampaignWorkflowPublishDeniedStaysCompleted(t *testing.T) {
	env, rec := newEnv(t)
	rec.publishErr = temporal.NewNonRetryableApplicationError("publish of day 1 denied", activities.ErrTypePublishDenied, nil)
	in := campaignInput()
	in.AutoApprove = true

	env.ExecuteWorkflow(CampaignWorkflow, in)
	res := campaignResult(t, env)

	assert.Equal(t, db.StatusCompleted, res.Status)
	assert.Contains(t, res.PublishError, "denied")
	assert.Nil(t, res.Receipt)
	assert.Equal(t, []int{1}, rec.published)
	assert.Equal(t, []db.Status{db.StatusCompleted}, rec.statuses)
}

func TestCampaignWorkflowAnalysisFailureMarksFailed(t *testing.T) {
	env, rec := newEnv(t)
	rec.analysisErr = temporal.NewNonRetryableApplicationError("analysis pipeline is not configured", activities.ErrTypeNotConfigured, nil)

	env.ExecuteWorkflow(CampaignWorkflow, campaignInput())

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis")
	assert.Equal(t, []db.Status{db.StatusFailed}, rec.statuses)
	assert.Equal(t, []string{streaming.EventCampaignFailed}, rec.events)
	assert.False(t, rec.savedCal)
}

func TestCampaignWorkflowAssignsCampaignID(t *testing.T) {
	env, rec := newEnv(t)
	in := campaignInput()
	in.CampaignID = ""
	in.AutoApprove = true

	env.ExecuteWorkflow(CampaignWorkflow, in)
	res := campaignResult(t, env)

	_, err := uuid.Parse(res.CampaignID)
	require.NoError(t, err)
	require.Len(t, rec.created, 1)
	assert.Equal(t, res.CampaignID, rec.created[0].CampaignID)
}

func TestAnalysisAndCalendarWorkflows(t *testing.T) {
	t.Run("analysis", func(t *testing.T) {
		env, _ := newEnv(t)
		env.RegisterWorkflow(AnalysisWorkflow)
		env.ExecuteWorkflow(AnalysisWorkflow, pipeline.CampaignInput{Company: "Acme"})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
		var res pipeline.Result
		require.NoError(t, env.GetWorkflowResult(&res))
		assert.NotEmpty(t, res.CampaignID)
		assert.Equal(t, []any{"Globex"}, res.Record["competitors"])
	})

	t.Run("calendar", func(t *testing.T) {
		env, _ := newEnv(t)
		env.RegisterWorkflow(CalendarWorkflow)
		env.ExecuteWorkflow(CalendarWorkflow, calendar.Request{Company: "Acme", TemplateType: "trust_story"})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())
		var cal calendar.Calendar
		require.NoError(t, env.GetWorkflowResult(&cal))
		assert.Equal(t, "trust_story", cal.TemplateType)
		assert.Equal(t, 1, cal.ErrorCount())
	})
}

func TestCampaignWorkflowGenerationTimeouts(t *testing.T) {
	const windows, windowTimeout = 6, 600 * time.Second

	env, rec := newEnv(t)
	in := campaignInput()
	in.AutoApprove = true
	in.AnalysisTimeout = int((50 * time.Minute).Seconds())
	in.CalendarTimeout = int((windows*windowTimeout + 6*time.Minute).Seconds())

	env.ExecuteWorkflow(CampaignWorkflow, in)
	campaignResult(t, env)

	assert.Greater(t, rec.calendarBudget, windows*windowTimeout)
	assert.Less(t, rec.calendarBudget, windows*windowTimeout+7*time.Minute)
	assert.Greater(t, rec.analysisBudget, 49*time.Minute)
	assert.Less(t, rec.analysisBudget, 51*time.Minute)
}

func TestCampaignWorkflowDefaultGenerationTimeout(t *testing.T) {
	env, rec := newEnv(t)
	in := campaignInput()
	in.AutoApprove = true

	env.ExecuteWorkflow(CampaignWorkflow, in)
	campaignResult(t, env)

	assert.Greater(t, rec.calendarBudget, opts.DefaultGenerationTimeout-time.Minute)
	assert.Greater(t, rec.analysisBudget, opts.DefaultGenerationTimeout-time.Minute)
}
