package activities

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/agents"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/db"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/pipeline"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/policy"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/publish"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
)

type fakeAnalyzer struct {
	err error
}

func (f fakeAnalyzer) Run(_ context.Context, in pipeline.CampaignInput) (*pipeline.Result, error) {
	stages := []pipeline.StageResult{
		{Stage: agents.StageCompetition, Outcome: agents.OutcomeDefaulted, Output: agents.Defaults(agents.StageCompetition)},
	}
	return &pipeline.Result{CampaignID: in.CampaignID, Stages: stages, Record: pipeline.Merge(stages)}, f.err
}

type fakeCalendars struct {
	err error
}

func (f fakeCalendars) Generate(_ context.Context, req calendar.Request) (*calendar.Calendar, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &calendar.Calendar{
		TemplateType: req.TemplateType,
		TotalDays:    2,
		Days: []calendar.Day{
			{Day: 1, ContentType: calendar.CanonicalPost, Payload: map[string]any{"text": "Launch **day**"}, Tags: []string{"launch"}},
			{Day: 2, ContentType: calendar.ErrorDay, Error: "timeout"},
		},
	}, nil
}

type recordingSender struct {
	mu       sync.Mutex
	messages []string
}

func (s *recordingSender) SendMessage(_ context.Context, text string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, text)
	return []int64{int64(len(s.messages))}, nil
}

func (s *recordingSender) SendPhoto(ctx context.Context, _, caption string) ([]int64, error) {
	return s.SendMessage(ctx, caption)
}

func (s *recordingSender) SendMediaGroup(ctx context.Context, _ []string, caption string) ([]int64, error) {
	return s.SendMessage(ctx, caption)
}

type fixture struct {
	acts   *Activities
	store  *db.Client
	sender *recordingSender
	events []streaming.Event
	env    *testsuite.TestActivityEnvironment
}

func newFixture(t *testing.T, deps Dependencies) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	store, err := db.NewClient(&db.Config{Driver: db.DriverSQLite, Path: filepath.Join(t.TempDir(), "campaigns.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	gate, err := policy.NewOPAEngine(&policy.Config{Enabled: true, Mode: policy.ModeEnforce}, logger)
	require.NoError(t, err)

	f := &fixture{store: store, sender: &recordingSender{}}
	if deps.Analyzer == nil {
		deps.Analyzer = fakeAnalyzer{}
	}
	if deps.Calendars == nil {
		deps.Calendars = fakeCalendars{}
	}
	deps.Store = store
	deps.Publisher = publish.NewPublisher(f.sender, gate, logger)
	deps.Events = streaming.SinkFunc(func(_ string, evt streaming.Event) { f.events = append(f.events, evt) })
	f.acts = NewActivities(deps, logger)

	suite := &testsuite.WorkflowTestSuite{}
	f.env = suite.NewTestActivityEnvironment()
	f.env.RegisterActivity(f.acts)
	return f
}

func (f *fixture) create(t *testing.T) string {
	t.Helper()
	val, err := f.env.ExecuteActivity(f.acts.CreateCampaign, CreateCampaignInput{
		Tenant:       "Acme",
		Product:      "Rockets",
		TemplateType: "educational",
		ContentTypes: []string{"canonical_post"},
		WorkflowID:   "campaign-wf",
	})
	require.NoError(t, err)
	var id string
	require.NoError(t, val.Get(&id))
	require.NotEmpty(t, id)
	return id
}

func applicationErrorType(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type()
	}
	return ""
}

func TestCreateCampaignIsIdempotent(t *testing.T) {
	f := newFixture(t, Dependencies{})
	id := f.create(t)

	val, err := f.env.ExecuteActivity(f.acts.CreateCampaign, CreateCampaignInput{CampaignID: id, Tenant: "Acme"})
	require.NoError(t, err)
	var again string
	require.NoError(t, val.Get(&again))
	assert.Equal(t, id, again)

	camp, err := f.store.GetCampaign(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, db.StatusGenerating, camp.Status)
	assert.Equal(t, "campaign-wf", *camp.WorkflowID)
	assert.Equal(t, []string{"canonical_post"}, camp.ContentTypeList())
}

func TestCreateCampaignRequiresTenant(t *testing.T) {
	f := newFixture(t, Dependencies{})
	_, err := f.env.ExecuteActivity(f.acts.CreateCampaign, CreateCampaignInput{})
	require.Error(t, err)
	assert.Equal(t, ErrTypeInvalidRequest, applicationErrorType(err))
}

func TestRunAnalysisReturnsRecord(t *testing.T) {
	f := newFixture(t, Dependencies{})
	val, err := f.env.ExecuteActivity(f.acts.RunAnalysis, pipeline.CampaignInput{CampaignID: "c1", Company: "Acme"})
	require.NoError(t, err)

	var res pipeline.Result
	require.NoError(t, val.Get(&res))
	assert.Equal(t, "c1", res.CampaignID)
	assert.Equal(t, 1, res.Failed())
	assert.ElementsMatch(t, pipeline.RecordKeys(), keys(res.Record))
}

func TestGenerateCalendarRejectsBadRequest(t *testing.T) {
	f := newFixture(t, Dependencies{Calendars: fakeCalendars{err: calendar.ErrUnknownTemplate}})
	_, err := f.env.ExecuteActivity(f.acts.GenerateCalendar, calendar.Request{TemplateType: "viral"})
	require.Error(t, err)
	assert.Equal(t, ErrTypeInvalidRequest, applicationErrorType(err))
}

func TestSaveAndPublishFlow(t *testing.T) {
	f := newFixture(t, Dependencies{})
	id := f.create(t)

	val, err := f.env.ExecuteActivity(f.acts.GenerateCalendar, calendar.Request{CampaignID: id, TemplateType: "educational"})
	require.NoError(t, err)
	var cal calendar.Calendar
	require.NoError(t, val.Get(&cal))
	require.Len(t, cal.Days, 2)
	assert.Equal(t, 1, cal.ErrorCount())

	_, err = f.env.ExecuteActivity(f.acts.SaveCalendar, SaveCalendarInput{CampaignID: id, Calendar: &cal})
	require.NoError(t, err)
	_, err = f.env.ExecuteActivity(f.acts.SaveAnalysis, SaveAnalysisInput{CampaignID: id, Record: map[string]any{"objectives": []any{"grow"}}})
	require.NoError(t, err)

	_, err = f.env.ExecuteActivity(f.acts.UpdateCampaignStatus, UpdateStatusInput{CampaignID: id, Status: db.StatusPublished})
	require.Error(t, err)
	assert.Equal(t, ErrTypeInvalidTransition, applicationErrorType(err))

	_, err = f.env.ExecuteActivity(f.acts.UpdateCampaignStatus, UpdateStatusInput{CampaignID: id, Status: db.StatusCompleted})
	require.NoError(t, err)

	val, err = f.env.ExecuteActivity(f.acts.PublishDay, PublishDayInput{CampaignID: id, Day: 1})
	require.NoError(t, err)
	var rec publish.Receipt
	require.NoError(t, val.Get(&rec))
	assert.Equal(t, "sendMessage", rec.Method)
	assert.Equal(t, []int64{1}, rec.MessageIDs)
	require.Len(t, f.sender.messages, 1)
	assert.Equal(t, "Launch <b>day</b>\n\n#launch", f.sender.messages[0])
	require.Len(t, f.events, 1)
	assert.Equal(t, streaming.EventCampaignPublished, f.events[0].Type)

	_, err = f.env.ExecuteActivity(f.acts.PublishDay, PublishDayInput{CampaignID: id, Day: 2})
	require.Error(t, err)
	assert.Equal(t, ErrTypePublishDenied, applicationErrorType(err))
	assert.Len(t, f.sender.messages, 1)
}

func TestPublishDayWithoutCalendar(t *testing.T) {
	f := newFixture(t, Dependencies{})
	id := f.create(t)

	_, err := f.env.ExecuteActivity(f.acts.PublishDay, PublishDayInput{CampaignID: id, Day: 1})
	require.Error(t, err)
	assert.Equal(t, ErrTypeInvalidRequest, applicationErrorType(err))

	_, err = f.env.ExecuteActivity(f.acts.PublishDay, PublishDayInput{CampaignID: "missing", Day: 1})
	require.Error(t, err)
	assert.Equal(t, ErrTypeNotFound, applicationErrorType(err))
}

func TestMissingDependencies(t *testing.T) {
	acts := NewActivities(Dependencies{}, zaptest.NewLogger(t))
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	_, err := env.ExecuteActivity(acts.RunAnalysis, pipeline.CampaignInput{Company: "Acme"})
	assert.Equal(t, ErrTypeNotConfigured, applicationErrorType(err))
	_, err = env.ExecuteActivity(acts.PublishDay, PublishDayInput{CampaignID: "c", Day: 1})
	assert.Equal(t, ErrTypeNotConfigured, applicationErrorType(err))

	_, err = env.ExecuteActivity(acts.EmitCampaignEvent, CampaignEventInput{CampaignID: "c", Type: streaming.EventCampaignCompleted})
	assert.NoError(t, err)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
