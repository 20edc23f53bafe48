package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	client := NewClientFromDB(sqlx.NewDb(raw, "postgres"), &Config{EventWorkers: 1}, zaptest.NewLogger(t))
	return client, mock
}

func closeMock(t *testing.T, client *Client, mock sqlmock.Sqlmock) {
	t.Helper()
	mock.ExpectClose()
	require.NoError(t, client.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func newSQLiteClient(t *testing.T) *Client {
	t.Helper()
	cfg := &Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "campaigns.db")}
	client, err := NewClient(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Migrate(context.Background()))
	return client
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusGenerating, StatusCompleted))
	assert.True(t, CanTransition(StatusCompleted, StatusPublished))
	assert.True(t, CanTransition(StatusGenerating, StatusFailed))
	assert.False(t, CanTransition(StatusGenerating, StatusPublished))
	assert.False(t, CanTransition(StatusPublished, StatusCompleted))
	assert.False(t, CanTransition(StatusCompleted, StatusGenerating))
}

func TestJSONBScan(t *testing.T) {
	var j JSONB
	require.NoError(t, j.Scan([]byte(`{"a":1}`)))
	assert.Equal(t, float64(1), j["a"])
	require.NoError(t, j.Scan(`{"b":"x"}`))
	assert.Equal(t, "x", j["b"])
	require.NoError(t, j.Scan(nil))
	assert.Nil(t, j)
	assert.Error(t, j.Scan(42))

	v, err := JSONB(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCreateCampaignMock(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec("INSERT INTO campaigns").
		WithArgs(sqlmock.AnyArg(), "Acme", "Rockets", "founders", "bold", "reusable", "educational",
			sqlmock.AnyArg(), "generating", nil, nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	camp := &Campaign{Tenant: "Acme", Product: "Rockets", ICP: "founders", Tone: "bold", Description: "reusable", TemplateType: "educational"}
	camp.SetContentTypes([]string{"carousel"})
	require.NoError(t, client.CreateCampaign(context.Background(), camp))
	assert.NotEmpty(t, camp.ID)
	assert.Equal(t, StatusGenerating, camp.Status)
	assert.Equal(t, []string{"carousel"}, camp.ContentTypeList())

	closeMock(t, client, mock)
}

func TestGetCampaignNotFoundMock(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectQuery("FROM campaigns WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := client.GetCampaign(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	closeMock(t, client, mock)
}

func TestUpdateStatusRejectsSkippedStateMock(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec("UPDATE campaigns").
		WithArgs("published", nil, sqlmock.AnyArg(), sqlmock.AnyArg(), "c-1", "completed").
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"id", "tenant", "status", "created_at", "updated_at"}).
		AddRow("c-1", "Acme", "generating", time.Now(), time.Now())
	mock.ExpectQuery("FROM campaigns WHERE id").WithArgs("c-1").WillReturnRows(rows)

	err := client.UpdateStatus(context.Background(), "c-1", StatusPublished, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	closeMock(t, client, mock)
}

func TestUpdateStatusUnknownTarget(t *testing.T) {
	client, mock := newMockClient(t)
	err := client.UpdateStatus(context.Background(), "c-1", StatusGenerating, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	closeMock(t, client, mock)
}

func TestCampaignLifecycleSQLite(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()

	camp := &Campaign{Tenant: "Acme", Product: "Rockets", TemplateType: "trust_story"}
	camp.SetContentTypes([]string{"carousel", "video_script"})
	require.NoError(t, client.CreateCampaign(ctx, camp))
	require.NoError(t, client.SetWorkflowID(ctx, camp.ID, "campaign-"+camp.ID))

	record := map[string]any{"competitors": []any{"Globex"}, "positioning": map[string]any{}}
	require.NoError(t, client.SaveAnalysis(ctx, camp.ID, record))
	require.NoError(t, client.SaveCalendar(ctx, camp.ID, map[string]any{"template_type": "trust_story", "total_days": 30}))

	err := client.UpdateStatus(ctx, camp.ID, StatusPublished, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, client.UpdateStatus(ctx, camp.ID, StatusCompleted, ""))
	require.NoError(t, client.UpdateStatus(ctx, camp.ID, StatusCompleted, ""))
	require.NoError(t, client.UpdateStatus(ctx, camp.ID, StatusPublished, ""))

	got, err := client.GetCampaign(ctx, camp.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, got.Status)
	assert.Equal(t, "campaign-"+camp.ID, *got.WorkflowID)
	assert.Equal(t, []any{"Globex"}, got.Analysis["competitors"])
	assert.Equal(t, float64(30), got.Calendar["total_days"])
	assert.Equal(t, []string{"carousel", "video_script"}, got.ContentTypeList())
	require.NotNil(t, got.PublishedAt)

	list, err := client.ListCampaigns(ctx, "Acme", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = client.GetCampaign(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, client.SaveAnalysis(ctx, "nope", record), ErrNotFound)
}

func TestEventLogSQLite(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()

	require.NoError(t, client.SaveEventLog(ctx, &EventLog{CampaignID: "c-1", Type: streaming.EventStageStarted, Stage: "competition", Seq: 1}))
	require.NoError(t, client.SaveEventLog(ctx, &EventLog{CampaignID: "c-1", Type: streaming.EventStageStarted, Stage: "competition", Seq: 1}))
	require.NoError(t, client.SaveEventLog(ctx, &EventLog{CampaignID: "c-1", Type: streaming.EventWindowCompleted, Seq: 2, Payload: JSONB{"window": 1}}))

	events, err := client.ListEvents(ctx, "c-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "competition", events[0].Stage)
	assert.Equal(t, "", events[1].Stage)
	assert.Equal(t, float64(1), events[1].Payload["window"])

	events, err = client.ListEvents(ctx, "c-1", 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEventSinkWritesThroughQueue(t *testing.T) {
	client := newSQLiteClient(t)
	mgr := streaming.NewManager(streaming.Options{}, nil, zaptest.NewLogger(t))
	mgr.AddSink(client.EventSink())

	mgr.Publish("c-9", streaming.Event{Type: streaming.EventStageStarted, Stage: "usecase"})
	mgr.Publish("c-9", streaming.Event{Type: streaming.EventWindowFailed, Window: 2, DayStart: 6, DayEnd: 10})

	require.Eventually(t, func() bool {
		events, err := client.ListEvents(context.Background(), "c-9", 0)
		return err == nil && len(events) == 2
	}, 5*time.Second, 20*time.Millisecond)
}
